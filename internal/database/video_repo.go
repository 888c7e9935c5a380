package database

import (
	"context"
	"fmt"

	"github.com/voxsight/voxsight/internal/models"
)

// VideoRepo is the typed view over the videos collection.
type VideoRepo struct {
	store Store
}

func NewVideoRepo(store Store) *VideoRepo {
	return &VideoRepo{store: store}
}

func (r *VideoRepo) Insert(ctx context.Context, job *models.VideoJob) error {
	doc, err := toDoc(job)
	if err != nil {
		return err
	}
	if _, err := r.store.Create(ctx, CollectionVideos, doc); err != nil {
		return fmt.Errorf("failed to insert video job: %w", err)
	}
	return nil
}

func (r *VideoRepo) GetByID(ctx context.Context, id string) (*models.VideoJob, error) {
	doc, err := r.store.Get(ctx, CollectionVideos, id)
	if err != nil {
		return nil, err
	}
	var job models.VideoJob
	if err := fromDoc(doc, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *VideoRepo) List(ctx context.Context, skip, limit int64) ([]models.VideoJob, error) {
	docs, err := r.store.Find(ctx, CollectionVideos, nil, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list video jobs: %w", err)
	}
	jobs := make([]models.VideoJob, 0, len(docs))
	for _, doc := range docs {
		var job models.VideoJob
		if err := fromDoc(doc, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *VideoRepo) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, CollectionVideos, nil)
}

// Patch applies a partial update. Keys may use dotted paths, e.g.
// "face_stage.status".
func (r *VideoRepo) Patch(ctx context.Context, id string, patch Doc) (*models.VideoJob, error) {
	doc, err := r.store.Update(ctx, CollectionVideos, id, patch)
	if err != nil {
		return nil, err
	}
	var job models.VideoJob
	if err := fromDoc(doc, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *VideoRepo) Delete(ctx context.Context, id string) error {
	_, err := r.store.Delete(ctx, CollectionVideos, id)
	return err
}
