package database

import (
	"context"
	"fmt"

	"github.com/voxsight/voxsight/internal/models"
)

// FrameRepo is the typed view over the frames collection. Frame records are
// inserted one by one while the face stage runs and removed in bulk on
// delete or reprocess.
type FrameRepo struct {
	store Store
}

func NewFrameRepo(store Store) *FrameRepo {
	return &FrameRepo{store: store}
}

func (r *FrameRepo) Insert(ctx context.Context, frame *models.FrameRecord) error {
	doc, err := toDoc(frame)
	if err != nil {
		return err
	}
	if _, err := r.store.Create(ctx, CollectionFrames, doc); err != nil {
		return fmt.Errorf("failed to insert frame record: %w", err)
	}
	return nil
}

// ListByVideo returns frame records in insertion order, which for one video
// is increasing frame_number order. facesOnly narrows to frames where a face
// was found.
func (r *FrameRepo) ListByVideo(ctx context.Context, videoID string, facesOnly bool, skip, limit int64) ([]models.FrameRecord, error) {
	filter := Doc{"video_id": videoID}
	if facesOnly {
		filter["face_found"] = true
	}
	docs, err := r.store.Find(ctx, CollectionFrames, filter, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list frame records: %w", err)
	}
	frames := make([]models.FrameRecord, 0, len(docs))
	for _, doc := range docs {
		var frame models.FrameRecord
		if err := fromDoc(doc, &frame); err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (r *FrameRepo) CountByVideo(ctx context.Context, videoID string, facesOnly bool) (int64, error) {
	filter := Doc{"video_id": videoID}
	if facesOnly {
		filter["face_found"] = true
	}
	return r.store.Count(ctx, CollectionFrames, filter)
}

func (r *FrameRepo) DeleteByVideo(ctx context.Context, videoID string) (int64, error) {
	return r.store.DeleteMany(ctx, CollectionFrames, Doc{"video_id": videoID})
}
