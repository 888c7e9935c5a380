package database

import (
	"context"
	"fmt"

	"github.com/voxsight/voxsight/internal/models"
)

// SegmentRepo is the typed view over the segments collection. Segments for a
// video are written as one batch after transcription completes, so readers
// never observe a partially transcribed video.
type SegmentRepo struct {
	store Store
}

func NewSegmentRepo(store Store) *SegmentRepo {
	return &SegmentRepo{store: store}
}

func (r *SegmentRepo) InsertBatch(ctx context.Context, segments []*models.TranscriptionSegment) error {
	docs := make([]Doc, 0, len(segments))
	for _, segment := range segments {
		doc, err := toDoc(segment)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if err := r.store.CreateMany(ctx, CollectionSegments, docs); err != nil {
		return fmt.Errorf("failed to insert transcription segments: %w", err)
	}
	return nil
}

func (r *SegmentRepo) ListByVideo(ctx context.Context, videoID string) ([]models.TranscriptionSegment, error) {
	docs, err := r.store.Find(ctx, CollectionSegments, Doc{"video_id": videoID}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcription segments: %w", err)
	}
	segments := make([]models.TranscriptionSegment, 0, len(docs))
	for _, doc := range docs {
		var segment models.TranscriptionSegment
		if err := fromDoc(doc, &segment); err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func (r *SegmentRepo) DeleteByVideo(ctx context.Context, videoID string) (int64, error) {
	return r.store.DeleteMany(ctx, CollectionSegments, Doc{"video_id": videoID})
}
