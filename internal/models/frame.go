package models

import (
	"time"

	"github.com/google/uuid"
)

// FrameRecord is one sampled video frame. Records are written incrementally
// while the face stage runs, never mutated afterwards, and removed in bulk
// when their video is deleted or reprocessed.
type FrameRecord struct {
	ID          string    `bson:"_id" json:"-"`
	VideoID     string    `bson:"video_id" json:"video_id"`
	FrameNumber int       `bson:"frame_number" json:"frame_number"`
	FramePath   string    `bson:"frame_path" json:"frame_path"`
	FacePath    string    `bson:"face_path,omitempty" json:"face_path,omitempty"`
	FaceFound   bool      `bson:"face_found" json:"face_found"`
	CreatedAt   time.Time `bson:"created_at,omitempty" json:"created_at"`
}

func NewFrameRecord(videoID string, frameNumber int, framePath, facePath string, faceFound bool) *FrameRecord {
	return &FrameRecord{
		ID:          uuid.New().String(),
		VideoID:     videoID,
		FrameNumber: frameNumber,
		FramePath:   framePath,
		FacePath:    facePath,
		FaceFound:   faceFound,
	}
}
