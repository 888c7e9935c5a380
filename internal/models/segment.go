package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TranscriptionSegment is one recognized utterance with its timing and
// confidence. Segments for a video are written as a single batch once the
// whole transcription has finished.
type TranscriptionSegment struct {
	ID                string    `bson:"_id" json:"-"`
	VideoID           string    `bson:"video_id" json:"video_id"`
	StartTime         float64   `bson:"start_time" json:"start_time"`
	EndTime           float64   `bson:"end_time" json:"end_time"`
	Text              string    `bson:"text" json:"text"`
	RawConfidence     float64   `bson:"raw_confidence" json:"confidence"`
	ConfidencePct     float64   `bson:"confidence_pct" json:"confidence_percentage"`
	ConfidenceQuality string    `bson:"confidence_quality" json:"confidence_quality"`
	CreatedAt         time.Time `bson:"created_at,omitempty" json:"created_at"`
}

func NewTranscriptionSegment(videoID string, start, end float64, text string) *TranscriptionSegment {
	return &TranscriptionSegment{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		StartTime: start,
		EndTime:   end,
		Text:      text,
	}
}

// Formatted renders the segment the way the transcription endpoint lists it.
func (s *TranscriptionSegment) Formatted() string {
	return fmt.Sprintf("[%.2fs - %.2fs]: %s", s.StartTime, s.EndTime, s.Text)
}
