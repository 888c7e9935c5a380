package models

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus is the lifecycle state of a single extraction stage.
type StageStatus string

const (
	StageQueued     StageStatus = "queued"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// Terminal reports whether a stage has finished, successfully or not.
func (s StageStatus) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// JobStatus is the overall lifecycle state of a video job. Except for the
// upload acknowledgement it is always derived from the two stage statuses
// via MergeStatus, never set independently.
type JobStatus string

const (
	StatusUploaded       JobStatus = "uploaded"
	StatusProcessing     JobStatus = "processing"
	StatusCompleted      JobStatus = "completed"
	StatusPartialSuccess JobStatus = "partial_success"
	StatusFailed         JobStatus = "failed"
)

// MergeStatus derives the overall job status from the two stage statuses.
// While either stage is still queued or processing the job is processing.
// A single failed stage next to a completed one is surfaced as
// partial_success, never silently promoted to completed.
func MergeStatus(face, speech StageStatus) JobStatus {
	if !face.Terminal() || !speech.Terminal() {
		return StatusProcessing
	}
	switch {
	case face == StageCompleted && speech == StageCompleted:
		return StatusCompleted
	case face == StageFailed && speech == StageFailed:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}

// FaceStage tracks the face extraction pipeline for one video.
type FaceStage struct {
	Status          StageStatus `bson:"status" json:"status"`
	TotalFrames     int         `bson:"total_frames" json:"total_frames"`
	ProcessedFrames int         `bson:"processed_frames" json:"processed_frames"`
	FacesDetected   int         `bson:"faces_detected" json:"faces_detected"`
	FramesDir       string      `bson:"frames_dir,omitempty" json:"frames_dir,omitempty"`
	Error           string      `bson:"error,omitempty" json:"error,omitempty"`
}

// SpeechStage tracks the speech transcription pipeline for one video.
type SpeechStage struct {
	Status            StageStatus `bson:"status" json:"status"`
	AudioPath         string      `bson:"audio_path,omitempty" json:"audio_file_path,omitempty"`
	SegmentsCount     int         `bson:"segments_count" json:"segments_count"`
	OverallConfidence float64     `bson:"overall_confidence" json:"overall_confidence"`
	OverallPct        float64     `bson:"overall_confidence_pct" json:"overall_confidence_percentage"`
	OverallQuality    string      `bson:"overall_confidence_quality,omitempty" json:"overall_confidence_quality,omitempty"`
	Error             string      `bson:"error,omitempty" json:"error,omitempty"`
}

// VideoJob is the root record tracking one uploaded video through both
// extraction stages.
type VideoJob struct {
	ID            string      `bson:"_id" json:"video_id"`
	Filename      string      `bson:"filename" json:"filename"`
	FilePath      string      `bson:"file_path" json:"-"`
	FileSize      int64       `bson:"file_size" json:"file_size"`
	ContentType   string      `bson:"content_type" json:"content_type"`
	Status        JobStatus   `bson:"status" json:"status"`
	FrameInterval int         `bson:"frame_interval" json:"frame_interval"`
	FaceStage     FaceStage   `bson:"face_stage" json:"face_extraction"`
	SpeechStage   SpeechStage `bson:"speech_stage" json:"speech_transcription"`
	CreatedAt     time.Time   `bson:"created_at,omitempty" json:"created_at"`
	UpdatedAt     time.Time   `bson:"updated_at,omitempty" json:"updated_at"`
}

// NewVideoJob builds a job record with both stages queued.
func NewVideoJob(filename, filePath string, size int64, contentType string, frameInterval int) *VideoJob {
	return &VideoJob{
		ID:            uuid.New().String(),
		Filename:      filename,
		FilePath:      filePath,
		FileSize:      size,
		ContentType:   contentType,
		Status:        MergeStatus(StageQueued, StageQueued),
		FrameInterval: frameInterval,
		FaceStage:     FaceStage{Status: StageQueued},
		SpeechStage:   SpeechStage{Status: StageQueued},
	}
}
