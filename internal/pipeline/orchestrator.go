package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/media"
	"github.com/voxsight/voxsight/internal/models"
	"github.com/voxsight/voxsight/internal/speech"
	"github.com/voxsight/voxsight/internal/storage"
	"github.com/voxsight/voxsight/internal/vision"
)

// faceMargin is the padding in pixels added around a detected face before
// cropping.
const faceMargin = 20

// Media is the ffmpeg-shaped collaborator the stages drive.
type Media interface {
	Probe(ctx context.Context, videoPath string) (media.ProbeInfo, error)
	SampleFrames(ctx context.Context, videoPath string, interval int, outDir string) ([]media.SampledFrame, error)
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	CropImage(ctx context.Context, src, dst string, x, y, w, h int) error
}

// Orchestrator owns the video job lifecycle: it creates the job record,
// fans each upload out to the face and speech stages on a shared worker
// pool, and reconciles their results into one overall status. Submit never
// blocks on stage execution.
type Orchestrator struct {
	jobs     *database.VideoRepo
	frames   *database.FrameRepo
	segments *database.SegmentRepo

	media    Media
	detector vision.Detector
	model    *speech.ModelCache

	pool *ants.Pool
	log  *logrus.Logger

	// mergeMu serializes overall-status derivation so two stages finishing
	// at the same time cannot overwrite each other's merge with a stale one.
	mergeMu sync.Mutex

	framesDir string
	audioDir  string
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Store     database.Store
	Media     Media
	Detector  vision.Detector
	Model     *speech.ModelCache
	Logger    *logrus.Logger
	FramesDir string
	AudioDir  string
	PoolSize  int
}

func New(opts Options) (*Orchestrator, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 8
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Orchestrator{
		jobs:      database.NewVideoRepo(opts.Store),
		frames:    database.NewFrameRepo(opts.Store),
		segments:  database.NewSegmentRepo(opts.Store),
		media:     opts.Media,
		detector:  opts.Detector,
		model:     opts.Model,
		pool:      pool,
		log:       opts.Logger,
		framesDir: opts.FramesDir,
		audioDir:  opts.AudioDir,
	}, nil
}

// Close releases the worker pool. In-flight stages run to completion.
func (o *Orchestrator) Close() {
	o.pool.Release()
}

// Submit persists the job record with both stages queued and schedules the
// two stages to run in the background. It returns as soon as the record is
// written, regardless of video length.
func (o *Orchestrator) Submit(ctx context.Context, job *models.VideoJob) error {
	if err := o.jobs.Insert(ctx, job); err != nil {
		return err
	}
	o.enqueue(job.ID, "face_stage", o.runFaceStage)
	o.enqueue(job.ID, "speech_stage", o.runSpeechStage)
	return nil
}

// GetStatus returns the full job record, whatever state it is in.
func (o *Orchestrator) GetStatus(ctx context.Context, videoID string) (*models.VideoJob, error) {
	return o.jobs.GetByID(ctx, videoID)
}

// Reprocess clears the derived frame records and images, resets the face
// stage to queued and reschedules it with the given sampling interval. The
// speech stage and its segments are untouched.
func (o *Orchestrator) Reprocess(ctx context.Context, videoID string, frameInterval int) (*models.VideoJob, error) {
	job, err := o.jobs.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if frameInterval <= 0 {
		frameInterval = job.FrameInterval
	}

	if _, err := o.frames.DeleteByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("failed to clear frame records: %w", err)
	}
	if job.FaceStage.FramesDir != "" {
		if _, err := storage.RemoveDir(job.FaceStage.FramesDir); err != nil {
			o.log.WithError(err).WithField("video_id", videoID).Warn("failed to remove frame images")
		}
	}

	updated, err := o.jobs.Patch(ctx, videoID, database.Doc{
		"frame_interval": frameInterval,
		"face_stage": database.Doc{
			"status":           string(models.StageQueued),
			"total_frames":     0,
			"processed_frames": 0,
			"faces_detected":   0,
		},
		"status": string(models.MergeStatus(models.StageQueued, job.SpeechStage.Status)),
	})
	if err != nil {
		return nil, err
	}

	o.enqueue(videoID, "face_stage", o.runFaceStage)
	return updated, nil
}

// Retranscribe clears the stored transcription, resets the speech stage to
// queued and reschedules it. Frame records and the face stage are untouched,
// mirroring how Reprocess is face-scoped.
func (o *Orchestrator) Retranscribe(ctx context.Context, videoID string) (*models.VideoJob, error) {
	job, err := o.jobs.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if _, err := o.segments.DeleteByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("failed to clear transcription segments: %w", err)
	}
	if _, err := storage.RemoveFileIfExists(job.SpeechStage.AudioPath); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Warn("failed to remove audio file")
	}

	updated, err := o.jobs.Patch(ctx, videoID, database.Doc{
		"speech_stage": database.Doc{
			"status":                 string(models.StageQueued),
			"segments_count":         0,
			"overall_confidence":     0,
			"overall_confidence_pct": 0,
		},
		"status": string(models.MergeStatus(job.FaceStage.Status, models.StageQueued)),
	})
	if err != nil {
		return nil, err
	}

	o.enqueue(videoID, "speech_stage", o.runSpeechStage)
	return updated, nil
}

// DeleteSummary reports what a cascading delete actually removed. Counts
// may be lower than expected when files were already missing; that is not
// an error.
type DeleteSummary struct {
	VideoID         string `json:"video_id"`
	FramesRemoved   int64  `json:"frames_removed"`
	SegmentsRemoved int64  `json:"segments_removed"`
	FilesRemoved    int    `json:"files_removed"`
}

// Delete removes the job record, its frame records and transcription
// segments, and best-effort removes the backing files. In-flight stages are
// not forcibly stopped.
func (o *Orchestrator) Delete(ctx context.Context, videoID string) (*DeleteSummary, error) {
	job, err := o.jobs.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	summary := &DeleteSummary{VideoID: videoID}

	if summary.FramesRemoved, err = o.frames.DeleteByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("failed to delete frame records: %w", err)
	}
	if summary.SegmentsRemoved, err = o.segments.DeleteByVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("failed to delete transcription segments: %w", err)
	}

	if removed, err := storage.RemoveFileIfExists(job.FilePath); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Warn("failed to remove video file")
	} else if removed {
		summary.FilesRemoved++
	}
	if n, err := storage.RemoveDir(filepath.Join(o.framesDir, videoID)); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Warn("failed to remove frame images")
	} else {
		summary.FilesRemoved += n
	}
	if removed, err := storage.RemoveFileIfExists(job.SpeechStage.AudioPath); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Warn("failed to remove audio file")
	} else if removed {
		summary.FilesRemoved++
	}

	if err := o.jobs.Delete(ctx, videoID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	return summary, nil
}

// enqueue hands a stage to the worker pool without blocking the caller. A
// scheduling failure is recorded on the stage like any other failure.
func (o *Orchestrator) enqueue(videoID, stageField string, run func(ctx context.Context, job *models.VideoJob)) {
	go func() {
		err := o.pool.Submit(func() {
			ctx := context.Background()
			job, err := o.jobs.GetByID(ctx, videoID)
			if err != nil {
				// Deleted before the stage got a worker.
				o.log.WithError(err).WithField("video_id", videoID).Warn("stage skipped, job no longer exists")
				return
			}
			run(ctx, job)
		})
		if err != nil {
			o.log.WithError(err).WithField("video_id", videoID).Error("failed to schedule stage")
			o.failStage(context.Background(), videoID, stageField, fmt.Sprintf("scheduling failed: %v", err))
		}
	}()
}

// failStage records a stage failure and re-derives the overall status. It
// never propagates the failure to other jobs or stages.
func (o *Orchestrator) failStage(ctx context.Context, videoID, stageField, message string) {
	if _, err := o.jobs.Patch(ctx, videoID, database.Doc{
		stageField + ".status": string(models.StageFailed),
		stageField + ".error":  message,
	}); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Error("failed to record stage failure")
		return
	}
	o.finalize(ctx, videoID)
}

// finalize re-derives the overall status from the freshly read stage
// statuses. The read and the write happen under mergeMu so the finalize that
// runs last always sees both stages' terminal states.
func (o *Orchestrator) finalize(ctx context.Context, videoID string) {
	o.mergeMu.Lock()
	defer o.mergeMu.Unlock()

	job, err := o.jobs.GetByID(ctx, videoID)
	if err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Warn("finalize skipped, job no longer exists")
		return
	}
	status := models.MergeStatus(job.FaceStage.Status, job.SpeechStage.Status)
	if _, err := o.jobs.Patch(ctx, videoID, database.Doc{"status": string(status)}); err != nil {
		o.log.WithError(err).WithField("video_id", videoID).Error("failed to update overall status")
	}
}
