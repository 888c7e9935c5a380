package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/models"
)

// runFaceStage samples frames from the video at the job's frame interval,
// runs the external detector on each, and persists one frame record per
// sampled frame as it goes, so a status query mid-run sees processed_frames
// grow. A decode or detection error on an individual frame skips that frame
// only; failing to decode the video at all fails the stage.
func (o *Orchestrator) runFaceStage(ctx context.Context, job *models.VideoJob) {
	log := o.log.WithFields(logrus.Fields{"video_id": job.ID, "stage": "face"})

	if job.FaceStage.Status != models.StageQueued {
		log.WithField("status", job.FaceStage.Status).Warn("face stage not queued, skipping")
		return
	}

	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"face_stage.status": string(models.StageProcessing),
		"status":            string(models.StatusProcessing),
	}); err != nil {
		log.WithError(err).Error("failed to mark face stage processing")
		return
	}
	log.Info("face extraction started")

	info, err := o.media.Probe(ctx, job.FilePath)
	if err != nil {
		o.failStage(ctx, job.ID, "face_stage", fmt.Sprintf("unable to decode video: %v", err))
		return
	}

	framesDir := filepath.Join(o.framesDir, job.ID)
	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"face_stage.total_frames": info.TotalFrames,
		"face_stage.frames_dir":   framesDir,
	}); err != nil {
		log.WithError(err).Error("failed to record probe results")
		return
	}

	sampled, err := o.media.SampleFrames(ctx, job.FilePath, job.FrameInterval, framesDir)
	if err != nil {
		o.failStage(ctx, job.ID, "face_stage", fmt.Sprintf("frame sampling failed: %v", err))
		return
	}
	if len(sampled) == 0 {
		o.failStage(ctx, job.ID, "face_stage", "no frames could be decoded from the video")
		return
	}

	processed := 0
	facesDetected := 0
	for _, frame := range sampled {
		facePath := ""
		faceFound := false

		boxes, err := o.detector.Detect(ctx, frame.Path)
		switch {
		case err != nil:
			log.WithError(err).WithField("frame", frame.Number).Warn("face detection failed for frame, skipping")
		case len(boxes) > 0:
			facesDetected += len(boxes)
			box := boxes[0].Expand(faceMargin)
			facePath = filepath.Join(framesDir, fmt.Sprintf("face_%06d.jpg", frame.Number))
			if err := o.media.CropImage(ctx, frame.Path, facePath, box.X, box.Y, box.W, box.H); err != nil {
				log.WithError(err).WithField("frame", frame.Number).Warn("face crop failed")
				facePath = ""
			} else {
				faceFound = true
			}
		}

		record := models.NewFrameRecord(job.ID, frame.Number, frame.Path, facePath, faceFound)
		if err := o.frames.Insert(ctx, record); err != nil {
			log.WithError(err).WithField("frame", frame.Number).Error("failed to persist frame record")
		}

		processed++
		if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
			"face_stage.processed_frames": processed,
			"face_stage.faces_detected":   facesDetected,
		}); err != nil {
			log.WithError(err).Error("failed to update face stage progress")
			return
		}
	}

	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"face_stage.status": string(models.StageCompleted),
	}); err != nil {
		log.WithError(err).Error("failed to mark face stage completed")
		return
	}
	log.WithFields(logrus.Fields{"frames": processed, "faces": facesDetected}).Info("face extraction completed")
	o.finalize(ctx, job.ID)
}
