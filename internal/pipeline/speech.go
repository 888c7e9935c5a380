package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/media"
	"github.com/voxsight/voxsight/internal/models"
	"github.com/voxsight/voxsight/internal/speech"
)

// runSpeechStage extracts the audio track, transcribes it in one pass under
// the model cache's exclusive scope, and persists all segments as a single
// batch before marking the stage completed, so readers never observe a
// partially transcribed video.
func (o *Orchestrator) runSpeechStage(ctx context.Context, job *models.VideoJob) {
	log := o.log.WithFields(logrus.Fields{"video_id": job.ID, "stage": "speech"})

	if job.SpeechStage.Status != models.StageQueued {
		log.WithField("status", job.SpeechStage.Status).Warn("speech stage not queued, skipping")
		return
	}

	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"speech_stage.status": string(models.StageProcessing),
		"status":              string(models.StatusProcessing),
	}); err != nil {
		log.WithError(err).Error("failed to mark speech stage processing")
		return
	}
	log.Info("speech transcription started")

	info, err := o.media.Probe(ctx, job.FilePath)
	if err != nil {
		o.failStage(ctx, job.ID, "speech_stage", fmt.Sprintf("unable to decode video: %v", err))
		return
	}
	if !info.HasAudio {
		o.failStage(ctx, job.ID, "speech_stage", "no audio track")
		return
	}

	audioPath := filepath.Join(o.audioDir, fmt.Sprintf("video_%s_audio.wav", job.ID))
	if err := o.media.ExtractAudio(ctx, job.FilePath, audioPath); err != nil {
		if errors.Is(err, media.ErrNoAudioTrack) {
			o.failStage(ctx, job.ID, "speech_stage", "no audio track")
		} else {
			o.failStage(ctx, job.ID, "speech_stage", fmt.Sprintf("audio extraction failed: %v", err))
		}
		return
	}

	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"speech_stage.audio_path": audioPath,
	}); err != nil {
		log.WithError(err).Error("failed to record audio path")
		return
	}

	raws, err := o.model.Transcribe(ctx, audioPath)
	if err != nil {
		o.failStage(ctx, job.ID, "speech_stage", fmt.Sprintf("transcription failed: %v", err))
		return
	}

	segments := make([]*models.TranscriptionSegment, 0, len(raws))
	rawScores := make([]float64, 0, len(raws))
	for _, raw := range raws {
		segment := models.NewTranscriptionSegment(job.ID, raw.Start, raw.End, raw.Text)
		pct, quality := speech.NormalizeConfidence(raw.AvgLogProb)
		segment.RawConfidence = raw.AvgLogProb
		segment.ConfidencePct = pct
		segment.ConfidenceQuality = string(quality)
		segments = append(segments, segment)
		rawScores = append(rawScores, raw.AvgLogProb)
	}

	if err := o.segments.InsertBatch(ctx, segments); err != nil {
		o.failStage(ctx, job.ID, "speech_stage", fmt.Sprintf("failed to persist segments: %v", err))
		return
	}

	overallRaw, overallPct, overallQuality := speech.OverallConfidence(rawScores)
	if _, err := o.jobs.Patch(ctx, job.ID, database.Doc{
		"speech_stage.status":                     string(models.StageCompleted),
		"speech_stage.segments_count":             len(segments),
		"speech_stage.overall_confidence":         overallRaw,
		"speech_stage.overall_confidence_pct":     overallPct,
		"speech_stage.overall_confidence_quality": string(overallQuality),
	}); err != nil {
		log.WithError(err).Error("failed to mark speech stage completed")
		return
	}
	log.WithField("segments", len(segments)).Info("speech transcription completed")
	o.finalize(ctx, job.ID)
}
