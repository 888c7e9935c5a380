package api

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/models"
	"github.com/voxsight/voxsight/internal/pipeline"
	"github.com/voxsight/voxsight/internal/storage"
)

// allowedExtensions backs the upload check when the client sends a generic
// content type instead of video/*.
var allowedExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type App struct {
	Log      *logrus.Logger
	Orch     *pipeline.Orchestrator
	Videos   *database.VideoRepo
	Frames   *database.FrameRepo
	Segments *database.SegmentRepo
	Storage  storage.Storage

	MaxUploadSize        int64
	DefaultFrameInterval int
}

// UploadHandler accepts a multipart video, stores it, and queues both
// processing stages. It answers 202 before any processing starts.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !allowedExtensions[ext] {
			app.writeError(w, http.StatusBadRequest, "only video files are allowed")
			return
		}
		contentType = "video/" + strings.TrimPrefix(ext, ".")
	}

	frameInterval := app.DefaultFrameInterval
	if v := r.FormValue("frame_interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			app.writeError(w, http.StatusBadRequest, "frame_interval must be between 1 and 120")
			return
		}
		frameInterval = n
	}

	filename, err := app.Storage.SaveFile(file, header.Filename)
	if err != nil {
		app.Log.WithError(err).Error("failed to save uploaded video")
		app.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	job := models.NewVideoJob(header.Filename, app.Storage.GetFilePath(filename), header.Size, contentType, frameInterval)
	if err := app.Orch.Submit(r.Context(), job); err != nil {
		if rmErr := app.Storage.DeleteFile(filename); rmErr != nil {
			app.Log.WithError(rmErr).WithField("filename", filename).Warn("failed to remove orphaned upload")
		}
		app.Log.WithError(err).Error("failed to create video job")
		app.writeError(w, http.StatusInternalServerError, "failed to save video information")
		return
	}

	app.writeJSON(w, http.StatusAccepted, map[string]any{
		"video_id":       job.ID,
		"filename":       job.Filename,
		"status":         string(models.StatusUploaded),
		"frame_interval": job.FrameInterval,
		"message":        "video accepted, face extraction and transcription are running in the background",
		"next_steps": map[string]string{
			"status":        fmt.Sprintf("/api/videos/%s/status", job.ID),
			"transcription": fmt.Sprintf("/api/videos/%s/transcription", job.ID),
			"frames":        fmt.Sprintf("/api/videos/%s/frames", job.ID),
		},
	})
}

// StatusHandler returns the full job record including both stage blocks.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.fetchJob(w, r)
	if !ok {
		return
	}
	app.writeJSON(w, http.StatusOK, job)
}

// TranscriptionHandler returns the stored segments once the speech stage has
// completed. Before that it reports the stage state instead of a partial
// transcript.
func (app *App) TranscriptionHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.fetchJob(w, r)
	if !ok {
		return
	}

	if job.SpeechStage.Status != models.StageCompleted {
		app.writeJSON(w, http.StatusOK, map[string]any{
			"video_id": job.ID,
			"status":   string(job.SpeechStage.Status),
			"ready":    false,
			"error":    job.SpeechStage.Error,
			"message":  "transcription is not ready yet",
		})
		return
	}

	segments, err := app.Segments.ListByVideo(r.Context(), job.ID)
	if err != nil {
		app.Log.WithError(err).Error("failed to load transcription segments")
		app.writeError(w, http.StatusInternalServerError, "failed to load transcription")
		return
	}

	formatted := make([]string, 0, len(segments))
	for _, s := range segments {
		formatted = append(formatted, s.Formatted())
	}

	app.writeJSON(w, http.StatusOK, map[string]any{
		"video_id":                   job.ID,
		"status":                     string(job.SpeechStage.Status),
		"ready":                      true,
		"segments":                   segments,
		"formatted_transcription":    strings.Join(formatted, "\n"),
		"segments_count":             job.SpeechStage.SegmentsCount,
		"overall_confidence":         job.SpeechStage.OverallConfidence,
		"overall_confidence_pct":     job.SpeechStage.OverallPct,
		"overall_confidence_quality": job.SpeechStage.OverallQuality,
	})
}

// FramesHandler lists a video's frame records with pagination and summary
// counts. faces_only=true narrows the listing to frames with a saved crop.
func (app *App) FramesHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.fetchJob(w, r)
	if !ok {
		return
	}

	skip, limit := pagination(r, 50)
	facesOnly := r.URL.Query().Get("faces_only") == "true"

	frames, err := app.Frames.ListByVideo(r.Context(), job.ID, facesOnly, skip, limit)
	if err != nil {
		app.Log.WithError(err).Error("failed to load frame records")
		app.writeError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}
	total, err := app.Frames.CountByVideo(r.Context(), job.ID, facesOnly)
	if err != nil {
		app.Log.WithError(err).Error("failed to count frame records")
		app.writeError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}

	app.writeJSON(w, http.StatusOK, map[string]any{
		"video_id":       job.ID,
		"status":         string(job.FaceStage.Status),
		"total_frames":   total,
		"faces_detected": job.FaceStage.FacesDetected,
		"skip":           skip,
		"limit":          limit,
		"frames":         frames,
	})
}

// DownloadFramesHandler streams the stored frame images as a zip archive.
// faces_only=true packs the cropped face images instead. Images whose files
// have gone missing are skipped, matching delete's best-effort stance.
func (app *App) DownloadFramesHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.fetchJob(w, r)
	if !ok {
		return
	}

	facesOnly := r.URL.Query().Get("faces_only") == "true"
	frames, err := app.Frames.ListByVideo(r.Context(), job.ID, facesOnly, 0, 0)
	if err != nil {
		app.Log.WithError(err).Error("failed to load frame records")
		app.writeError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}

	kind := "frames"
	if facesOnly {
		kind = "faces"
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="video_%s_%s.zip"`, job.ID, kind))

	zw := zip.NewWriter(w)
	defer zw.Close()
	for _, frame := range frames {
		path := frame.FramePath
		if facesOnly {
			path = frame.FacePath
		}
		if path == "" {
			continue
		}
		src, err := os.Open(path)
		if err != nil {
			continue
		}
		entry, err := zw.Create(filepath.Base(path))
		if err != nil {
			src.Close()
			app.Log.WithError(err).WithField("video_id", job.ID).Error("failed to write archive entry")
			return
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			app.Log.WithError(err).WithField("video_id", job.ID).Error("failed to stream frame image")
			return
		}
		src.Close()
	}
}

// TranscribeOnlyHandler re-runs speech transcription for an existing video
// without touching the face stage.
func (app *App) TranscribeOnlyHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	job, err := app.Orch.Retranscribe(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.writeError(w, http.StatusNotFound, "video not found")
			return
		}
		app.Log.WithError(err).WithField("video_id", videoID).Error("retranscribe failed")
		app.writeError(w, http.StatusInternalServerError, "failed to restart transcription")
		return
	}

	app.writeJSON(w, http.StatusAccepted, map[string]any{
		"video_id": job.ID,
		"status":   string(job.Status),
		"message":  "speech transcription requeued",
	})
}

// ReprocessHandler re-runs face extraction with a new sampling interval.
func (app *App) ReprocessHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	frameInterval := 0
	if v := r.URL.Query().Get("frame_interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 120 {
			app.writeError(w, http.StatusBadRequest, "frame_interval must be between 1 and 120")
			return
		}
		frameInterval = n
	}

	job, err := app.Orch.Reprocess(r.Context(), videoID, frameInterval)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.writeError(w, http.StatusNotFound, "video not found")
			return
		}
		app.Log.WithError(err).WithField("video_id", videoID).Error("reprocess failed")
		app.writeError(w, http.StatusInternalServerError, "failed to reprocess video")
		return
	}

	app.writeJSON(w, http.StatusAccepted, map[string]any{
		"video_id":       job.ID,
		"status":         string(job.Status),
		"frame_interval": job.FrameInterval,
		"message":        "face extraction requeued",
	})
}

// DeleteHandler removes the job and everything derived from it.
func (app *App) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	summary, err := app.Orch.Delete(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.writeError(w, http.StatusNotFound, "video not found")
			return
		}
		app.Log.WithError(err).WithField("video_id", videoID).Error("delete failed")
		app.writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	app.writeJSON(w, http.StatusOK, summary)
}

// ListHandler pages through all job records, newest last.
func (app *App) ListHandler(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r, 20)

	jobs, err := app.Videos.List(r.Context(), skip, limit)
	if err != nil {
		app.Log.WithError(err).Error("failed to list videos")
		app.writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	total, err := app.Videos.Count(r.Context())
	if err != nil {
		app.Log.WithError(err).Error("failed to count videos")
		app.writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}

	app.writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"skip":   skip,
		"limit":  limit,
		"videos": jobs,
	})
}

func (app *App) fetchJob(w http.ResponseWriter, r *http.Request) (*models.VideoJob, bool) {
	videoID := chi.URLParam(r, "id")
	job, err := app.Orch.GetStatus(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.writeError(w, http.StatusNotFound, "video not found")
		} else {
			app.Log.WithError(err).WithField("video_id", videoID).Error("failed to load video")
			app.writeError(w, http.StatusInternalServerError, "failed to load video")
		}
		return nil, false
	}
	return job, true
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Log.WithError(err).Error("failed to encode response")
	}
}

func (app *App) writeError(w http.ResponseWriter, status int, message string) {
	app.writeJSON(w, status, map[string]string{"error": message})
}

func pagination(r *http.Request, defaultLimit int) (skip, limit int64) {
	limit = int64(defaultLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			skip = n
		}
	}
	return skip, limit
}
