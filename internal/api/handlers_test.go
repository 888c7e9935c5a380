package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/media"
	"github.com/voxsight/voxsight/internal/pipeline"
	"github.com/voxsight/voxsight/internal/speech"
	"github.com/voxsight/voxsight/internal/storage"
	"github.com/voxsight/voxsight/internal/vision"
)

type stubMedia struct {
	frameCount int
	hasAudio   bool
}

func (s *stubMedia) Probe(ctx context.Context, videoPath string) (media.ProbeInfo, error) {
	return media.ProbeInfo{Duration: 5, TotalFrames: 150, HasAudio: s.hasAudio}, nil
}

func (s *stubMedia) SampleFrames(ctx context.Context, videoPath string, interval int, outDir string) ([]media.SampledFrame, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	frames := make([]media.SampledFrame, 0, s.frameCount)
	for i := 0; i < s.frameCount; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", i*interval))
		if err := os.WriteFile(path, []byte("frame bytes"), 0644); err != nil {
			return nil, err
		}
		frames = append(frames, media.SampledFrame{Number: i * interval, Path: path})
	}
	return frames, nil
}

func (s *stubMedia) ExtractAudio(ctx context.Context, videoPath, outPath string) error { return nil }

func (s *stubMedia) CropImage(ctx context.Context, src, dst string, x, y, w, h int) error {
	return os.WriteFile(dst, []byte("face bytes"), 0644)
}

type stubDetector struct{ boxes []vision.Box }

func (s *stubDetector) Detect(ctx context.Context, imagePath string) ([]vision.Box, error) {
	return s.boxes, nil
}

type stubTranscriber struct{ segments []speech.RawSegment }

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath string) ([]speech.RawSegment, error) {
	return s.segments, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := database.NewMemoryStore()
	localStorage, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	orch, err := pipeline.New(pipeline.Options{
		Store:    store,
		Media:    &stubMedia{frameCount: 2, hasAudio: true},
		Detector: &stubDetector{boxes: []vision.Box{{X: 10, Y: 10, W: 40, H: 40}}},
		Model: speech.NewModelCache(func() (speech.Transcriber, error) {
			return &stubTranscriber{segments: []speech.RawSegment{
				{Start: 0, End: 2, Text: "hello", AvgLogProb: -0.25},
				{Start: 2, End: 4, Text: "world", AvgLogProb: -0.75},
			}}, nil
		}),
		Logger:    log,
		FramesDir: t.TempDir(),
		AudioDir:  t.TempDir(),
		PoolSize:  4,
	})
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	t.Cleanup(orch.Close)

	app := &App{
		Log:                  log,
		Orch:                 orch,
		Videos:               database.NewVideoRepo(store),
		Frames:               database.NewFrameRepo(store),
		Segments:             database.NewSegmentRepo(store),
		Storage:              localStorage,
		MaxUploadSize:        10 << 20,
		DefaultFrameInterval: 30,
	}

	server := httptest.NewServer(NewRouter(app))
	t.Cleanup(server.Close)
	return server
}

func uploadVideo(t *testing.T, server *httptest.Server, filename string, extraFields map[string]string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("video", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write([]byte("fake video bytes"))
	for k, v := range extraFields {
		writer.WriteField(k, v)
	}
	writer.Close()

	resp, err := http.Post(server.URL+"/api/videos/upload", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	body["_status_code"] = resp.StatusCode
	return body
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response from %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func waitForJobStatus(t *testing.T, server *httptest.Server, videoID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		code, body := getJSON(t, server.URL+"/api/videos/"+videoID+"/status")
		if code != http.StatusOK {
			t.Fatalf("Status endpoint returned %d", code)
		}
		if body["status"] == want {
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for status %s", want)
	return nil
}

func TestPing(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestUploadAndStatus(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	if body["_status_code"] != http.StatusAccepted {
		t.Fatalf("Expected 202, got %v (%v)", body["_status_code"], body)
	}
	if body["status"] != "uploaded" {
		t.Errorf("Expected upload ack status uploaded, got %v", body["status"])
	}
	videoID, _ := body["video_id"].(string)
	if videoID == "" {
		t.Fatal("Expected a video_id in the upload response")
	}
	if _, ok := body["next_steps"]; !ok {
		t.Error("Expected next_steps hints in the upload response")
	}

	done := waitForJobStatus(t, server, videoID, "completed")
	face, _ := done["face_extraction"].(map[string]any)
	if face["status"] != "completed" {
		t.Errorf("Expected face stage completed, got %v", face["status"])
	}
	spch, _ := done["speech_transcription"].(map[string]any)
	if spch["status"] != "completed" {
		t.Errorf("Expected speech stage completed, got %v", spch["status"])
	}
}

func TestUpload_RejectsNonVideo(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "notes.txt", nil)
	if body["_status_code"] != http.StatusBadRequest {
		t.Errorf("Expected 400, got %v", body["_status_code"])
	}
	if body["error"] == nil {
		t.Error("Expected an error message")
	}
}

func TestUpload_InvalidFrameInterval(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", map[string]string{"frame_interval": "500"})
	if body["_status_code"] != http.StatusBadRequest {
		t.Errorf("Expected 400, got %v", body["_status_code"])
	}
}

func TestStatus_NotFound(t *testing.T) {
	server := newTestServer(t)

	code, body := getJSON(t, server.URL+"/api/videos/does-not-exist/status")
	if code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
	if body["error"] == nil {
		t.Error("Expected an error message")
	}
}

func TestTranscription(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	code, tr := getJSON(t, server.URL+"/api/videos/"+videoID+"/transcription")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if tr["ready"] != true {
		t.Fatalf("Expected ready transcription, got %v", tr)
	}
	segments, _ := tr["segments"].([]any)
	if len(segments) != 2 {
		t.Errorf("Expected 2 segments, got %d", len(segments))
	}
	formatted, _ := tr["formatted_transcription"].(string)
	want := "[0.00s - 2.00s]: hello\n[2.00s - 4.00s]: world"
	if formatted != want {
		t.Errorf("Formatted transcription mismatch:\n got %q\nwant %q", formatted, want)
	}
	if tr["overall_confidence_pct"] != float64(80) {
		t.Errorf("Expected overall pct 80, got %v", tr["overall_confidence_pct"])
	}
}

func TestFrames(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	code, frames := getJSON(t, server.URL+"/api/videos/"+videoID+"/frames")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	records, _ := frames["frames"].([]any)
	if len(records) != 2 {
		t.Errorf("Expected 2 frame records, got %d", len(records))
	}
	if frames["total_frames"] != float64(2) {
		t.Errorf("Expected total_frames 2, got %v", frames["total_frames"])
	}

	code, faces := getJSON(t, server.URL+"/api/videos/"+videoID+"/frames?faces_only=true")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	faceRecords, _ := faces["frames"].([]any)
	if len(faceRecords) != 2 {
		t.Errorf("Expected 2 face frames, got %d", len(faceRecords))
	}
}

func TestDownloadFrames(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	resp, err := http.Get(server.URL + "/api/videos/" + videoID + "/frames/download")
	if err != nil {
		t.Fatalf("Download request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %s", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Response is not a valid zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("Expected 2 frame images in archive, got %d", len(zr.File))
	}

	resp2, err := http.Get(server.URL + "/api/videos/" + videoID + "/frames/download?faces_only=true")
	if err != nil {
		t.Fatalf("Download request failed: %v", err)
	}
	defer resp2.Body.Close()
	data2, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	zr2, err := zip.NewReader(bytes.NewReader(data2), int64(len(data2)))
	if err != nil {
		t.Fatalf("Response is not a valid zip: %v", err)
	}
	if len(zr2.File) != 2 {
		t.Errorf("Expected 2 face images in archive, got %d", len(zr2.File))
	}
	for _, f := range zr2.File {
		if !strings.HasPrefix(f.Name, "face_") {
			t.Errorf("Expected a face crop entry, got %s", f.Name)
		}
	}
}

func TestTranscribeOnly(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	resp, err := http.Post(server.URL+"/api/videos/"+videoID+"/transcribe", "application/json", nil)
	if err != nil {
		t.Fatalf("Transcribe request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	waitForJobStatus(t, server, videoID, "completed")

	code, tr := getJSON(t, server.URL+"/api/videos/"+videoID+"/transcription")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	segments, _ := tr["segments"].([]any)
	if len(segments) != 2 {
		t.Errorf("Expected segments replaced, not appended: got %d", len(segments))
	}
}

func TestTranscribeOnly_NotFound(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/videos/does-not-exist/transcribe", "application/json", nil)
	if err != nil {
		t.Fatalf("Transcribe request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestReprocess_InvalidInterval(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	resp, err := http.Post(server.URL+"/api/videos/"+videoID+"/reprocess?frame_interval=0", "application/json", nil)
	if err != nil {
		t.Fatalf("Reprocess request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestReprocess(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	resp, err := http.Post(server.URL+"/api/videos/"+videoID+"/reprocess?frame_interval=15", "application/json", nil)
	if err != nil {
		t.Fatalf("Reprocess request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	done := waitForJobStatus(t, server, videoID, "completed")
	if done["frame_interval"] != float64(15) {
		t.Errorf("Expected frame_interval 15, got %v", done["frame_interval"])
	}
}

func TestDelete(t *testing.T) {
	server := newTestServer(t)

	body := uploadVideo(t, server, "clip.mp4", nil)
	videoID := body["video_id"].(string)
	waitForJobStatus(t, server, videoID, "completed")

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/videos/"+videoID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var summary map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode delete summary: %v", err)
	}
	if summary["frames_removed"] != float64(2) {
		t.Errorf("Expected 2 frames removed, got %v", summary["frames_removed"])
	}
	if summary["segments_removed"] != float64(2) {
		t.Errorf("Expected 2 segments removed, got %v", summary["segments_removed"])
	}

	code, _ := getJSON(t, server.URL+"/api/videos/"+videoID+"/status")
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
}

func TestList(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 3; i++ {
		uploadVideo(t, server, "clip.mp4", nil)
	}

	code, body := getJSON(t, server.URL+"/api/videos/?skip=1&limit=2")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["total"] != float64(3) {
		t.Errorf("Expected total 3, got %v", body["total"])
	}
	videos, _ := body["videos"].([]any)
	if len(videos) != 2 {
		t.Errorf("Expected 2 videos in page, got %d", len(videos))
	}
}
