package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNoAudioTrack is returned when audio extraction is requested for a video
// without an audio stream.
var ErrNoAudioTrack = errors.New("video has no audio track")

// ProbeInfo summarizes a video container.
type ProbeInfo struct {
	Duration    float64
	TotalFrames int
	HasAudio    bool
}

// SampledFrame is one extracted frame image and its source frame number.
type SampledFrame struct {
	Number int
	Path   string
}

// FFmpeg wraps the ffmpeg/ffprobe binaries for frame sampling, audio
// extraction and face cropping.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	log         *logrus.Logger
}

func New(log *logrus.Logger) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, log: log}, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration, frame count and audio presence.
func (f *FFmpeg) Probe(ctx context.Context, videoPath string) (ProbeInfo, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return ProbeInfo{}, fmt.Errorf("video file not accessible: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,nb_frames,avg_frame_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		videoPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to probe video: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to parse probe output: %w", err)
	}

	info := ProbeInfo{}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	for _, stream := range out.Streams {
		switch stream.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
				info.TotalFrames = n
			} else if fps := parseFrameRate(stream.AvgFrameRate); fps > 0 && info.Duration > 0 {
				info.TotalFrames = int(info.Duration * fps)
			}
		}
	}

	if info.Duration <= 0 && info.TotalFrames == 0 {
		return ProbeInfo{}, fmt.Errorf("unable to decode video stream in %s", filepath.Base(videoPath))
	}
	return info, nil
}

func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// SampleFrames extracts every interval-th frame of the video into outDir and
// returns the frame images in increasing source frame number order.
func (f *FFmpeg) SampleFrames(ctx context.Context, videoPath string, interval int, outDir string) ([]SampledFrame, error) {
	if interval < 1 {
		interval = 1
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %w", err)
	}

	pattern := filepath.Join(outDir, "frame_%06d.jpg")
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-i", videoPath,
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, interval),
		"-vsync", "vfr",
		"-q:v", "2",
		pattern)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to sample frames: %w (%s)", err, lastLine(stderr.String()))
	}

	paths, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("failed to list sampled frames: %w", err)
	}
	sort.Strings(paths)

	frames := make([]SampledFrame, 0, len(paths))
	for i, path := range paths {
		frames = append(frames, SampledFrame{Number: i * interval, Path: path})
	}
	return frames, nil
}

// ExtractAudio writes the audio track as 16 kHz mono PCM wav. Callers should
// Probe first; a video without an audio stream yields ErrNoAudioTrack.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "does not contain any stream") ||
			strings.Contains(msg, "Output file does not contain any stream") {
			return ErrNoAudioTrack
		}
		return fmt.Errorf("failed to extract audio: %w (%s)", err, lastLine(msg))
	}
	return nil
}

// CropImage cuts the (x, y, w, h) region out of src into dst. Width and
// height are clamped to the image bounds so boxes expanded by a margin stay
// valid near the edges.
func (f *FFmpeg) CropImage(ctx context.Context, src, dst string, x, y, w, h int) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", src,
		"-vf", fmt.Sprintf(`crop=min(%d\,iw-%d):min(%d\,ih-%d):%d:%d`, w, x, h, y, x, y),
		"-q:v", "2",
		dst)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to crop face: %w (%s)", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
