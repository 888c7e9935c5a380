package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all server settings, read from the environment with
// defaults. A .env file in the working directory is honored when present.
type Config struct {
	Port          string `validate:"required"`
	MaxUploadSize int64  `validate:"gt=0"`

	UploadDir string `validate:"required"`
	FramesDir string `validate:"required"`
	AudioDir  string `validate:"required"`

	MongoURI       string        `validate:"required"`
	MongoDatabase  string        `validate:"required"`
	ConnectTimeout time.Duration `validate:"gt=0"`

	FrameInterval   int    `validate:"min=1,max=120"`
	WorkerPoolSize  int    `validate:"min=1"`
	WhisperModel    string `validate:"required"`
	DetectorCommand string `validate:"required"`

	LogJSON bool
}

func Load() (*Config, error) {
	// Missing .env is fine, the environment itself still applies.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		MaxUploadSize:   getEnvInt64("MAX_UPLOAD_SIZE", 104857600),
		UploadDir:       getEnv("UPLOAD_DIR", "./assets/videos"),
		FramesDir:       getEnv("FRAMES_DIR", "./assets/frames"),
		AudioDir:        getEnv("AUDIO_DIR", "./assets/audio"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "video_faces"),
		ConnectTimeout:  time.Duration(getEnvInt("MONGO_CONNECT_TIMEOUT_MS", 2000)) * time.Millisecond,
		FrameInterval:   getEnvInt("FRAME_INTERVAL", 30),
		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 8),
		WhisperModel:    getEnv("WHISPER_MODEL", "base"),
		DetectorCommand: getEnv("FACE_DETECTOR_COMMAND", "face-detect"),
		LogJSON:         getEnvBool("LOG_JSON", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
