package main

import (
	"context"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/voxsight/voxsight/internal/api"
	"github.com/voxsight/voxsight/internal/config"
	"github.com/voxsight/voxsight/internal/database"
	"github.com/voxsight/voxsight/internal/media"
	"github.com/voxsight/voxsight/internal/pipeline"
	"github.com/voxsight/voxsight/internal/speech"
	"github.com/voxsight/voxsight/internal/storage"
	"github.com/voxsight/voxsight/internal/vision"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	localStorage, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	for _, dir := range []string{cfg.FramesDir, cfg.AudioDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("failed to create asset directory")
		}
	}

	store := database.Connect(database.Config{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.ConnectTimeout,
	}, log)
	defer store.Close(context.Background())

	ffmpeg, err := media.New(log)
	if err != nil {
		log.WithError(err).Fatal("ffmpeg is required")
	}

	detector, err := vision.NewCommandDetector(cfg.DetectorCommand)
	if err != nil {
		log.WithError(err).Fatal("face detector is required")
	}

	model := speech.NewModelCache(func() (speech.Transcriber, error) {
		return speech.NewWhisperCommand(cfg.WhisperModel, log)
	})

	orch, err := pipeline.New(pipeline.Options{
		Store:     store,
		Media:     ffmpeg,
		Detector:  detector,
		Model:     model,
		Logger:    log,
		FramesDir: cfg.FramesDir,
		AudioDir:  cfg.AudioDir,
		PoolSize:  cfg.WorkerPoolSize,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize pipeline")
	}
	defer orch.Close()

	app := &api.App{
		Log:                  log,
		Orch:                 orch,
		Videos:               database.NewVideoRepo(store),
		Frames:               database.NewFrameRepo(store),
		Segments:             database.NewSegmentRepo(store),
		Storage:              localStorage,
		MaxUploadSize:        cfg.MaxUploadSize,
		DefaultFrameInterval: cfg.FrameInterval,
	}

	router := api.NewRouter(app)

	log.WithFields(logrus.Fields{
		"port":           cfg.Port,
		"upload_dir":     cfg.UploadDir,
		"frame_interval": cfg.FrameInterval,
		"workers":        cfg.WorkerPoolSize,
		"fallback_store": store.Fallback(),
	}).Info("server starting")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
