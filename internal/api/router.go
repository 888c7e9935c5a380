package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api/videos", func(r chi.Router) {
		r.Get("/", app.ListHandler)
		r.Post("/upload", app.UploadHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", app.StatusHandler)
			r.Get("/transcription", app.TranscriptionHandler)
			r.Get("/frames", app.FramesHandler)
			r.Get("/frames/download", app.DownloadFramesHandler)
			r.Post("/reprocess", app.ReprocessHandler)
			r.Post("/transcribe", app.TranscribeOnlyHandler)
			r.Delete("/", app.DeleteHandler)
		})
	})

	return r
}
