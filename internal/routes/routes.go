package routes

import (
	"net/http"
	"time"

	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/handlers"
	"github.com/agjmills/gallery/internal/middleware"
	"github.com/agjmills/gallery/internal/storage"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Setup registers the gallery API on r.
//
// Read endpoints (serving media, listing, share resolution) are open.
// Everything that writes to the object store or the metadata database sits
// behind a per-client rate limiter. The client address is taken from
// X-Real-IP / X-Forwarded-For only when the connection comes from one of
// cfg.TrustedProxies.
func Setup(r chi.Router, db *gorm.DB, cfg *config.Config, store storage.ObjectStore, svc *gallery.Service, version string) {
	uploadHandler := handlers.NewUploadHandler(svc, cfg)
	serveHandler := handlers.NewServeHandler(svc)
	imageHandler := handlers.NewImageHandler(svc)
	folderHandler := handlers.NewFolderHandler(svc)
	shareHandler := handlers.NewShareHandler(svc)
	healthHandler := handlers.NewHealthHandler(db, store, svc, version)

	writeLimiter := tollbooth.NewLimiter(cfg.UploadRateLimit, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 10 * time.Minute,
	})
	// A chunked video posts one request per chunk in quick succession
	writeLimiter.SetBurst(max(1, int(cfg.UploadRateLimit)))
	writeLimiter.SetMessage("Too many requests. Please try again later.")
	trusted := middleware.ParseTrustedCIDRs(cfg.TrustedProxies)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(middleware.NotFoundHandler)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler)

	r.Get("/serve/{sessionId}/{filename}", serveHandler.ServeChunked)
	r.Get("/media/{filename}", serveHandler.ServeMedia)

	r.Route("/api", func(r chi.Router) {
		r.Get("/images", imageHandler.List)
		r.Get("/images/{id}", imageHandler.Get)
		r.Get("/folders", folderHandler.List)
		r.Get("/folders/{id}", folderHandler.Get)
		r.Get("/share/{type}/{ids}", shareHandler.Resolve)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(writeLimiter, trusted))

			r.Post("/upload/chunk", uploadHandler.UploadChunk)
			r.Post("/upload/assemble", uploadHandler.Assemble)
			r.Post("/images/upload", uploadHandler.UploadImages)

			r.Patch("/images/toggle-public", imageHandler.TogglePublic)
			r.Post("/images/move-folder", imageHandler.MoveFolder)
			r.Post("/images/delete", imageHandler.Delete)

			r.Post("/folders", folderHandler.Create)
			r.Patch("/folders/{id}", folderHandler.Update)
			r.Delete("/folders/{id}", folderHandler.Delete)

			r.Post("/share", shareHandler.Share)
			r.Post("/download", shareHandler.Download)
		})
	})
}

// Handler builds a complete router with the standard middleware chain.
func Handler(db *gorm.DB, cfg *config.Config, store storage.ObjectStore, svc *gallery.Service, version string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.RecoverMiddleware)
	r.Use(middleware.SecurityHeaders)

	Setup(r, db, cfg, store, svc, version)
	return r
}
