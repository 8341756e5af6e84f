package api

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/g150446/whisper-server/internal/config"
	"github.com/g150446/whisper-server/internal/transcription"
	"github.com/g150446/whisper-server/pkg/logger"
)

// Router assembles the HTTP surface of the server
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(service *transcription.Service, loader *transcription.Loader, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler: NewHandler(service, loader, cfg, log),
		config:  cfg,
		logger:  log.Named("router"),
	}
}

// Routes returns the assembled handler
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	if pattern := r.config.Server.CORSAllowedOriginRegex; pattern != "" {
		originRe := regexp.MustCompile(pattern) // validated at start-up
		mux.Use(cors.Handler(cors.Options{
			AllowOriginFunc: func(req *http.Request, origin string) bool {
				return originRe.MatchString(origin)
			},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	mux.Get("/health", r.handler.GetHealth)
	mux.Post("/transcribe", r.handler.Transcribe)

	return mux
}
