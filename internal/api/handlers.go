package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/g150446/whisper-server/internal/config"
	"github.com/g150446/whisper-server/internal/transcription"
	"github.com/g150446/whisper-server/pkg/logger"
	"github.com/google/uuid"
)

// Handler contains the API handlers
type Handler struct {
	service *transcription.Service
	loader  *transcription.Loader
	config  *config.Config
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(service *transcription.Service, loader *transcription.Loader, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		loader:  loader,
		config:  cfg,
		logger:  log.Named("api-handler"),
	}
}

// HealthResponse describes the model loading state for load balancers and
// operators. Always returned with status 200.
type HealthResponse struct {
	Status             string               `json:"status"`
	ModelLoaded        bool                 `json:"model_loaded"`
	ModelLoadingStatus transcription.Status `json:"model_loading_status"`
	Error              string               `json:"error,omitempty"`
	Message            string               `json:"message"`
}

// TranscribeResponse is the success payload of POST /transcribe
type TranscribeResponse struct {
	Transcription    string `json:"transcription"`
	DetectedLanguage string `json:"detected_language"`
}

// ErrorResponse carries a failure detail message
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// GetHealth reports the current readiness snapshot. It never blocks and
// never triggers a load attempt.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.loader.Snapshot()

	resp := HealthResponse{
		ModelLoaded:        snapshot.ModelLoaded,
		ModelLoadingStatus: snapshot.Status,
	}
	if snapshot.ModelLoaded {
		resp.Status = "ready"
		resp.Message = "Model is loaded and ready for transcription"
	} else {
		resp.Status = "not_ready"
		resp.Error = snapshot.LastError
		resp.Message = "Model is still loading or failed to load. Check model_loading_status for details."
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Transcribe accepts a multipart audio upload, runs it through the model,
// and returns the recognized text plus detected language. Model-unavailable
// is reported as 503 before any of the upload is touched; per-request
// failures are 500.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.With(logger.String("request_id", uuid.NewString()))

	// Short-circuit before parsing the multipart body so an unavailable
	// model costs no file I/O at all.
	if _, ok := h.loader.Model(); !ok {
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Detail: "Whisper model is not loaded or failed to initialize.",
		})
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Detail: "Missing or unreadable audio_file upload field",
		})
		return
	}
	defer file.Close()

	log.Info("Processing audio upload",
		logger.String("filename", header.Filename),
		logger.Int64("size_bytes", header.Size))

	result, err := h.service.Transcribe(r.Context(), file)
	if err != nil {
		if errors.Is(err, transcription.ErrModelNotLoaded) {
			WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Detail: "Whisper model is not loaded or failed to initialize.",
			})
			return
		}
		log.Error("Transcription failed", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Detail: fmt.Sprintf("Transcription failed: %v", err),
		})
		return
	}

	log.Info("Transcription completed",
		logger.String("detected_language", result.Language),
		logger.Int("segments", len(result.Segments)),
		logger.Duration("elapsed", time.Since(start)))

	WriteJSON(w, http.StatusOK, TranscribeResponse{
		Transcription:    result.Text(),
		DetectedLanguage: result.Language,
	})
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
