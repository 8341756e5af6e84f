package whisper

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/g150446/whisper-server/internal/config"
	"github.com/g150446/whisper-server/internal/transcription"
	"github.com/g150446/whisper-server/pkg/logger"
	whispercpp "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Fixed execution profile, chosen for broad hardware compatibility
// (M1 Mac and Raspberry Pi 5 alike). Not configurable per request.
const (
	Device      = "cpu"
	ComputeType = "float32"
)

// Engine wraps a loaded whisper.cpp model behind the transcription.Model
// interface. The underlying model handle is safe for concurrent read-only
// use; each call gets its own decoding context.
type Engine struct {
	model  whispercpp.Model
	cfg    config.WhisperConfig
	logger *logger.Logger
}

// NewLoadFunc returns the load function wired into the background loader:
// ensure the ggml weights are on disk, then initialize the model.
func NewLoadFunc(cfg *config.Config, log *logger.Logger) transcription.LoadFunc {
	wcfg := cfg.Whisper
	downloader := NewDownloader(
		cfg.Storage.ModelsDir,
		time.Duration(wcfg.DownloadTimeoutSecs)*time.Second,
		log,
	)

	return func(ctx context.Context) (transcription.Model, error) {
		path, err := downloader.Ensure(ctx, wcfg.Model)
		if err != nil {
			return nil, err
		}

		log.Info("Loading whisper model",
			logger.String("model", wcfg.Model),
			logger.String("path", path),
			logger.String("device", Device),
			logger.String("compute_type", ComputeType))

		model, err := whispercpp.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize whisper model %s: %w", wcfg.Model, err)
		}

		return &Engine{
			model:  model,
			cfg:    wcfg,
			logger: log.Named("whisper"),
		}, nil
	}
}

// Transcribe decodes the audio file, optionally gates out non-speech spans,
// runs inference with the fixed decoding configuration, and drains the
// segment sequence in order.
func (e *Engine) Transcribe(ctx context.Context, path string) (*transcription.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, err := DecodeWAV(path)
	if err != nil {
		return nil, err
	}

	if e.cfg.VADEnabled {
		kept := FilterSilence(samples, SampleRate, e.cfg.VADThreshold)
		e.logger.Debug("Voice activity filter applied",
			logger.Int("samples_in", len(samples)),
			logger.Int("samples_out", len(kept)))
		samples = kept
	}

	result := &transcription.Result{Language: e.cfg.Language}
	if len(samples) == 0 {
		// Nothing but silence; no point invoking the model
		return result, nil
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	if err := wctx.SetLanguage(e.cfg.Language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", e.cfg.Language, err)
	}
	wctx.SetTranslate(false)
	wctx.SetBeamSize(e.cfg.BeamSize)

	start := time.Now()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper inference failed: %w", err)
	}

	for {
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read segment: %w", err)
		}
		result.Segments = append(result.Segments, transcription.Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}

	if detected := wctx.DetectedLanguage(); detected != "" {
		result.Language = detected
	}

	e.logger.Debug("Transcription completed",
		logger.Int("segments", len(result.Segments)),
		logger.String("language", result.Language),
		logger.Duration("elapsed", time.Since(start)))

	return result, nil
}

// Close releases the underlying model
func (e *Engine) Close() error {
	return e.model.Close()
}
