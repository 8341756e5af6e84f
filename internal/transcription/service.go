package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/g150446/whisper-server/pkg/logger"
)

// ErrModelNotLoaded signals that no model handle is installed. The API layer
// maps it to 503 so callers can tell "not ready yet" from a per-request
// transcription failure.
var ErrModelNotLoaded = errors.New("whisper model is not loaded or failed to initialize")

// Service turns one uploaded audio stream into one transcription result.
// Heavy model invocations run behind a bounded worker pool so a slow
// transcription cannot stall other requests' I/O; requests beyond the pool
// size queue for a slot rather than being rejected.
type Service struct {
	loader     *Loader
	slots      chan struct{}
	scratchDir string
	logger     *logger.Logger
}

// NewService creates a transcription service backed by the given loader.
// scratchDir may be empty to use the system temp directory.
func NewService(loader *Loader, workers int, scratchDir string, log *logger.Logger) *Service {
	return &Service{
		loader:     loader,
		slots:      make(chan struct{}, workers),
		scratchDir: scratchDir,
		logger:     log.Named("transcription"),
	}
}

// Transcribe stages the upload to a scratch file, runs the model against it
// on a worker slot, and returns the result. The scratch file is removed on
// every exit path. When no model is installed it fails immediately, before
// any file I/O.
func (s *Service) Transcribe(ctx context.Context, upload io.Reader) (*Result, error) {
	model, ok := s.loader.Model()
	if !ok {
		return nil, ErrModelNotLoaded
	}

	path, err := s.stageUpload(upload)
	if err != nil {
		return nil, err
	}
	defer s.removeScratch(path)

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.slots }()

	result, err := model.Transcribe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("model inference failed: %w", err)
	}
	return result, nil
}

// stageUpload persists the uploaded bytes in full to a freshly created,
// uniquely named scratch file and returns its path
func (s *Service) stageUpload(upload io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.scratchDir, "whisper-upload-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}

	if _, err := io.Copy(tmp, upload); err != nil {
		tmp.Close()
		s.removeScratch(tmp.Name())
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.removeScratch(tmp.Name())
		return "", fmt.Errorf("failed to close scratch file: %w", err)
	}

	s.logger.Debug("Staged upload to scratch file", logger.String("path", tmp.Name()))
	return tmp.Name(), nil
}

// removeScratch deletes a scratch file. Deletion failure is logged only:
// by the time cleanup runs the request outcome is already determined.
func (s *Service) removeScratch(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Could not remove scratch file",
			logger.String("path", path),
			logger.Error(err))
	}
}
