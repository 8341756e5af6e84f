package whisper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/g150446/whisper-server/pkg/logger"
)

// DefaultWeightsBaseURL is the upstream repository for ggml whisper weights
const DefaultWeightsBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Downloader fetches ggml model weights into the local models directory.
// Each Ensure call is a single attempt with a hard timeout; the retry
// envelope belongs to the model loader.
type Downloader struct {
	BaseURL   string
	ModelsDir string
	Timeout   time.Duration
	Client    *http.Client
	logger    *logger.Logger
}

// NewDownloader creates a downloader for the given models directory
func NewDownloader(modelsDir string, timeout time.Duration, log *logger.Logger) *Downloader {
	return &Downloader{
		BaseURL:   DefaultWeightsBaseURL,
		ModelsDir: modelsDir,
		Timeout:   timeout,
		Client:    http.DefaultClient,
		logger:    log.Named("weights-downloader"),
	}
}

// WeightsPath returns the on-disk location for a model's ggml weights
func WeightsPath(modelsDir, model string) string {
	return filepath.Join(modelsDir, fmt.Sprintf("ggml-%s.bin", model))
}

// Ensure returns the path to the model's weights, downloading them first if
// they are not already present. Partial downloads are staged to a temp file
// and renamed into place only on success, so an interrupted fetch never
// leaves truncated weights behind.
func (d *Downloader) Ensure(ctx context.Context, model string) (string, error) {
	path := WeightsPath(d.ModelsDir, model)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		d.logger.Debug("Model weights already present", logger.String("path", path))
		return path, nil
	}

	if err := os.MkdirAll(d.ModelsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory %s: %w", d.ModelsDir, err)
	}

	url := fmt.Sprintf("%s/ggml-%s.bin", d.BaseURL, model)
	d.logger.Info("Downloading model weights (this may take several minutes)",
		logger.String("model", model),
		logger.String("url", url),
		logger.Duration("timeout", d.Timeout))

	dlCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build weights request: %w", err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weights download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weights download failed: unexpected status %s for %s", resp.Status, url)
	}

	tmp, err := os.CreateTemp(d.ModelsDir, "ggml-*.partial")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("weights download failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize staging file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to install weights at %s: %w", path, err)
	}

	d.logger.Info("Model weights downloaded",
		logger.String("path", path),
		logger.Int64("bytes", written))
	return path, nil
}
