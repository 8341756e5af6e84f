package transcription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/g150446/whisper-server/pkg/logger"
)

// ErrLoadInterrupted marks a load aborted by context cancellation (operator
// shutdown) rather than by a failing attempt. Callers that only care about
// availability can treat it like any other load failure; /health surfaces
// the distinct message.
var ErrLoadInterrupted = errors.New("model loading interrupted")

// LoadFunc performs one model load attempt. It is expected to block for the
// full duration of the attempt (download plus initialization).
type LoadFunc func(ctx context.Context) (Model, error)

// Loader loads the transcription model in the background, retrying failed
// attempts with exponential backoff. It is the only writer of the model
// handle and loading status; both are guarded by one mutex so a reader can
// never observe a handle without its matching status.
type Loader struct {
	load        LoadFunc
	maxAttempts int
	retryBase   time.Duration
	logger      *logger.Logger

	mu       sync.RWMutex
	status   Status
	lastErr  string
	model    Model
	finalErr error

	startOnce sync.Once
	done      chan struct{}
}

// NewLoader creates a loader. Start must be called to begin loading.
func NewLoader(load LoadFunc, maxAttempts int, retryBase time.Duration, log *logger.Logger) *Loader {
	return &Loader{
		load:        load,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		logger:      log.Named("model-loader"),
		status:      StatusNotStarted,
		done:        make(chan struct{}),
	}
}

// Start begins loading on a dedicated goroutine. Only one load sequence is
// ever in flight; repeated calls are no-ops. The server keeps accepting
// connections while this runs.
func (l *Loader) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

// run executes the retry loop. Backoff before attempt n (n >= 2) is
// retryBase * 2^(n-2); the first attempt starts immediately.
func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if delay := backoffDelay(attempt, l.retryBase); delay > 0 {
			l.logger.Info("Waiting before retry",
				logger.Duration("delay", delay),
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", l.maxAttempts))
			select {
			case <-ctx.Done():
				l.interrupt(ctx.Err())
				return
			case <-time.After(delay):
			}
		}

		l.setLoading()
		l.logger.Info("Initializing model",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", l.maxAttempts))

		start := time.Now()
		model, err := l.load(ctx)
		elapsed := time.Since(start)

		if err == nil {
			l.install(model)
			l.logger.Info("Model loaded successfully, ready for transcription requests",
				logger.Duration("elapsed", elapsed))
			return
		}

		if ctx.Err() != nil {
			l.interrupt(ctx.Err())
			return
		}

		l.recordError(err)
		l.logger.Warn("Model load attempt failed",
			logger.Int("attempt", attempt),
			logger.Int("attempts_remaining", l.maxAttempts-attempt),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
	}

	l.exhaust()
	l.logger.Error("All model load attempts failed, /transcribe will return 503",
		logger.Int("max_attempts", l.maxAttempts))
}

// backoffDelay returns the scheduled wait before the given 1-based attempt
func backoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return base * (1 << uint(attempt-2))
}

func (l *Loader) setLoading() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = StatusLoading
	l.lastErr = ""
}

func (l *Loader) recordError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastErr = err.Error()
}

func (l *Loader) install(model Model) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model = model
	l.status = StatusLoaded
	l.lastErr = ""
}

func (l *Loader) exhaust() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = StatusFailed
	l.finalErr = fmt.Errorf("model loading failed after %d attempts: %s", l.maxAttempts, l.lastErr)
}

func (l *Loader) interrupt(cause error) {
	err := fmt.Errorf("%w: %v", ErrLoadInterrupted, cause)
	l.mu.Lock()
	l.status = StatusFailed
	l.lastErr = err.Error()
	l.finalErr = err
	l.mu.Unlock()
	l.logger.Warn("Model loading interrupted", logger.Error(err))
}

// Model returns the installed model handle, if any
func (l *Loader) Model() (Model, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.model, l.model != nil
}

// Snapshot returns the current loading state without blocking on any
// in-flight attempt
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{
		Status:      l.status,
		ModelLoaded: l.model != nil,
		LastError:   l.lastErr,
	}
}

// Err returns the terminal load error after the loader has finished, nil
// while loading or on success
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finalErr
}

// Done is closed once the load sequence has reached a terminal state
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Close releases the model handle at shutdown
func (l *Loader) Close() error {
	l.mu.Lock()
	model := l.model
	l.model = nil
	l.status = StatusNotStarted
	l.mu.Unlock()

	if model != nil {
		return model.Close()
	}
	return nil
}
