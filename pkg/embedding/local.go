package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seydt/mnemo/pkg/logger"
)

const (
	localDims          = 384
	defaultIdleTimeout = 5 * time.Minute
	defaultPollEvery   = time.Minute
)

// embedModel is the loaded-inference-model handle behind Local. The ONNX
// implementation is the production one; tests inject fakes through the
// loader hook.
type embedModel interface {
	embed(text string) ([]float32, error)
	close() error
}

// LocalConfig configures the local ONNX provider.
type LocalConfig struct {
	// ModelDir must contain model.onnx and tokenizer.json.
	ModelDir string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's platform default lookup.
	LibraryPath string
	// IdleTimeout is how long the model may sit unused before it is
	// unloaded. Zero means 5 minutes.
	IdleTimeout time.Duration
	// PollEvery is the unload check interval. Zero means 1 minute.
	PollEvery time.Duration

	loader func() (embedModel, error)
}

// Local embeds with an on-disk ONNX model (E5 family, 384 dims).
//
// The model is loaded lazily on the first embed call and unloaded again by a
// background task once it has been idle past the timeout. Idle processes pay
// zero resident model memory at the price of one reload on the next request.
// The model handle is guarded by a mutex, so concurrent first calls cannot
// double-load.
type Local struct {
	mu       sync.Mutex
	model    embedModel
	lastUsed time.Time

	loader func() (embedModel, error)
	idle   time.Duration

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewLocal creates the provider and starts its idle-unload task. The model
// itself is not loaded until the first embed call.
func NewLocal(cfg LocalConfig) (*Local, error) {
	loader := cfg.loader
	if loader == nil {
		if cfg.ModelDir == "" {
			return nil, fmt.Errorf("local embedding provider requires a model dir")
		}
		modelDir, libraryPath := cfg.ModelDir, cfg.LibraryPath
		loader = func() (embedModel, error) {
			return loadONNXModel(modelDir, libraryPath)
		}
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	poll := cfg.PollEvery
	if poll <= 0 {
		poll = defaultPollEvery
	}

	l := &Local{
		loader:   loader,
		idle:     idle,
		lastUsed: time.Now(),
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.runUnloadTimer(poll)

	logger.InfoCF("embedding", "Local provider ready (lazy load)", map[string]interface{}{
		"idle_timeout": idle.String(),
	})
	return l, nil
}

func (l *Local) Dimensions() int { return localDims }

// EmbedPassage encodes stored content with the E5 "passage: " convention.
func (l *Local) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return l.embed(ctx, "passage: "+text)
}

// EmbedQuery encodes search text with the E5 "query: " convention.
func (l *Local) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return l.embed(ctx, "query: "+text)
}

func (l *Local) embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model == nil {
		logger.InfoCF("embedding", "Loading local model", nil)
		model, err := l.loader()
		if err != nil {
			return nil, fmt.Errorf("load local embedding model: %w", err)
		}
		l.model = model
	}
	l.lastUsed = time.Now()

	vec, err := l.model.embed(text)
	if err != nil {
		return nil, fmt.Errorf("local embedding inference: %w", err)
	}
	if len(vec) != localDims {
		return nil, fmt.Errorf("local embedding returned %d dims, want %d", len(vec), localDims)
	}
	return vec, nil
}

func (l *Local) runUnloadTimer(poll time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.unloadIfIdle()
		}
	}
}

func (l *Local) unloadIfIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model == nil {
		return
	}
	elapsed := time.Since(l.lastUsed)
	if elapsed < l.idle {
		return
	}
	if err := l.model.close(); err != nil {
		logger.WarnCF("embedding", "Failed to release model", map[string]interface{}{"error": err.Error()})
	}
	l.model = nil
	logger.InfoCF("embedding", "Local model unloaded", map[string]interface{}{
		"idle": elapsed.Round(time.Second).String(),
	})
}

// Close stops the unload task and releases the model if loaded.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopCh)
		l.wg.Wait()

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.model != nil {
			l.closeErr = l.model.close()
			l.model = nil
		}
	})
	return l.closeErr
}
