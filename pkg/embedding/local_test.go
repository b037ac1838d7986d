package embedding

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModel records what it was asked to embed and whether it was released.
type fakeModel struct {
	mu     sync.Mutex
	inputs []string
	closed bool
}

func (f *fakeModel) embed(text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	return make([]float32, localDims), nil
}

func (f *fakeModel) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestLocal(t *testing.T, idle, poll time.Duration, loads *atomic.Int32, model *fakeModel) *Local {
	t.Helper()
	l, err := NewLocal(LocalConfig{
		IdleTimeout: idle,
		PollEvery:   poll,
		loader: func() (embedModel, error) {
			loads.Add(1)
			return model, nil
		},
	})
	if err != nil {
		t.Fatalf("new local provider: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLocal_LazyLoadOnFirstEmbed(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, time.Hour, time.Hour, &loads, model)

	if loads.Load() != 0 {
		t.Fatalf("model loaded before first embed")
	}

	vec, err := l.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if len(vec) != l.Dimensions() {
		t.Fatalf("vector length = %d, want %d", len(vec), l.Dimensions())
	}
	if loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1", loads.Load())
	}
}

func TestLocal_EncodingPrefixes(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, time.Hour, time.Hour, &loads, model)
	ctx := context.Background()

	if _, err := l.EmbedPassage(ctx, "stored text"); err != nil {
		t.Fatalf("embed passage: %v", err)
	}
	if _, err := l.EmbedQuery(ctx, "search text"); err != nil {
		t.Fatalf("embed query: %v", err)
	}

	model.mu.Lock()
	defer model.mu.Unlock()
	if len(model.inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(model.inputs))
	}
	if !strings.HasPrefix(model.inputs[0], "passage: ") {
		t.Errorf("passage input %q missing passage prefix", model.inputs[0])
	}
	if !strings.HasPrefix(model.inputs[1], "query: ") {
		t.Errorf("query input %q missing query prefix", model.inputs[1])
	}
}

func TestLocal_ConcurrentEmbedsLoadOnce(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, time.Hour, time.Hour, &loads, model)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.EmbedQuery(context.Background(), "race"); err != nil {
				t.Errorf("embed: %v", err)
			}
		}()
	}
	wg.Wait()

	if loads.Load() != 1 {
		t.Fatalf("loads = %d, want exactly 1 under concurrency", loads.Load())
	}
}

func TestLocal_IdleUnloadThenReload(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, 30*time.Millisecond, 10*time.Millisecond, &loads, model)
	ctx := context.Background()

	if _, err := l.EmbedQuery(ctx, "first"); err != nil {
		t.Fatalf("embed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		model.mu.Lock()
		closed := model.closed
		model.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("model was not unloaded after idle timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Next call succeeds and triggers a reload.
	vec, err := l.EmbedQuery(ctx, "second")
	if err != nil {
		t.Fatalf("embed after unload: %v", err)
	}
	if len(vec) != l.Dimensions() {
		t.Fatalf("vector length = %d, want %d", len(vec), l.Dimensions())
	}
	if loads.Load() != 2 {
		t.Fatalf("loads = %d, want 2 (reload after unload)", loads.Load())
	}
}

func TestLocal_CloseIsIdempotent(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, time.Hour, time.Hour, &loads, model)

	if _, err := l.EmbedQuery(context.Background(), "x"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	model.mu.Lock()
	defer model.mu.Unlock()
	if !model.closed {
		t.Fatalf("close should release the loaded model")
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	var loads atomic.Int32
	model := &fakeModel{}
	l := newTestLocal(t, time.Hour, time.Hour, &loads, model)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.EmbedQuery(ctx, "x"); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
	if loads.Load() != 0 {
		t.Fatalf("cancelled call should not load the model")
	}
}
