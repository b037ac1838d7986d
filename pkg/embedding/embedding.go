// Package embedding converts text into fixed-length vectors for semantic
// retrieval. Providers encode asymmetrically: passages (content being stored)
// and queries (content being searched with) may be tagged differently under
// the hood. Callers never see the tagging convention.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Provider is the embedding capability used by the memory engine.
// Implementations: Local (ONNX model), Gemini (remote API), Builtin (hashing).
type Provider interface {
	// Dimensions returns the fixed vector length for this provider instance.
	Dimensions() int

	// EmbedPassage encodes text that is being stored.
	EmbedPassage(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery encodes text that is being searched with.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Close releases any held resources (loaded models, background tasks).
	Close() error
}

// Config selects and tunes a provider. Zero values fall back to defaults.
type Config struct {
	Provider    string // "local", "gemini" or "builtin"
	APIKey      string
	Model       string
	Dimensions  int
	ModelDir    string
	OnnxLibrary string
	IdleUnload  time.Duration
}

// New constructs the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "builtin":
		return NewBuiltin(), nil
	case "local":
		return NewLocal(LocalConfig{
			ModelDir:    cfg.ModelDir,
			LibraryPath: cfg.OnnxLibrary,
			IdleTimeout: cfg.IdleUnload,
		})
	case "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("gemini embedding provider requires an API key")
		}
		return NewGemini(cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
