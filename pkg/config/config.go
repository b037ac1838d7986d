package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Embedding EmbeddingConfig `json:"embedding"`
	Memory    MemoryConfig    `json:"memory"`
}

type StorageConfig struct {
	// DataDir holds memory.db and the vector index file.
	DataDir string `json:"data_dir" env:"MNEMO_STORAGE_DATA_DIR"`
}

type EmbeddingConfig struct {
	// Provider selects the embedding backend: "local", "gemini" or "builtin".
	Provider string `json:"provider" env:"MNEMO_EMBEDDING_PROVIDER"`
	APIKey   string `json:"api_key" env:"MNEMO_EMBEDDING_API_KEY"`
	Model    string `json:"model" env:"MNEMO_EMBEDDING_MODEL"`
	// Dimensions overrides the remote provider's output dimensionality.
	Dimensions int `json:"dimensions" env:"MNEMO_EMBEDDING_DIMENSIONS"`
	// ModelDir is where the local provider looks for model.onnx and tokenizer.json.
	ModelDir string `json:"model_dir" env:"MNEMO_EMBEDDING_MODEL_DIR"`
	// OnnxLibrary is the path to the onnxruntime shared library.
	OnnxLibrary string `json:"onnx_library" env:"MNEMO_EMBEDDING_ONNX_LIBRARY"`
	// IdleUnloadSeconds is how long the local model may sit idle before its
	// memory is released. Zero keeps the default (300s).
	IdleUnloadSeconds int `json:"idle_unload_seconds" env:"MNEMO_EMBEDDING_IDLE_UNLOAD_SECONDS"`
}

// IdleUnload converts IdleUnloadSeconds to a duration. Zero or negative
// means "use the provider default".
func (e EmbeddingConfig) IdleUnload() time.Duration {
	if e.IdleUnloadSeconds <= 0 {
		return 0
	}
	return time.Duration(e.IdleUnloadSeconds) * time.Second
}

type MemoryConfig struct {
	// RecentWindow is the number of latest turns always included in context.
	RecentWindow int `json:"recent_window" env:"MNEMO_MEMORY_RECENT_WINDOW"`
	// SearchTopK caps the related-conversation section.
	SearchTopK int `json:"search_top_k" env:"MNEMO_MEMORY_SEARCH_TOP_K"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "~/.mnemo/data",
		},
		Embedding: EmbeddingConfig{
			Provider:          "builtin",
			Model:             "",
			Dimensions:        0,
			IdleUnloadSeconds: 300,
		},
		Memory: MemoryConfig{
			RecentWindow: 5,
			SearchTopK:   5,
		},
	}
}

// LoadConfig reads path (missing file is fine, defaults apply) and then
// applies MNEMO_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config env: %w", err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// DataDir returns the storage directory with ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Storage.DataDir)
}

// expandHome expands a leading "~" or "~/" to the current user's home.
// "~user" forms are left alone; they name a different user's home.
func expandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return home + path[1:]
	}
	return path
}
