package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seydt/mnemo/pkg/logger"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-embedding-001"
	defaultGeminiDims    = 768

	taskTypePassage = "RETRIEVAL_DOCUMENT"
	taskTypeQuery   = "RETRIEVAL_QUERY"
)

// APIError is a non-success response from the embedding API. Callers can
// inspect StatusCode to tell misconfiguration (401/403/404) apart from
// transient failure (429/5xx).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding API error: status %d: %s", e.StatusCode, e.Body)
}

// Gemini embeds through Google's embedContent endpoint. Stateless: one HTTPS
// call per embed, nothing loaded or cached locally.
type Gemini struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// NewGemini creates the remote provider. Empty model and zero dimensions use
// the service defaults (gemini-embedding-001, 768).
func NewGemini(apiKey, model string, dimensions int) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	if dimensions <= 0 {
		dimensions = defaultGeminiDims
	}
	logger.InfoCF("embedding", "Gemini provider ready", map[string]interface{}{
		"model": model,
		"dims":  dimensions,
	})
	return &Gemini{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultGeminiBaseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
	}
}

func (g *Gemini) Dimensions() int { return g.dimensions }

func (g *Gemini) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskTypePassage)
}

func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskTypeQuery)
}

func (g *Gemini) Close() error { return nil }

func (g *Gemini) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	requestBody := map[string]interface{}{
		"content":              map[string]interface{}{"parts": []map[string]string{{"text": text}}},
		"taskType":             taskType,
		"outputDimensionality": g.dimensions,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Embedding.Values) != g.dimensions {
		return nil, fmt.Errorf("embed response has %d values, want %d", len(parsed.Embedding.Values), g.dimensions)
	}
	return parsed.Embedding.Values, nil
}
