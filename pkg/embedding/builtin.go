package embedding

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

const builtinDims = 384

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-]+`)

// Builtin is a dependency-free character-trigram hashing embedder. It needs
// no model files or network access, is always loaded, and is fully
// deterministic, which makes it the default for offline deployments and the
// provider of choice in tests. Passage and query encodings are identical:
// hashing has no notion of retrieval direction to tune for.
type Builtin struct{}

func NewBuiltin() *Builtin {
	return &Builtin{}
}

func (b *Builtin) Dimensions() int { return builtinDims }

func (b *Builtin) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return b.embed(ctx, text)
}

func (b *Builtin) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.embed(ctx, text)
}

func (b *Builtin) Close() error { return nil }

func (b *Builtin) embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, builtinDims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}
	window := "#" + normalized + "#"
	for i := 0; i+3 <= len(window); i++ {
		idx := bucket(window[i : i+3])
		vec[idx]++
	}
	// Whole tokens weigh slightly more than their trigrams so exact word
	// overlap dominates incidental character overlap.
	for _, token := range tokenPattern.FindAllString(normalized, -1) {
		idx := bucket("tok:" + token)
		vec[idx] += 1.25
	}
	return normalize(vec), nil
}

func bucket(s string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(builtinDims))
}
