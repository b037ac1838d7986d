package embedding

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

func TestBuiltin_Dimensions(t *testing.T) {
	b := NewBuiltin()
	if b.Dimensions() != 384 {
		t.Fatalf("dimensions = %d, want 384", b.Dimensions())
	}

	vec, err := b.EmbedQuery(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}
	if len(vec) != b.Dimensions() {
		t.Fatalf("vector length = %d, want %d", len(vec), b.Dimensions())
	}
}

func TestBuiltin_Deterministic(t *testing.T) {
	b := NewBuiltin()
	ctx := context.Background()

	v1, err := b.EmbedPassage(ctx, "the cat sat on the mat")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := b.EmbedQuery(ctx, "the cat sat on the mat")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("builtin encoding should be symmetric and deterministic; differs at %d", i)
		}
	}
}

func TestBuiltin_UnitNorm(t *testing.T) {
	b := NewBuiltin()
	vec, err := b.EmbedPassage(context.Background(), "normalization check")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm^2 = %f, want 1", norm)
	}
}

func TestBuiltin_SimilarTextScoresHigher(t *testing.T) {
	b := NewBuiltin()
	ctx := context.Background()

	base, _ := b.EmbedPassage(ctx, "my cat loves tuna")
	near, _ := b.EmbedQuery(ctx, "cat food and tuna")
	far, _ := b.EmbedQuery(ctx, "quarterly budget review meeting")

	if cosine(base, near) <= cosine(base, far) {
		t.Fatalf("expected related text to score higher: near=%f far=%f", cosine(base, near), cosine(base, far))
	}
}

func TestBuiltin_EmptyText(t *testing.T) {
	b := NewBuiltin()
	vec, err := b.EmbedPassage(context.Background(), "   ")
	if err != nil {
		t.Fatalf("embed empty: %v", err)
	}
	if len(vec) != b.Dimensions() {
		t.Fatalf("vector length = %d, want %d", len(vec), b.Dimensions())
	}
}
