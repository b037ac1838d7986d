package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct {
	dims int
	err  error
}

func (p *failingProvider) Dimensions() int { return p.dims }

func (p *failingProvider) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return nil, p.err
}

func (p *failingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, p.err
}

func (p *failingProvider) Close() error { return nil }

func TestAddTurnEmbeddingFailureLeavesStoreUntouched(t *testing.T) {
	cause := errors.New("model exploded")
	m, err := NewManager(Config{DataDir: t.TempDir()}, &failingProvider{dims: 8, err: cause})
	require.NoError(t, err)
	defer m.Close()

	err = m.AddTurn(context.Background(), "alice", "hello", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, cause)

	// Blank query skips the search path, so assembly still works and shows
	// that no row was written.
	out, err := m.GetContext(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetContextQueryEmbeddingFailure(t *testing.T) {
	cause := errors.New("model exploded")
	m, err := NewManager(Config{DataDir: t.TempDir()}, &failingProvider{dims: 8, err: cause})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.GetContext(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestErrorCategoriesAreDistinct(t *testing.T) {
	cause := errors.New("boom")

	assert.ErrorIs(t, embeddingErr(cause), ErrEmbedding)
	assert.ErrorIs(t, indexErr(cause), ErrIndex)
	assert.ErrorIs(t, storeErr(cause), ErrStore)

	assert.NotErrorIs(t, embeddingErr(cause), ErrStore)
	assert.NotErrorIs(t, storeErr(cause), ErrIndex)
	assert.NotErrorIs(t, indexErr(cause), ErrEmbedding)

	assert.ErrorIs(t, storeErr(cause), cause)
}
