// Package memory is the conversational memory engine: a sqlite store of
// record, a derived vector index over turn embeddings, and the context
// assembly the agent layer consumes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/seydt/mnemo/pkg/embedding"
	"github.com/seydt/mnemo/pkg/logger"
	"github.com/seydt/mnemo/pkg/vecindex"
)

const (
	dbFileName    = "memory.db"
	indexFileName = "conversations.index"

	defaultRecentWindow = 5
	defaultSearchTopK   = 5

	// initialIndexCapacity is reserved when no snapshot exists yet.
	initialIndexCapacity = 1000

	// searchSlack pads the over-fetch so recency-window filtering still
	// leaves topK candidates.
	searchSlack = 5

	// dedupMinLen is the substring-containment threshold: only strings
	// longer than this participate in containment dedup.
	dedupMinLen = 10
)

const (
	headerImportant = "# Important Facts"
	headerRecent    = "# Recent Conversations"
	headerRelated   = "# Related Past Conversations"
)

// Config tunes the memory engine.
type Config struct {
	// DataDir holds memory.db and the index snapshot.
	DataDir string
	// RecentWindow is the number of latest turns always included in
	// context. Zero means 5.
	RecentWindow int
	// SearchTopK caps the related-conversation section. Zero means 5.
	SearchTopK int
}

// Manager orchestrates the store, the vector index and the embedding
// provider into the external memory contract. It takes ownership of the
// provider; Close releases both.
type Manager struct {
	cfg       Config
	store     *Store
	index     *vecindex.Index
	indexPath string
	provider  embedding.Provider
}

// NewManager opens the store and loads the index snapshot if one exists.
func NewManager(cfg Config, provider embedding.Provider) (*Manager, error) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, fmt.Errorf("memory data dir is required")
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = defaultRecentWindow
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = defaultSearchTopK
	}

	store, err := NewStore(filepath.Join(cfg.DataDir, dbFileName))
	if err != nil {
		return nil, err
	}

	index, err := vecindex.New(provider.Dimensions())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// A missing snapshot means a fresh data dir. Any other load failure is
	// fatal: starting empty would let the next Save overwrite a snapshot
	// that might still be recoverable.
	indexPath := filepath.Join(cfg.DataDir, indexFileName)
	switch err := index.Load(indexPath); {
	case err == nil:
		logger.InfoCF("memory", "Loaded vector index", map[string]interface{}{
			"vectors": index.Size(),
		})
	case errors.Is(err, fs.ErrNotExist):
		index.Reserve(initialIndexCapacity)
	default:
		_ = store.Close()
		return nil, indexErr(err)
	}

	return &Manager{
		cfg:       cfg,
		store:     store,
		index:     index,
		indexPath: indexPath,
		provider:  provider,
	}, nil
}

// Close releases the store and the embedding provider.
func (m *Manager) Close() error {
	storeErr := m.store.Close()
	providerErr := m.provider.Close()
	if storeErr != nil {
		return storeErr
	}
	return providerErr
}

// AddTurn durably records one completed exchange and indexes its passage
// embedding. The store write strictly precedes the index write: if indexing
// fails the turn stays recorded (and merely unindexed), while a store
// failure leaves the index untouched.
func (m *Manager) AddTurn(ctx context.Context, author, userInput, assistantResponse string) error {
	passage := formatExchange(author, userInput, assistantResponse)

	vec, err := m.provider.EmbedPassage(ctx, passage)
	if err != nil {
		return embeddingErr(err)
	}

	rowid, _, err := m.store.InsertTurn(ctx, author, userInput, assistantResponse)
	if err != nil {
		return storeErr(err)
	}

	if err := m.index.Add(uint64(rowid), vec); err != nil {
		return indexErr(err)
	}
	if err := m.index.Save(m.indexPath); err != nil {
		return indexErr(err)
	}
	return nil
}

// GetContext assembles the prompt context for query: important facts, the
// recency window, then semantically related older turns, in that order.
// Empty sections are omitted entirely.
func (m *Manager) GetContext(ctx context.Context, query string) (string, error) {
	var sections []string

	entries, err := m.store.ListImportant(ctx)
	if err != nil {
		return "", storeErr(err)
	}
	if important := renderImportant(entries); important != "" {
		sections = append(sections, important)
	}

	recent, err := m.store.RecentTurns(ctx, m.cfg.RecentWindow)
	if err != nil {
		return "", storeErr(err)
	}
	if len(recent) > 0 {
		sections = append(sections, renderTurns(headerRecent, recent))
	}

	related, err := m.searchRelated(ctx, query, recent)
	if err != nil {
		return "", err
	}
	if len(related) > 0 {
		sections = append(sections, renderTurns(headerRelated, related))
	}

	return strings.Join(sections, "\n\n"), nil
}

// searchRelated finds older turns semantically similar to query, excluding
// anything already surfaced by the recency window. The index cannot be told
// to skip keys up front, so we over-fetch and filter afterwards.
func (m *Manager) searchRelated(ctx context.Context, query string, recent []ConversationTurn) ([]ConversationTurn, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	vec, err := m.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, embeddingErr(err)
	}

	recentIDs := make(map[string]struct{}, len(recent))
	for _, t := range recent {
		recentIDs[t.ID] = struct{}{}
	}

	fetchN := m.cfg.SearchTopK + len(recentIDs) + searchSlack
	results, err := m.index.Search(vec, fetchN)
	if err != nil {
		return nil, indexErr(err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rowids := make([]uint64, 0, len(results))
	for _, r := range results {
		rowids = append(rowids, r.Key)
	}
	turns, err := m.store.TurnsByRowIDs(ctx, rowids)
	if err != nil {
		return nil, storeErr(err)
	}

	// TurnsByRowIDs already returns chronological order; drop the recency
	// window's turns and truncate.
	related := make([]ConversationTurn, 0, m.cfg.SearchTopK)
	for _, t := range turns {
		if _, ok := recentIDs[t.ID]; ok {
			continue
		}
		related = append(related, t)
	}
	if len(related) > m.cfg.SearchTopK {
		related = related[:m.cfg.SearchTopK]
	}
	return related, nil
}

// AddImportant stores a persistent fact unless a near-duplicate already
// exists. Duplicates are skipped silently and return an empty id.
//
// The dedup rule is approximate: after trimming and lowercasing, an entry is
// a duplicate when it equals the candidate, or when both exceed 10
// characters and one contains the other. Containment can over-trigger on
// short unrelated strings that happen to share a substring; kept as-is for
// behavioral parity.
func (m *Manager) AddImportant(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	candidate := strings.ToLower(content)

	existing, err := m.store.ListImportant(ctx)
	if err != nil {
		return "", storeErr(err)
	}
	for _, e := range existing {
		if isDuplicateFact(strings.ToLower(strings.TrimSpace(e.Content)), candidate) {
			logger.InfoCF("memory", "Skipping duplicate important entry", nil)
			return "", nil
		}
	}

	entry, err := m.store.InsertImportant(ctx, content)
	if err != nil {
		return "", storeErr(err)
	}
	logger.InfoCF("memory", "Added important entry", map[string]interface{}{"id": entry.ID})
	return entry.ID, nil
}

// ListImportant returns all important entries oldest-first.
func (m *Manager) ListImportant(ctx context.Context) ([]ImportantEntry, error) {
	entries, err := m.store.ListImportant(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// DeleteImportant removes an entry by id. A missing id is (false, nil), not
// an error.
func (m *Manager) DeleteImportant(ctx context.Context, id string) (bool, error) {
	deleted, err := m.store.DeleteImportant(ctx, id)
	if err != nil {
		return false, storeErr(err)
	}
	if deleted {
		logger.InfoCF("memory", "Deleted important entry", map[string]interface{}{"id": id})
	}
	return deleted, nil
}

// ImportantContext renders the important-facts section standalone, exactly
// as it appears inside GetContext.
func (m *Manager) ImportantContext(ctx context.Context) (string, error) {
	entries, err := m.store.ListImportant(ctx)
	if err != nil {
		return "", storeErr(err)
	}
	return renderImportant(entries), nil
}

func isDuplicateFact(existing, candidate string) bool {
	if existing == candidate {
		return true
	}
	if len(existing) > dedupMinLen && len(candidate) > dedupMinLen {
		return strings.Contains(existing, candidate) || strings.Contains(candidate, existing)
	}
	return false
}

func formatExchange(author, userInput, assistantResponse string) string {
	return fmt.Sprintf("%s: %s\nAssistant: %s", author, userInput, assistantResponse)
}

func renderImportant(entries []ImportantEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerImportant)
	b.WriteString("\n")
	for _, e := range entries {
		b.WriteString("\n- ")
		b.WriteString(e.Content)
	}
	return b.String()
}

func renderTurns(header string, turns []ConversationTurn) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, t := range turns {
		b.WriteString("\n")
		b.WriteString(t.FormatForContext())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
