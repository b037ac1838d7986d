// Package vecindex provides an in-process approximate-nearest-neighbor index
// over embedding vectors, keyed by the storage layer's integer row identity.
// It is a derived structure: the relational store stays authoritative, and
// the index can always be rebuilt from it.
package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	// growthIncrement is the fixed capacity step. Inserts are off the
	// latency-critical path, so bounded predictable reallocation beats
	// amortized doubling here.
	growthIncrement = 1000

	indexMagic   = "MVIX"
	indexVersion = uint32(1)
)

// Result is a single search hit, ordered best-first by cosine similarity.
type Result struct {
	Key   uint64
	Score float32
}

type entry struct {
	key  uint64
	vec  []float32
	norm float32
}

// Index is a flat cosine-similarity index. One lock guards everything;
// searches and inserts are both exclusive, which is fine at conversation
// ingestion rates.
type Index struct {
	mu       sync.Mutex
	dims     int
	entries  []entry
	capacity int
}

// New creates an empty index for vectors of the given dimensionality.
func New(dims int) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector index dims must be positive, got %d", dims)
	}
	return &Index{dims: dims}, nil
}

// Reserve grows capacity by n slots. Capacity never shrinks.
func (ix *Index) Reserve(n int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.reserveLocked(n)
}

func (ix *Index) reserveLocked(n int) {
	if n <= 0 {
		return
	}
	ix.capacity += n
	if cap(ix.entries) < ix.capacity {
		grown := make([]entry, len(ix.entries), ix.capacity)
		copy(grown, ix.entries)
		ix.entries = grown
	}
}

// Add inserts a key/vector pair, growing capacity by the fixed increment
// when the next insert would not fit.
func (ix *Index) Add(key uint64, vec []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(vec) != ix.dims {
		return fmt.Errorf("vector has %d dims, index expects %d", len(vec), ix.dims)
	}
	if len(ix.entries)+1 >= ix.capacity {
		ix.reserveLocked(growthIncrement)
	}

	stored := make([]float32, ix.dims)
	copy(stored, vec)
	ix.entries = append(ix.entries, entry{key: key, vec: stored, norm: vectorNorm(stored)})
	return nil
}

// Search returns up to k keys ordered by descending cosine similarity to vec.
func (ix *Index) Search(vec []float32, k int) ([]Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(vec) != ix.dims {
		return nil, fmt.Errorf("query vector has %d dims, index expects %d", len(vec), ix.dims)
	}
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}

	queryNorm := vectorNorm(vec)
	results := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, Result{Key: e.key, Score: cosine(vec, queryNorm, e)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size reports the number of stored vectors.
func (ix *Index) Size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// Capacity reports the reserved slot count.
func (ix *Index) Capacity() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.capacity
}

// Save writes a full snapshot to path. The snapshot goes to a temporary file
// first and is renamed into place, so a crash mid-save never leaves a
// truncated index behind.
func (ix *Index) Save(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index snapshot: %w", err)
	}

	if err := ix.writeSnapshot(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write index snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index snapshot: %w", err)
	}
	return syncDir(filepath.Dir(path))
}

// syncDir flushes a directory so a completed rename survives power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open snapshot dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync snapshot dir: %w", err)
	}
	return nil
}

func (ix *Index) writeSnapshot(f *os.File) error {
	w := bufio.NewWriter(f)
	if _, err := w.WriteString(indexMagic); err != nil {
		return err
	}
	header := []interface{}{
		indexVersion,
		uint32(ix.dims),
		uint64(len(ix.entries)),
		uint64(ix.capacity),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, e := range ix.entries {
		if err := binary.Write(w, binary.LittleEndian, e.key); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.vec); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load replaces the index contents with the snapshot at path. The snapshot's
// dimensionality must match the index's.
func (ix *Index) Load(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index snapshot: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read index magic: %w", err)
	}
	if string(magic) != indexMagic {
		return fmt.Errorf("not an index snapshot (magic %q)", magic)
	}

	var version, dims uint32
	var count, capacity uint64
	for _, v := range []interface{}{&version, &dims, &count, &capacity} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("read index header: %w", err)
		}
	}
	if version != indexVersion {
		return fmt.Errorf("unsupported index snapshot version %d", version)
	}
	if int(dims) != ix.dims {
		return fmt.Errorf("index snapshot has %d dims, index expects %d", dims, ix.dims)
	}

	entries := make([]entry, 0, count)
	for i := uint64(0); i < count; i++ {
		var key uint64
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return fmt.Errorf("read index entry %d: %w", i, err)
		}
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("read index entry %d vector: %w", i, err)
		}
		entries = append(entries, entry{key: key, vec: vec, norm: vectorNorm(vec)})
	}

	ix.entries = entries
	newCap := int(capacity)
	if newCap < len(entries) {
		newCap = len(entries)
	}
	if newCap > ix.capacity {
		ix.capacity = newCap
	}
	return nil
}

func vectorNorm(vec []float32) float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return float32(math.Sqrt(sum))
}

func cosine(query []float32, queryNorm float32, e entry) float32 {
	if queryNorm == 0 || e.norm == 0 {
		return 0
	}
	var dot float64
	for i := range query {
		dot += float64(query[i] * e.vec[i])
	}
	return float32(dot) / (queryNorm * e.norm)
}
