package writer

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// IndexVersion is the format version of the artifact index.
const IndexVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("writer: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// IndexEntry records one written artifact.
type IndexEntry struct {
	Name  string   `cbor:"1,keyasint"`
	Hash  [32]byte `cbor:"2,keyasint"` // SHA-256 of the class file
	Size  int      `cbor:"3,keyasint"`
	RunID string   `cbor:"4,keyasint,omitempty"` // batch that last wrote it
}

// Index maps artifact paths to their last written content.
type Index struct {
	Version int                   `cbor:"1,keyasint"`
	Entries map[string]IndexEntry `cbor:"2,keyasint"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Version: IndexVersion, Entries: make(map[string]IndexEntry)}
}

// MarshalIndex serializes an index to canonical CBOR, so equal indexes
// encode to equal bytes.
func MarshalIndex(idx *Index) ([]byte, error) {
	return cborEncMode.Marshal(idx)
}

// UnmarshalIndex deserializes an index.
func UnmarshalIndex(data []byte) (*Index, error) {
	var idx Index
	if err := cbor.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("writer: unmarshal index: %w", err)
	}
	if idx.Version != IndexVersion {
		return nil, fmt.Errorf("writer: index version %d, want %d", idx.Version, IndexVersion)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]IndexEntry)
	}
	return &idx, nil
}

// LoadIndex reads an index file. A missing file is an empty index.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return UnmarshalIndex(data)
}

// ---------------------------------------------------------------------------
// IndexedSink
// ---------------------------------------------------------------------------

// IndexedSink forwards artifacts whose content changed since the previous
// index to an underlying sink and records them in the index. Unchanged
// artifacts are skipped.
type IndexedSink struct {
	next  Sink
	path  string
	runID string

	mu      sync.Mutex
	index   *Index
	skipped int
}

// NewIndexedSink loads the index at path and wraps next.
func NewIndexedSink(next Sink, path string) (*IndexedSink, error) {
	idx, err := LoadIndex(path)
	if err != nil {
		return nil, err
	}
	return &IndexedSink{next: next, path: path, index: idx}, nil
}

// SetRunID tags subsequent index entries with a batch run ID.
func (s *IndexedSink) SetRunID(id string) {
	s.mu.Lock()
	s.runID = id
	s.mu.Unlock()
}

// Write implements Sink.
func (s *IndexedSink) Write(a Artifact) error {
	return s.WriteUnit([]Artifact{a})
}

// WriteUnit implements UnitSink. The changed artifacts of the unit are
// forwarded together, and the index records them only when the forward
// succeeds.
func (s *IndexedSink) WriteUnit(as []Artifact) error {
	sums := make([][32]byte, 0, len(as))
	var changed []Artifact
	s.mu.Lock()
	skipped := 0
	for _, a := range as {
		sum := sha256.Sum256(a.Data)
		if prev, ok := s.index.Entries[a.Path]; ok && prev.Hash == sum {
			skipped++
			continue
		}
		changed = append(changed, a)
		sums = append(sums, sum)
	}
	runID := s.runID
	s.mu.Unlock()

	if len(changed) > 0 {
		if _, err := writeArtifacts(s.next, changed); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.skipped += skipped
	for i, a := range changed {
		s.index.Entries[a.Path] = IndexEntry{Name: a.Name, Hash: sums[i], Size: len(a.Data), RunID: runID}
	}
	s.mu.Unlock()
	return nil
}

// Skipped returns how many unchanged artifacts were not forwarded.
func (s *IndexedSink) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Entry returns the index entry of an artifact path.
func (s *IndexedSink) Entry(path string) (IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index.Entries[path]
	return e, ok
}

// Save writes the index back to its file.
func (s *IndexedSink) Save() error {
	s.mu.Lock()
	data, err := MarshalIndex(s.index)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writer: marshal index: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
