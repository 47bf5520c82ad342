package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Sink receives generated artifacts. Implementations are safe for
// concurrent use.
type Sink interface {
	Write(a Artifact) error
}

// UnitSink is a Sink that takes the artifacts of one top-level unit
// together and writes all of them or none.
type UnitSink interface {
	Sink
	WriteUnit(as []Artifact) error
}

// writeArtifacts hands a unit to sink, as one call when the sink supports
// it. It returns the paths that reached the sink.
func writeArtifacts(sink Sink, as []Artifact) ([]string, error) {
	if us, ok := sink.(UnitSink); ok {
		if err := us.WriteUnit(as); err != nil {
			return nil, err
		}
		paths := make([]string, len(as))
		for i, a := range as {
			paths[i] = a.Path
		}
		return paths, nil
	}
	var paths []string
	for _, a := range as {
		if err := sink.Write(a); err != nil {
			return paths, fmt.Errorf("write %s: %w", a.Path, err)
		}
		paths = append(paths, a.Path)
	}
	return paths, nil
}

// ---------------------------------------------------------------------------
// DirSink
// ---------------------------------------------------------------------------

// DirSink writes artifacts below a root directory in package layout.
// Files are replaced atomically.
type DirSink struct {
	root string

	mu      sync.Mutex
	written []string
}

// NewDirSink creates a sink rooted at root.
func NewDirSink(root string) *DirSink {
	return &DirSink{root: root}
}

// Root returns the output directory.
func (s *DirSink) Root() string { return s.root }

func (s *DirSink) path(a Artifact) (string, error) {
	if a.Path == "" || strings.Contains(a.Path, "..") {
		return "", fmt.Errorf("invalid artifact path %q", a.Path)
	}
	return filepath.Join(s.root, filepath.FromSlash(a.Path)), nil
}

// Write implements Sink.
func (s *DirSink) Write(a Artifact) error {
	return s.WriteUnit([]Artifact{a})
}

// WriteUnit implements UnitSink. Every artifact is staged in a temporary
// file before any is moved into place; a failure while staging leaves
// the directory untouched.
func (s *DirSink) WriteUnit(as []Artifact) error {
	paths := make([]string, 0, len(as))
	staged := make([]string, 0, len(as))
	discard := func(tmps []string) {
		for _, tmp := range tmps {
			os.Remove(tmp)
		}
	}
	for _, a := range as {
		path, err := s.path(a)
		if err != nil {
			discard(staged)
			return err
		}
		tmp, err := stageFile(path, a.Data)
		if err != nil {
			discard(staged)
			return err
		}
		paths = append(paths, path)
		staged = append(staged, tmp)
	}
	for i, tmp := range staged {
		if err := os.Rename(tmp, paths[i]); err != nil {
			discard(staged[i:])
			return fmt.Errorf("cannot write %s: %w", paths[i], err)
		}
	}
	s.mu.Lock()
	for _, a := range as {
		s.written = append(s.written, a.Path)
	}
	s.mu.Unlock()
	return nil
}

// Written returns the paths written so far, sorted.
func (s *DirSink) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.written)
	slices.Sort(out)
	return out
}

// stageFile writes data to a temporary file next to path and returns its
// name.
func stageFile(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	return tmp.Name(), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := stageFile(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// MemorySink
// ---------------------------------------------------------------------------

// MemorySink keeps artifacts in memory by binary name.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: make(map[string]Artifact)}
}

// Write implements Sink.
func (s *MemorySink) Write(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Name] = a
	return nil
}

// WriteUnit implements UnitSink.
func (s *MemorySink) WriteUnit(as []Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range as {
		s.artifacts[a.Name] = a
	}
	return nil
}

// Get returns the artifact of a class by binary name.
func (s *MemorySink) Get(name string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[name]
	return a, ok
}

// Artifacts returns every artifact sorted by name.
func (s *MemorySink) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Artifact) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Classes returns the artifacts as a binary name to bytes map.
func (s *MemorySink) Classes() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.artifacts))
	for name, a := range s.artifacts {
		out[name] = a.Data
	}
	return out
}
