package writer

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestIndexRoundTrip(t *testing.T) {
	idx := NewIndex()
	idx.Entries["demo/A.class"] = IndexEntry{Name: "demo.A", Hash: sha256.Sum256([]byte("a")), Size: 1, RunID: "run-1"}
	idx.Entries["demo/B.class"] = IndexEntry{Name: "demo.B", Hash: sha256.Sum256([]byte("bb")), Size: 2}

	data, err := MarshalIndex(idx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalIndex(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != IndexVersion || len(got.Entries) != 2 {
		t.Fatalf("got version %d with %d entries", got.Version, len(got.Entries))
	}
	for path, want := range idx.Entries {
		if got.Entries[path] != want {
			t.Errorf("%s = %+v, want %+v", path, got.Entries[path], want)
		}
	}

	// Canonical encoding does not depend on map insertion order.
	again := NewIndex()
	again.Entries["demo/B.class"] = idx.Entries["demo/B.class"]
	again.Entries["demo/A.class"] = idx.Entries["demo/A.class"]
	data2, err := MarshalIndex(again)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, data2) {
		t.Error("equal indexes encode differently")
	}
}

func TestUnmarshalIndexVersion(t *testing.T) {
	data, err := cbor.Marshal(Index{Version: IndexVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalIndex(data); err == nil {
		t.Error("accepted an index of another version")
	}
	if _, err := UnmarshalIndex([]byte{0xff, 0x00}); err == nil {
		t.Error("accepted garbage")
	}
}

func TestLoadIndexMissing(t *testing.T) {
	idx, err := LoadIndex(filepath.Join(t.TempDir(), "none.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("missing index has %d entries", len(idx.Entries))
	}
}

func TestIndexedSinkSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, ".index.cbor")
	a := Artifact{Name: "demo.A", Path: "demo/A.class", Data: []byte("first")}
	b := Artifact{Name: "demo.B", Path: "demo/B.class", Data: []byte("b")}

	mem := NewMemorySink()
	s, err := NewIndexedSink(mem, indexPath)
	if err != nil {
		t.Fatal(err)
	}
	s.SetRunID("run-1")
	for _, x := range []Artifact{a, b} {
		if err := s.Write(x); err != nil {
			t.Fatal(err)
		}
	}
	if len(mem.Artifacts()) != 2 || s.Skipped() != 0 {
		t.Fatalf("first run forwarded %d, skipped %d", len(mem.Artifacts()), s.Skipped())
	}
	if e, ok := s.Entry(a.Path); !ok || e.RunID != "run-1" || e.Size != len(a.Data) {
		t.Errorf("entry = %+v, %v", e, ok)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index not saved: %v", err)
	}

	// Second run: a changes, b does not.
	mem2 := NewMemorySink()
	s2, err := NewIndexedSink(mem2, indexPath)
	if err != nil {
		t.Fatal(err)
	}
	s2.SetRunID("run-2")
	a.Data = []byte("second")
	for _, x := range []Artifact{a, b} {
		if err := s2.Write(x); err != nil {
			t.Fatal(err)
		}
	}
	if s2.Skipped() != 1 {
		t.Errorf("skipped %d, want 1", s2.Skipped())
	}
	if _, ok := mem2.Get("demo.B"); ok {
		t.Error("unchanged artifact was forwarded")
	}
	if got, ok := mem2.Get("demo.A"); !ok || string(got.Data) != "second" {
		t.Errorf("changed artifact = %v, %v", got, ok)
	}
	if e, _ := s2.Entry(a.Path); e.RunID != "run-2" || e.Hash != sha256.Sum256([]byte("second")) {
		t.Errorf("entry after change = %+v", e)
	}
	if e, _ := s2.Entry(b.Path); e.RunID != "run-1" {
		t.Errorf("unchanged entry RunID = %s, want run-1", e.RunID)
	}
}
