package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/avinashk/lsmkv/sstable"
)

func TestPutGetNewestFileWinsWithinLevel(t *testing.T) {
	idx := New()
	idx.Put(1, 0, 100, 0, 5, 1000, false)
	idx.Put(1, 0, 200, 0, 5, 2000, false)

	lookup, ok := idx.Get(1)
	if !ok {
		t.Fatalf("expected hit")
	}
	if lookup.FileID != 200 {
		t.Fatalf("expected newest file (200) to win within a level, got %d", lookup.FileID)
	}
}

func TestGetScansShallowerLevelsFirst(t *testing.T) {
	idx := New()
	idx.Put(1, 1, 50, 0, 5, 1000, false)
	idx.Put(1, 0, 10, 0, 5, 500, false)

	lookup, ok := idx.Get(1)
	if !ok {
		t.Fatalf("expected hit")
	}
	if lookup.Level != 0 {
		t.Fatalf("expected level 0 to win over level 1, got %d", lookup.Level)
	}
}

func TestFindIgnoresTombstones(t *testing.T) {
	idx := New()
	idx.Put(1, 0, 10, 0, 0, 100, true)
	if idx.Find(1) {
		t.Fatalf("expected Find to ignore tombstoned entry")
	}

	idx.Put(1, 0, 20, 0, 5, 200, false)
	if !idx.Find(1) {
		t.Fatalf("expected Find to see live entry")
	}
}

func TestDropFileRemovesEntries(t *testing.T) {
	idx := New()
	idx.Put(1, 0, 10, 0, 5, 100, false)
	idx.DropFile(0, 10)

	if _, ok := idx.Get(1); ok {
		t.Fatalf("expected no hit after DropFile")
	}
}

func TestResetEmptiesAllLevels(t *testing.T) {
	idx := New()
	idx.Put(1, 0, 10, 0, 5, 100, false)
	idx.Reset()
	if _, ok := idx.Get(1); ok {
		t.Fatalf("expected no hit after Reset")
	}
}

func TestRecoverReconstructsFromSSTFooters(t *testing.T) {
	dir := t.TempDir()
	levelDir := filepath.Join(dir, "0")
	if err := os.MkdirAll(levelDir, 0o755); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(levelDir, "12345")
	records := []sstable.Record{
		{Key: 1, Value: []byte("one")},
		{Key: 2, Value: []byte("two")},
		{Key: 3, Value: []byte("")},
	}
	if _, err := sstable.Write(path, records); err != nil {
		t.Fatal(err)
	}

	idx := New()
	fake := &fakeFilter{}
	if err := idx.Recover(dir, fake); err != nil {
		t.Fatal(err)
	}

	for _, want := range records {
		lookup, ok := idx.Get(want.Key)
		if !ok {
			t.Fatalf("expected recovered key %d to be found", want.Key)
		}
		if lookup.FileID != 12345 || lookup.Level != 0 {
			t.Fatalf("expected (level 0, file 12345), got (%d, %d)", lookup.Level, lookup.FileID)
		}
		if lookup.Entry.Length != uint64(len(want.Value)) {
			t.Fatalf("expected length %d, got %d", len(want.Value), lookup.Entry.Length)
		}
	}

	if len(fake.added) != 3 {
		t.Fatalf("expected filter to be populated with 3 keys, got %d", len(fake.added))
	}
}

type fakeFilter struct {
	added []uint64
}

func (f *fakeFilter) Add(key uint64, level int, fileID uint64) {
	f.added = append(f.added, key)
}
