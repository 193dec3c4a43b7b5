package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriterAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	recs := []Record{
		{Op: OpPut, Key: 1, Value: []byte("one")},
		{Op: OpPut, Key: 2, Value: []byte("two")},
		{Op: OpDel, Key: 1},
	}
	for _, r := range recs {
		if err := w.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ReadAll(filepath.Join(dir, ActiveName))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(recs) {
		t.Fatalf("expected %d records, got %d", len(recs), len(got))
	}
	for i, want := range recs {
		if got[i].Op != want.Op || got[i].Key != want.Key || string(got[i].Value) != string(want.Value) {
			t.Fatalf("record %d mismatch: want %+v, got %+v", i, want, got[i])
		}
	}
}

func TestRotateRenamesActiveToImmutable(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{Op: OpPut, Key: 1, Value: []byte("v")}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := Rotate(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, ActiveName)); !os.IsNotExist(err) {
		t.Fatalf("expected active wal to be gone after rotate")
	}
	imm, err := ReadAll(filepath.Join(dir, ImmutableName))
	if err != nil {
		t.Fatal(err)
	}
	if len(imm) != 1 || imm[0].Key != 1 {
		t.Fatalf("expected rotated immwal to contain the prior record, got %+v", imm)
	}
}

func TestRotateDeletesStaleImmutableFirst(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ImmutableName), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := OpenWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{Op: OpPut, Key: 9, Value: []byte("fresh")}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := Rotate(dir); err != nil {
		t.Fatal(err)
	}

	imm, err := ReadAll(filepath.Join(dir, ImmutableName))
	if err != nil {
		t.Fatal(err)
	}
	if len(imm) != 1 || imm[0].Key != 9 {
		t.Fatalf("expected stale immwal to be replaced, got %+v", imm)
	}
}

func TestReplayOrderConcatenatesImmThenActive(t *testing.T) {
	dir := t.TempDir()

	w, err := OpenWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(Record{Op: OpPut, Key: 1, Value: []byte("a")}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := Rotate(dir); err != nil {
		t.Fatal(err)
	}

	w2, err := OpenWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w2.Append(Record{Op: OpPut, Key: 2, Value: []byte("b")}); err != nil {
		t.Fatal(err)
	}
	defer w2.Close()

	got, err := ReplayOrder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != 1 || got[1].Key != 2 {
		t.Fatalf("expected [key 1 (imm), key 2 (active)], got %+v", got)
	}
}
