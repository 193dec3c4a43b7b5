package wal

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"put-small", Record{Op: OpPut, Key: 1, Value: []byte("b")}},
		{"del-empty", Record{Op: OpDel, Key: 2, Value: nil}},
		{"put-binary", Record{Op: OpPut, Key: 3, Value: []byte{0, 1, 2, 3}}},
		{"put-large", Record{Op: OpPut, Key: 4, Value: bytes.Repeat([]byte("v"), 4096)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.rec); err != nil {
				t.Fatal(err)
			}

			got, err := Decode(bufio.NewReader(&buf))
			if err != nil {
				t.Fatal(err)
			}
			if got.Op != tt.rec.Op || got.Key != tt.rec.Key || !bytes.Equal(got.Value, tt.rec.Value) {
				t.Fatalf("roundtrip mismatch: want %+v, got %+v", tt.rec, got)
			}
		})
	}
}

func TestDecodeMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	recs := []Record{
		{Op: OpPut, Key: 1, Value: []byte("a")},
		{Op: OpDel, Key: 1},
		{Op: OpPut, Key: 2, Value: []byte("c")},
	}
	for _, r := range recs {
		if err := Encode(&buf, r); err != nil {
			t.Fatal(err)
		}
	}

	br := bufio.NewReader(&buf)
	for i, want := range recs {
		got, err := Decode(br)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.Op != want.Op || got.Key != want.Key {
			t.Fatalf("record %d mismatch: want %+v, got %+v", i, want, got)
		}
	}

	if _, err := Decode(br); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestDecodeRejectsUnknownMethod(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("bogus\x00")
	if _, err := Decode(bufio.NewReader(&buf)); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
