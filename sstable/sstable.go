// Package sstable implements the on-disk sorted table: the immutable,
// flat, sorted run a flush or a compaction writes to level L.
//
//	+--------------------------------------------------------------+
//	|  BODY (ascending key order)                                  |
//	|    u64 key | value bytes | 0x00                              |
//	|    u64 key | value bytes | 0x00                              |
//	|    ...                                                       |
//	+--------------------------------------------------------------+
//	|  FOOTER (same order as the body)                             |
//	|    u64 key | u64 offset   <- offset of the record's key      |
//	|    u64 key | u64 offset                                      |
//	|    ...                                                       |
//	|    u64 count                                                 |
//	+--------------------------------------------------------------+
//
// A reader locates the footer by seeking from the end of the file: -8 for
// the count, then -8*(1+2i)/-8*(2i) for the i-th (1-indexed, counting back
// from the last) key/offset pair. A value is read by seeking to offset+8 (past the inline key) and
// reading up to the 0x00 terminator. There are no block indices, no
// embedded per-block CRCs, and no checksums of any kind — the source this
// format is ported from stores none, and this package adds none.
package sstable

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Record is one (key, value, deleted) tuple to be written to an SST. The
// deleted flag is recorded only in the caller's index entry (see
// package index) — it is not part of the on-disk body, matching
// spec.md §3: "a tombstone ... in an SST [is] a normally-written entry
// whose deleted bit is recorded in the index (not in the on-disk value
// payload)".
type Record struct {
	Key     uint64
	Value   []byte
	Deleted bool
}

// Location is where a single record ended up within a written file.
type Location struct {
	Offset uint64
	Length uint64
}

// Write streams records (already sorted ascending by key) to path as a
// complete SST: body, footer, and trailing count. It returns each
// record's body offset and length, indexed by position in records, for
// the caller to thread into the index and filter.
func Write(path string, records []Record) ([]Location, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	locs := make([]Location, len(records))

	var offset uint64
	for i, rec := range records {
		locs[i] = Location{Offset: offset, Length: uint64(len(rec.Value))}

		var keyBuf [8]byte
		binary.LittleEndian.PutUint64(keyBuf[:], rec.Key)
		if _, err := w.Write(keyBuf[:]); err != nil {
			return nil, fmt.Errorf("sstable: write key: %w", err)
		}
		if _, err := w.Write(rec.Value); err != nil {
			return nil, fmt.Errorf("sstable: write value: %w", err)
		}
		if err := w.WriteByte(0); err != nil {
			return nil, fmt.Errorf("sstable: write terminator: %w", err)
		}

		offset += 8 + uint64(len(rec.Value)) + 1
	}

	for i, rec := range records {
		var entry [16]byte
		binary.LittleEndian.PutUint64(entry[0:8], rec.Key)
		binary.LittleEndian.PutUint64(entry[8:16], locs[i].Offset)
		if _, err := w.Write(entry[:]); err != nil {
			return nil, fmt.Errorf("sstable: write footer entry: %w", err)
		}
	}

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(records)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return nil, fmt.Errorf("sstable: write count: %w", err)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("sstable: flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sstable: sync %s: %w", path, err)
	}

	return locs, nil
}

// ReadValue opens path, seeks to offset+8 (past the inline key), and
// reads the NUL-terminated value. The caller already knows length from
// the index, but we terminate on the 0x00 byte regardless so that a
// stale/incorrect length never truncates or overruns the read.
func ReadValue(path string, offset uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer f.Close()
	return readValueFrom(f, offset)
}

func readValueFrom(f *os.File, offset uint64) ([]byte, error) {
	if _, err := f.Seek(int64(offset)+8, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek to value: %w", err)
	}

	r := bufio.NewReader(f)
	value, err := r.ReadBytes(0)
	if err != nil {
		return nil, fmt.Errorf("sstable: value lacks 0x00 terminator: %w", err)
	}
	return value[:len(value)-1], nil
}

// BatchGet reads multiple values from a single SST file with one open,
// coalescing reads as spec.md §4.5 requires of the disk manager's batched
// read path.
func BatchGet(path string, offsets []uint64) (map[uint64][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[uint64][]byte, len(offsets))
	for _, off := range offsets {
		v, err := readValueFrom(f, off)
		if err != nil {
			return nil, err
		}
		out[off] = v
	}
	return out, nil
}

// FooterEntry is one (key, offset) pair as recorded in an SST's footer.
type FooterEntry struct {
	Key    uint64
	Offset uint64
}

// ReadFooter seeks from the end of the file to recover the (key, offset)
// pairs in footer (write) order, without scanning the body. The length of
// the returned slice is the declared record count.
func ReadFooter(path string) ([]FooterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("sstable: seek end of %s: %w", path, err)
	}
	if size < 8 {
		return nil, fmt.Errorf("sstable: %s too small to contain a footer", path)
	}

	var countBuf [8]byte
	if _, err := f.ReadAt(countBuf[:], size-8); err != nil {
		return nil, fmt.Errorf("sstable: read count of %s: %w", path, err)
	}
	n := int64(binary.LittleEndian.Uint64(countBuf[:]))

	if size < 8+16*n {
		return nil, fmt.Errorf("sstable: %s footer count %d implies offsets outside the file", path, n)
	}

	out := make([]FooterEntry, n)
	for i := int64(1); i <= n; i++ {
		var keyBuf, offBuf [8]byte
		if _, err := f.ReadAt(keyBuf[:], size-8*(1+2*i)); err != nil {
			return nil, fmt.Errorf("sstable: read footer key %d of %s: %w", i, path, err)
		}
		if _, err := f.ReadAt(offBuf[:], size-8*(2*i)); err != nil {
			return nil, fmt.Errorf("sstable: read footer offset %d of %s: %w", i, path, err)
		}
		out[n-i] = FooterEntry{
			Key:    binary.LittleEndian.Uint64(keyBuf[:]),
			Offset: binary.LittleEndian.Uint64(offBuf[:]),
		}
	}
	return out, nil
}

// ValueLength reads the value at offset (as ReadValue does) and returns
// only its length, used during recovery to populate index entries
// without retaining the value bytes.
func ValueLength(path string, offset uint64) (uint64, error) {
	v, err := ReadValue(path, offset)
	if err != nil {
		return 0, err
	}
	return uint64(len(v)), nil
}
