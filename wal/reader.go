package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadAll reads every record from path, in file order. A missing file
// yields an empty, nil-error result so callers can unconditionally read
// both immwal and wal during recovery.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []Record
	for {
		rec, err := Decode(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, fmt.Errorf("wal: reading %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReplayOrder reads <dir>/immwal fully, then <dir>/wal fully, and returns
// the concatenation in that order: spec.md §4.6 step 1-2, "read immWAL
// (if present) fully ... then read wal (if present) fully, appended
// after the immWAL operations."
func ReplayOrder(dir string) ([]Record, error) {
	imm, err := ReadAll(filepath.Join(dir, ImmutableName))
	if err != nil {
		return nil, err
	}
	active, err := ReadAll(filepath.Join(dir, ActiveName))
	if err != nil {
		return nil, err
	}
	return append(imm, active...), nil
}
