// Package disk is the disk manager: SST read I/O during point/scan reads,
// SST write during flush, and leveled compaction. Grounded on
// original_source/disk.h and disk.cc, restructured around the teacher's
// directory/file-lifecycle conventions in segmentmanager/disk.go
// (os.MkdirAll, os.Create, filepath.Join, a functional-options
// constructor for tunables).
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avinashk/lsmkv/filter"
	"github.com/avinashk/lsmkv/index"
	"github.com/avinashk/lsmkv/sstable"
)

// ErrLevelOverflow is returned by Put when asked to flush past maxLevel: a
// compaction cascade has run out of room, which spec.md §7 treats as an
// engine-fatal condition rather than something a caller retries.
var ErrLevelOverflow = errors.New("disk: level overflow")

const (
	// defaultMaxLevel is index.MaxLevel-1: the index and filter only
	// address levels [0, MaxLevel), so the deepest level a compaction may
	// flush into must leave room for that +1.
	defaultMaxLevel      = index.MaxLevel - 1
	defaultSSTThreshold  = 2 << 20 // 2 MiB, accounted as 24+len(value) per record
	recordOverheadBytes  = 24
	tombstoneUnlinkBytes = 20
)

// Manager owns the on-disk SST tree rooted at dir.
type Manager struct {
	dir          string
	idx          *index.Index
	flt          *filter.Set
	maxLevel     int
	sstThreshold int
	levelCap     func(level int) int
	now          func() int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxLevel overrides the default 20-level cap.
func WithMaxLevel(n int) Option {
	return func(m *Manager) { m.maxLevel = n }
}

// WithSSTThreshold overrides the default 2 MiB per-SST accounted size
// threshold used during compaction's output buffering.
func WithSSTThreshold(n int) Option {
	return func(m *Manager) { m.sstThreshold = n }
}

// WithClock overrides the fileID clock, for deterministic tests.
func WithClock(now func() int64) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a Manager rooted at dir, backed by idx and flt.
func New(dir string, idx *index.Index, flt *filter.Set, opts ...Option) *Manager {
	m := &Manager{
		dir:          dir,
		idx:          idx,
		flt:          flt,
		maxLevel:     defaultMaxLevel,
		sstThreshold: defaultSSTThreshold,
		now:          func() int64 { return time.Now().UnixMilli() },
	}
	m.levelCap = func(level int) int { return 1 << (level + 1) } // level L: 2^(L+1)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) levelDir(level int) string {
	return filepath.Join(m.dir, strconv.Itoa(level))
}

func (m *Manager) filePath(level int, fileID uint64) string {
	return filepath.Join(m.levelDir(level), strconv.FormatUint(fileID, 10))
}

// Get reads a single value from the SST at (level, fileID, offset).
func (m *Manager) Get(level int, fileID, offset uint64) ([]byte, error) {
	return sstable.ReadValue(m.filePath(level, fileID), offset)
}

// BatchRequest is one key's read location within a single SST file, used
// by Scan to coalesce multiple reads against the same file into one
// open/close.
type BatchRequest struct {
	Key    uint64
	Offset uint64
}

// BatchGet reads every requested key from a single (level, fileID) SST
// with one file open, per spec.md §4.5's "batched read ... coalesces
// multiple reads from the same SST file."
func (m *Manager) BatchGet(level int, fileID uint64, reqs []BatchRequest) (map[uint64][]byte, error) {
	offsets := make([]uint64, len(reqs))
	for i, r := range reqs {
		offsets[i] = r.Offset
	}
	byOffset, err := sstable.BatchGet(m.filePath(level, fileID), offsets)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64][]byte, len(reqs))
	for _, r := range reqs {
		out[r.Key] = byOffset[r.Offset]
	}
	return out, nil
}

// Put flushes data (already sorted ascending by key, as the memtable's
// Traverse produces it) to a new SST at level, updates idx and flt for
// each record with the file's flush timestamp, and triggers compaction
// if level is now over its capacity.
func (m *Manager) Put(level int, data []sstable.Record) error {
	if level < 0 || level > m.maxLevel {
		return fmt.Errorf("%w: level %d exceeds maxLevel %d", ErrLevelOverflow, level, m.maxLevel)
	}

	fileID := uint64(m.now())
	if err := os.MkdirAll(m.levelDir(level), 0o755); err != nil {
		return fmt.Errorf("disk: create level %d dir: %w", level, err)
	}

	locs, err := sstable.Write(m.filePath(level, fileID), data)
	if err != nil {
		return fmt.Errorf("disk: write SST: %w", err)
	}

	timestamp := m.now()
	for i, rec := range data {
		m.idx.Put(rec.Key, level, fileID, locs[i].Offset, locs[i].Length, timestamp, rec.Deleted)
		m.flt.Add(rec.Key, level, fileID)
	}

	if m.idx.FileCount(level) > m.levelCap(level) {
		return m.compact(level)
	}
	return nil
}

// Reset recursively removes the on-disk SST tree rooted at dir. The
// source's disk.reset is an empty stub (original_source/disk.cc); spec.md
// §9 calls this out explicitly: "a compliant implementation must
// recursively remove <dir> to satisfy the 'reset removes all sstables'
// contract."
func (m *Manager) Reset() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("disk: read dir %s: %w", m.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.dir, e.Name())); err != nil {
			return fmt.Errorf("disk: remove level dir %s: %w", e.Name(), err)
		}
	}
	return nil
}
