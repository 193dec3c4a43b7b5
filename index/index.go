// Package index is the in-memory sparse directory over the on-disk SSTs: a
// per-key (offset, length, timestamp, deleted) record for every key that
// currently resides in some SST, organized level -> fileID -> key -> entry.
//
// Grounded on original_source/index.h and index.cc, generalized from raw
// owning pointers and std::map to Go maps guarded by a sync.RWMutex, since
// both the foreground read path (get/find, read-only) and the background
// flush/compaction task (put, write-only) touch it concurrently across
// rotations (spec.md §5).
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/avinashk/lsmkv/sstable"
)

// MaxLevel is the number of levels the index (and the filter, and the
// disk manager) maintain.
const MaxLevel = 20

// Entry describes one key's location within a single SST.
type Entry struct {
	Offset    uint64
	Length    uint64
	Timestamp int64
	Deleted   bool
}

// fileTable is a single SST's key -> entry directory.
type fileTable map[uint64]Entry

// Filter is the subset of filter.Set the index needs during recovery,
// expressed as an interface so this package does not import filter and
// create a cycle with the engine's wiring.
type Filter interface {
	Add(key uint64, level int, fileID uint64)
}

// Index is the engine-wide sparse directory.
type Index struct {
	mu     sync.RWMutex
	levels []map[uint64]fileTable // level -> fileID -> fileTable
}

// New returns an empty index with MaxLevel levels.
func New() *Index {
	levels := make([]map[uint64]fileTable, MaxLevel)
	for i := range levels {
		levels[i] = make(map[uint64]fileTable)
	}
	return &Index{levels: levels}
}

// Put records that key lives in the SST at (level, fileID) at the given
// offset/length, with the given ingest timestamp and tombstone flag.
// Levels beyond MaxLevel are silently ignored (spec.md §7.4).
func (idx *Index) Put(key uint64, level int, fileID, offset, length uint64, timestamp int64, deleted bool) {
	if level < 0 || level >= MaxLevel {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	table, ok := idx.levels[level][fileID]
	if !ok {
		table = make(fileTable)
		idx.levels[level][fileID] = table
	}
	table[key] = Entry{Offset: offset, Length: length, Timestamp: timestamp, Deleted: deleted}
}

// Lookup is the result of Get or ScanRange: which (level, fileID) holds
// the freshest entry for a key, and that entry. Key is redundant for Get
// (the caller already has it) but lets ScanRange return a flat slice.
type Lookup struct {
	Key    uint64
	Level  int
	FileID uint64
	Entry  Entry
}

// Get scans level 0 upward; within a level, files are visited newest-first
// (greatest fileID first, since a larger fileID is a later creation
// timestamp and therefore newer data). The first hit wins and deeper
// levels are not consulted.
func (idx *Index) Get(key uint64) (Lookup, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		fileIDs := sortedFileIDsDesc(idx.levels[level])
		for _, fileID := range fileIDs {
			if e, ok := idx.levels[level][fileID][key]; ok {
				return Lookup{Key: key, Level: level, FileID: fileID, Entry: e}, true
			}
		}
	}
	return Lookup{}, false
}

// ScanRange returns the winning (newest, non-tombstoned) location for
// every key in [lower, upper] across the whole index, scanning level 0
// upward and, within a level, newest-file-first — the same precedence
// Get uses, generalized to a range. exclude names keys already resolved
// by the caller's memtable/immutable-memtable scan (live or tombstoned):
// those are never looked up here, since a shallower generation always
// shadows the index regardless of which way it resolved.
func (idx *Index) ScanRange(lower, upper uint64, exclude map[uint64]bool) []Lookup {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[uint64]bool, len(exclude))
	for k := range exclude {
		seen[k] = true
	}

	var out []Lookup
	for level := 0; level < MaxLevel; level++ {
		for _, fileID := range sortedFileIDsDesc(idx.levels[level]) {
			for key, e := range idx.levels[level][fileID] {
				if key < lower || key > upper || seen[key] {
					continue
				}
				seen[key] = true
				if e.Deleted {
					continue
				}
				out = append(out, Lookup{Key: key, Level: level, FileID: fileID, Entry: e})
			}
		}
	}
	return out
}

// Find reports whether any level/file holds a non-tombstoned entry for
// key. It is used by the engine's del path to decide whether a tombstone
// must be inserted into the memtable for a key that is not currently
// resident there.
func (idx *Index) Find(key uint64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		for _, table := range idx.levels[level] {
			if e, ok := table[key]; ok && !e.Deleted {
				return true
			}
		}
	}
	return false
}

// Reset empties the index.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i := range idx.levels {
		idx.levels[i] = make(map[uint64]fileTable)
	}
}

// DropFile removes every entry belonging to a single SST, called by
// compaction once that SST has been merged away.
func (idx *Index) DropFile(level int, fileID uint64) {
	if level < 0 || level >= MaxLevel {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.levels[level], fileID)
}

// FileIDs returns the fileIDs present at a level, newest (greatest) first.
func (idx *Index) FileIDs(level int) []uint64 {
	if level < 0 || level >= MaxLevel {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return sortedFileIDsDesc(idx.levels[level])
}

// FileCount returns the number of SSTs resident at a level.
func (idx *Index) FileCount(level int) int {
	if level < 0 || level >= MaxLevel {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.levels[level])
}

// FileTable returns a copy of a single file's key -> entry table, used by
// compaction to build its merge iterators.
func (idx *Index) FileTable(level int, fileID uint64) (map[uint64]Entry, bool) {
	if level < 0 || level >= MaxLevel {
		return nil, false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	table, ok := idx.levels[level][fileID]
	if !ok {
		return nil, false
	}
	out := make(map[uint64]Entry, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out, true
}

func sortedFileIDsDesc(files map[uint64]fileTable) []uint64 {
	ids := make([]uint64, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

// Recover walks <dir>/<level>/<fileID> for every level and reconstructs
// the index (and, via filter, the membership filters) from each SST's
// footer, per spec.md §4.4/§4.6 step 4 and original_source/index.cc's
// Index::recover.
func (idx *Index) Recover(dir string, flt Filter) error {
	for level := 0; level < MaxLevel; level++ {
		levelDir := filepath.Join(dir, strconv.Itoa(level))
		entries, err := os.ReadDir(levelDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("index: read level dir %s: %w", levelDir, err)
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			fileID, err := strconv.ParseUint(entry.Name(), 10, 64)
			if err != nil {
				continue
			}
			if err := idx.recoverFile(levelDir, level, fileID, flt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *Index) recoverFile(levelDir string, level int, fileID uint64, flt Filter) error {
	path := filepath.Join(levelDir, strconv.FormatUint(fileID, 10))

	footer, err := sstable.ReadFooter(path)
	if err != nil {
		return fmt.Errorf("index: recover %s: %w", path, err)
	}

	now := time.Now().UnixMilli()

	for _, e := range footer {
		length, err := sstable.ValueLength(path, e.Offset)
		if err != nil {
			return fmt.Errorf("index: recover value for key %d of %s: %w", e.Key, path, err)
		}

		idx.Put(e.Key, level, fileID, e.Offset, length, now, false)
		if flt != nil {
			flt.Add(e.Key, level, fileID)
		}
	}

	return nil
}
