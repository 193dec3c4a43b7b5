package disk

import (
	"container/heap"
	"fmt"
	"os"
	"sort"

	"github.com/avinashk/lsmkv/index"
	"github.com/avinashk/lsmkv/sstable"
)

// source identifies one SST file selected to take part in a compaction, and
// carries the sorted key list compaction walks across it.
type source struct {
	level  int
	fileID uint64
	table  map[uint64]index.Entry
	keys   []uint64
	pos    int
}

func (s *source) valid() bool        { return s.pos < len(s.keys) }
func (s *source) key() uint64        { return s.keys[s.pos] }
func (s *source) entry() index.Entry { return s.table[s.keys[s.pos]] }

// cursorHeap is a min-heap of sources ordered by each source's current key,
// grounded on the merging-iterator heap pattern in
// intellect4all-storage-engines/lsm/iterator.go (MergingIteratorHeap), here
// walking the index's per-file key -> entry tables directly rather than a
// generic Iterator interface, since compaction never touches the memtable.
type cursorHeap []*source

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].key() < h[j].key() }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*source)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func keyRange(keys []uint64) (lower, upper uint64) {
	lower, upper = keys[0], keys[0]
	for _, k := range keys[1:] {
		if k < lower {
			lower = k
		}
		if k > upper {
			upper = k
		}
	}
	return lower, upper
}

func overlaps(lower, upper uint64, ranges [][2]uint64) bool {
	for _, r := range ranges {
		if lower <= r[1] && upper >= r[0] {
			return true
		}
	}
	return false
}

func newSource(level int, fileID uint64, table map[uint64]index.Entry) *source {
	keys := make([]uint64, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return &source{level: level, fileID: fileID, table: table, keys: keys}
}

// compact merges level into level+1, per spec.md §4.5 and
// original_source/disk.cc's Disk::compact:
//
//   - at level 0, every file at the level takes part;
//   - at level L>0, the newest (fileCount - cap) files take part, matching
//     original_source/index.h's `std::greater<>`-ordered IndexTree: the
//     C++ selects from `begin()`, which yields the largest (newest)
//     fileID first;
//   - any file at level+1 whose key range overlaps the union of the
//     selected files' ranges also takes part, and is merged with them and
//     removed rather than left beside the merged output;
//   - the selected files are merged by a key-ascending heap walk, last
//     writer (greatest ingest timestamp) wins on duplicate keys, and the
//     merged stream is re-flushed into level+1 in ~sstThreshold-sized
//     SSTs, each re-triggering Put's own over-capacity check so a
//     compaction can cascade down multiple levels in one call;
//   - the original source files are only unlinked, and their index/filter
//     entries only dropped, after every merged output has been durably
//     written, so a crash mid-compaction leaves the prior files intact
//     and addressable on restart.
func (m *Manager) compact(level int) error {
	if level+1 > m.maxLevel {
		return fmt.Errorf("%w: level %d has no room to compact into (maxLevel %d)", ErrLevelOverflow, level, m.maxLevel)
	}

	selected := m.selectSources(level)
	if len(selected) == 0 {
		return nil
	}

	if err := m.runMerge(level+1, selected); err != nil {
		return err
	}

	for _, s := range selected {
		m.idx.DropFile(s.level, s.fileID)
		m.flt.Drop(s.level, s.fileID)
		if err := os.Remove(m.filePath(s.level, s.fileID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("disk: remove compacted %s: %w", m.filePath(s.level, s.fileID), err)
		}
	}
	return nil
}

// selectSources picks every file that must be read during a compact(level)
// call: the files chosen from level itself, plus any level+1 file whose key
// range overlaps theirs.
func (m *Manager) selectSources(level int) []*source {
	ids := m.idx.FileIDs(level) // newest (greatest) first
	var chosen []uint64
	if level == 0 {
		chosen = ids
	} else {
		num := len(ids) - m.levelCap(level)
		if num <= 0 {
			return nil
		}
		// ids is already newest-first; the newest `num` files are the head.
		chosen = append([]uint64(nil), ids[:num]...)
	}

	var sources []*source
	var ranges [][2]uint64
	for _, id := range chosen {
		table, ok := m.idx.FileTable(level, id)
		if !ok || len(table) == 0 {
			continue
		}
		s := newSource(level, id, table)
		lower, upper := keyRange(s.keys)
		ranges = append(ranges, [2]uint64{lower, upper})
		sources = append(sources, s)
	}

	for _, id := range m.idx.FileIDs(level + 1) {
		table, ok := m.idx.FileTable(level+1, id)
		if !ok || len(table) == 0 {
			continue
		}
		s := newSource(level+1, id, table)
		lower, upper := keyRange(s.keys)
		if overlaps(lower, upper, ranges) {
			sources = append(sources, s)
		}
	}
	return sources
}

// runMerge walks every selected source in ascending key order via a
// min-heap, keeping the greatest-timestamp entry on duplicate keys, and
// re-flushes the merged stream into targetLevel in sstThreshold-sized
// batches.
func (m *Manager) runMerge(targetLevel int, selected []*source) error {
	h := make(cursorHeap, 0, len(selected))
	for _, s := range selected {
		if s.valid() {
			h = append(h, s)
		}
	}
	heap.Init(&h)

	var buffer []sstable.Record
	var size int

	for h.Len() > 0 {
		top := heap.Pop(&h).(*source)
		key := top.key()
		winner := top.entry()
		winnerLevel, winnerFileID := top.level, top.fileID

		top.pos++
		if top.valid() {
			heap.Push(&h, top)
		}

		for h.Len() > 0 && h[0].key() == key {
			d := heap.Pop(&h).(*source)
			e := d.entry()
			if e.Timestamp >= winner.Timestamp {
				winner = e
				winnerLevel, winnerFileID = d.level, d.fileID
			}
			d.pos++
			if d.valid() {
				heap.Push(&h, d)
			}
		}

		value, err := m.Get(winnerLevel, winnerFileID, winner.Offset)
		if err != nil {
			return fmt.Errorf("disk: compact read key %d: %w", key, err)
		}

		buffer = append(buffer, sstable.Record{Key: key, Value: value, Deleted: winner.Deleted})
		size += recordOverheadBytes + len(value)

		if size >= m.sstThreshold {
			if err := m.Put(targetLevel, buffer); err != nil {
				return fmt.Errorf("disk: compact flush to level %d: %w", targetLevel, err)
			}
			buffer = nil
			size = 0
		}
	}

	if len(buffer) > 0 {
		if err := m.Put(targetLevel, buffer); err != nil {
			return fmt.Errorf("disk: compact flush tail to level %d: %w", targetLevel, err)
		}
	}
	return nil
}
