package filter

import "sync"

// Set is the engine-wide membership filter: one Bloom filter per SST,
// addressed by (level, fileID). It mirrors original_source/filter.h's
// vector<FilterLevel> of maps, generalized to Go maps and guarded with a
// mutex since both the foreground read path and the background
// flush/compaction writer touch it (spec.md §5).
type Set struct {
	mu     sync.RWMutex
	levels []map[uint64]*bloom // level -> fileID -> filter
	m      uint
	k      int
}

// MaxLevel is the number of index/filter levels the engine maintains.
const MaxLevel = 20

// Option configures a Set's Bloom parameters at construction, following
// the same functional-options pattern as disk.Option and engine.Option.
type Option func(*Set)

// WithParams overrides the default m=2_000_000/k=14 Bloom parameters.
func WithParams(m uint, k int) Option {
	return func(s *Set) { s.m, s.k = m, k }
}

// New returns an empty filter set with MaxLevel levels.
func New(opts ...Option) *Set {
	levels := make([]map[uint64]*bloom, MaxLevel)
	for i := range levels {
		levels[i] = make(map[uint64]*bloom)
	}
	s := &Set{levels: levels, m: defaultM, k: defaultK}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts key into the filter for (level, fileID), lazily creating the
// filter on first use for that file.
func (s *Set) Add(key uint64, level int, fileID uint64) {
	if level < 0 || level >= MaxLevel {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.levels[level][fileID]
	if !ok {
		f = newBloom(s.m, s.k)
		s.levels[level][fileID] = f
	}
	f.add(key)
}

// Contains reports false only when key is definitely absent from the SST
// at (level, fileID); a missing filter (never populated) also reports
// false, since nothing has ever been recorded for that file.
func (s *Set) Contains(key uint64, level int, fileID uint64) bool {
	if level < 0 || level >= MaxLevel {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.levels[level][fileID]
	if !ok {
		return false
	}
	return f.contains(key)
}

// Reset clears every filter.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.levels {
		s.levels[i] = make(map[uint64]*bloom)
	}
}

// Drop removes the filter for a single file, used by compaction once its
// source SSTs have been merged away.
func (s *Set) Drop(level int, fileID uint64) {
	if level < 0 || level >= MaxLevel {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.levels[level], fileID)
}
