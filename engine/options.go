package engine

import (
	"github.com/avinashk/lsmkv/disk"
	"github.com/avinashk/lsmkv/filter"
)

// defaultMemThreshold is the accounted byte size (per memtable.SkipList's
// 24+len(value) accounting) at which a rotation is triggered, per
// spec.md §3/§6.
const defaultMemThreshold = 2 << 20 // 2 MiB

type config struct {
	memThreshold int
	diskOpts     []disk.Option
	filterOpts   []filter.Option
}

// Option configures a Store at construction, following the functional
// options pattern the teacher's segmentmanager package uses for its own
// tunables.
type Option func(*config)

// WithMemtableThreshold overrides the default 2 MiB rotation threshold.
func WithMemtableThreshold(n int) Option {
	return func(c *config) { c.memThreshold = n }
}

// WithSSTThreshold overrides the default 2 MiB compaction output-buffer
// threshold, forwarded to disk.WithSSTThreshold.
func WithSSTThreshold(n int) Option {
	return func(c *config) { c.diskOpts = append(c.diskOpts, disk.WithSSTThreshold(n)) }
}

// WithMaxLevel overrides the default 20-level cap, forwarded to
// disk.WithMaxLevel.
func WithMaxLevel(n int) Option {
	return func(c *config) { c.diskOpts = append(c.diskOpts, disk.WithMaxLevel(n)) }
}

// WithFilterParams overrides the default m=2_000_000/k=14 Bloom
// parameters, forwarded to filter.WithParams.
func WithFilterParams(m uint, k int) Option {
	return func(c *config) { c.filterOpts = append(c.filterOpts, filter.WithParams(m, k)) }
}

// WithDiskOptions forwards arbitrary functional options to the
// underlying disk.Manager, for tunables (such as the fileID clock) with
// no dedicated engine.Option of their own.
func WithDiskOptions(opts ...disk.Option) Option {
	return func(c *config) { c.diskOpts = append(c.diskOpts, opts...) }
}
