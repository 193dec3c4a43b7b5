// Package memtable provides the in-memory ordered table that absorbs writes
// before they are flushed to a sorted table on disk. It is implemented as a
// skip list over 64-bit unsigned keys, mirroring the node/forward-pointer
// shape of a classic skip list: each node carries a slice of forward
// pointers, one per level it participates in, and a node's level is drawn
// from a geometric distribution at insert time.
package memtable

import (
	"math/rand"
)

const maxLevel = 19

// sentinelKey is the head node's key. No real key ever equals it, since
// keys are unsigned 64-bit and this is the maximum representable value.
const sentinelKey = ^uint64(0)

type node struct {
	key     uint64
	value   []byte
	deleted bool
	forward []*node
}

func newNode(key uint64, value []byte, deleted bool, level int) *node {
	return &node{
		key:     key,
		value:   value,
		deleted: deleted,
		forward: make([]*node, level+1),
	}
}

// SkipList is an ordered map of uint64 -> ([]byte, deleted) with O(log n)
// expected put/get/del. It is not safe for concurrent use; the engine
// serializes access to the active and immutable memtables.
type SkipList struct {
	head  *node
	level int // highest level with a live node; -1 when empty
	size  int // byte accounting per the engine's size-threshold policy
	rnd   *rand.Rand
}

// New returns an empty skip list.
func New() *SkipList {
	return &SkipList{
		head:  newNode(sentinelKey, nil, false, maxLevel),
		level: -1,
		rnd:   rand.New(rand.NewSource(rand.Int63())),
	}
}

func (sl *SkipList) randomLevel() int {
	level := 0
	for sl.rnd.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

// Size returns the accounted byte size of the contents: inserting a live
// entry adds 24+len(value) (key, stored key copy, offset, and value
// bytes), inserting a tombstone adds 24, and physically unlinking a live
// entry subtracts 20+len(value), so each unlink leaves 4 bytes counted.
func (sl *SkipList) Size() int {
	return sl.size
}

// Put inserts or overwrites key with value. If key already exists the
// tombstone flag (if any) is cleared and the value is replaced in place;
// size is adjusted by the length delta. Otherwise a fresh node at a
// randomly drawn level is linked in and size grows by 24+len(value).
func (sl *SkipList) Put(key uint64, value []byte) {
	update := make([]*node, maxLevel+1)
	cur := sl.head

	for lvl := sl.level; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && cur.forward[lvl].key < key {
			cur = cur.forward[lvl]
		}
		update[lvl] = cur
	}

	if next := cur.forward[0]; next != nil && next.key == key {
		next.deleted = false
		sl.size += len(value) - len(next.value)
		next.value = value
		return
	}

	lvl := sl.randomLevel()
	if lvl > sl.level {
		for i := sl.level + 1; i <= lvl; i++ {
			update[i] = sl.head
		}
		sl.level = lvl
	}

	n := newNode(key, value, false, lvl)
	for i := 0; i <= lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}

	sl.size += 24 + len(value)
}

// Get reports whether key is present and, if so, whether it is
// tombstoned. found=false means the key is absent. found=true,
// deleted=true means the key is present but deleted (value is empty).
func (sl *SkipList) Get(key uint64) (value []byte, found, deleted bool) {
	cur := sl.head
	for lvl := sl.level; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && cur.forward[lvl].key < key {
			cur = cur.forward[lvl]
		}
	}
	next := cur.forward[0]
	if next == nil || next.key != key {
		return nil, false, false
	}
	if next.deleted {
		return nil, true, true
	}
	return next.value, true, false
}

// Del implements the three-way decision tree from the memtable design:
//
//   - if key is live in this memtable, unlink it physically and return true.
//   - if key is already tombstoned here, return false (nothing changed).
//   - otherwise the key is absent from this memtable; insert a tombstone
//     iff the key is known to exist below — either it is live in the
//     immutable memtable (inImmutable), or, when it is not in the
//     immutable memtable at all (notInImmutable), it is present on disk
//     (onDisk). Otherwise return false: there is nothing to delete.
func (sl *SkipList) Del(key uint64, onDisk, inImmutable, notInImmutable bool) bool {
	update := make([]*node, maxLevel+1)
	cur := sl.head

	for lvl := sl.level; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && cur.forward[lvl].key < key {
			cur = cur.forward[lvl]
		}
		update[lvl] = cur
	}
	next := cur.forward[0]

	if next != nil && next.key == key {
		if next.deleted {
			return false
		}
		for i := 0; i <= sl.level; i++ {
			if update[i].forward[i] == next {
				update[i].forward[i] = next.forward[i]
			}
		}
		for sl.level >= 0 && sl.head.forward[sl.level] == nil {
			sl.level--
		}
		sl.size -= 20 + len(next.value)
		return true
	}

	exists := inImmutable || (notInImmutable && onDisk)
	if !exists {
		return false
	}

	lvl := sl.randomLevel()
	if lvl > sl.level {
		for i := sl.level + 1; i <= lvl; i++ {
			update[i] = sl.head
		}
		sl.level = lvl
	}

	n := newNode(key, nil, true, lvl)
	for i := 0; i <= lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}
	sl.size += 24
	return true
}

// Record is one (key, value, deleted) tuple produced by Traverse or Scan.
type Record struct {
	Key     uint64
	Value   []byte
	Deleted bool
}

// Traverse returns every node, live or tombstoned, in ascending key order.
// It is used to hand the frozen immutable memtable's full contents to the
// flush path.
func (sl *SkipList) Traverse() []Record {
	var out []Record
	for cur := sl.head.forward[0]; cur != nil; cur = cur.forward[0] {
		out = append(out, Record{Key: cur.key, Value: cur.value, Deleted: cur.deleted})
	}
	return out
}

// Scan returns live (non-tombstoned) entries with keys in [lower, upper],
// in ascending order.
func (sl *SkipList) Scan(lower, upper uint64) []Record {
	cur := sl.head
	for lvl := sl.level; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && cur.forward[lvl].key < lower {
			cur = cur.forward[lvl]
		}
	}
	cur = cur.forward[0]

	var out []Record
	for cur != nil && cur.key <= upper {
		if !cur.deleted {
			out = append(out, Record{Key: cur.key, Value: cur.value})
		}
		cur = cur.forward[0]
	}
	return out
}

// RangeEntries returns every node, live or tombstoned, with key in
// [lower, upper], in ascending order. Unlike Scan it does not drop
// tombstones: the engine's cross-generation scan needs to know a key was
// deleted in this memtable so it can shadow the same key in the
// immutable memtable and on disk, not just omit it from the memtable's
// own contribution.
func (sl *SkipList) RangeEntries(lower, upper uint64) []Record {
	cur := sl.head
	for lvl := sl.level; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && cur.forward[lvl].key < lower {
			cur = cur.forward[lvl]
		}
	}
	cur = cur.forward[0]

	var out []Record
	for cur != nil && cur.key <= upper {
		out = append(out, Record{Key: cur.key, Value: cur.value, Deleted: cur.deleted})
		cur = cur.forward[0]
	}
	return out
}

// Reset empties the list.
func (sl *SkipList) Reset() {
	sl.head = newNode(sentinelKey, nil, false, maxLevel)
	sl.level = -1
	sl.size = 0
}
