// Package filter implements the per-SST membership filter: a set of Bloom
// filters, one per (level, fileID) pair, that lets the read path skip a
// disk read for a key that is definitely absent from a given SST.
//
// The single-filter algorithm is ported from original_source/bloom.h and
// bloom.cc bit-for-bit: a 32-bit MurmurHash3 of the raw 8-byte key (seed 0)
// seeds a double-hashing probe schedule h, h+δ, h+2δ, ... mod m, where
// δ = rotr(h, 17). With the default m and k the false-positive rate is
// about 10^-4 at n = 10^5 keys; at n = 10^6 keys it is close to 1.
package filter

import "github.com/bits-and-blooms/bitset"

const (
	// defaultM is the number of bits in the filter, per spec.md §6.
	defaultM = 2_000_000
	// defaultK is the number of hash probes per key, per spec.md §6.
	defaultK = 14
)

// bloom is a single Bloom filter over an m-bit array, backed by
// bits-and-blooms/bitset for the underlying storage.
type bloom struct {
	bits *bitset.BitSet
	m    uint
	k    int
}

func newBloom(m uint, k int) *bloom {
	return &bloom{bits: bitset.New(m), m: m, k: k}
}

// add sets the k probe positions derived from key.
func (b *bloom) add(key uint64) {
	h := murmur3x86_32(key, 0)
	delta := rotr32(h, 17)
	for i := 0; i < b.k; i++ {
		b.bits.Set(uint(h) % b.m)
		h += delta
	}
}

// contains reports whether every probe position for key is set. A false
// result means key is definitely absent; a true result may be a false
// positive.
func (b *bloom) contains(key uint64) bool {
	h := murmur3x86_32(key, 0)
	delta := rotr32(h, 17)
	for i := 0; i < b.k; i++ {
		if !b.bits.Test(uint(h) % b.m) {
			return false
		}
		h += delta
	}
	return true
}

func (b *bloom) reset() {
	b.bits.ClearAll()
}

func rotr32(x uint32, r uint) uint32 {
	return (x >> r) | (x << (32 - r))
}

// murmur3x86_32 hashes the raw little-endian 8-byte encoding of key with
// the 32-bit x86 variant of MurmurHash3, matching
// original_source/bloom.cc's call to MurmurHash3_x86_32(&key,
// sizeof(uint64_t), 0, &h).
func murmur3x86_32(key uint64, seed uint32) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	data := [8]byte{
		byte(key), byte(key >> 8), byte(key >> 16), byte(key >> 24),
		byte(key >> 32), byte(key >> 40), byte(key >> 48), byte(key >> 56),
	}

	h := seed

	mixBlock := func(block uint32) {
		block *= c1
		block = (block << 15) | (block >> 17)
		block *= c2

		h ^= block
		h = (h << 13) | (h >> 19)
		h = h*5 + 0xe6546b64
	}

	b1 := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	b2 := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	mixBlock(b1)
	mixBlock(b2)

	h ^= 8
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16

	return h
}
