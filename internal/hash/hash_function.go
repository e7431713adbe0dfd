package hash

import "github.com/cespare/xxhash/v2"

// HashFunction fingerprints an 8-byte key into a 64-bit hash. The default
// (XXHash) uses github.com/cespare/xxhash/v2, the same hashing primitive
// ristretto depends on elsewhere in this module's dependency graph, in
// place of a hand-rolled mixing function.
type HashFunction func(key uint64) uint64

// XXHash is the default HashFunction.
func XXHash(key uint64) uint64 {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key)
		key >>= 8
	}
	return xxhash.Sum64(buf[:])
}

// KeyComparator orders two keys; zero means equal, matching the
// comparator contract the original hash table takes as a constructor
// argument.
type KeyComparator func(a, b uint64) int

// Uint64Comparator is the natural ordering used when keys are plain
// uint64s (the "IntComparator" instantiation in the original source).
func Uint64Comparator(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
