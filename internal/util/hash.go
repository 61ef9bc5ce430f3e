// Package util contains internal helpers: key hashing, shard sizing and
// cache-line padded counters.
package util

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes s with 64-bit FNV-1a. Grain identities are opaque
// strings, so a fast non-cryptographic string hash is all sharding needs.
func Fnv64a(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}
