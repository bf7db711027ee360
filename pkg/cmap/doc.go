// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard is guarded by its own RWMutex.
//
// Usage:
//
//	m := cmap.New[*entry]()
//	e, loaded := m.GetOrSet("203.0.113.7", newEntry())
package cmap
