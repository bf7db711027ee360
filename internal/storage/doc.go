// Package storage provides the embedded persistence of the vote receiver.
//
//   - kv.go: the KV interface and Badger tuning knobs
//   - badger.go: KV on Badger v3 with background value log GC
//   - keystore.go: keystore.Persistence on a KV (keys.backend: badger)
//   - journal.go: a dispatch.Sink that records delivered votes
//
// The directory-based key layout lives in the keyfile subpackage.
package storage
