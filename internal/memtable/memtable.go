// Package memtable provides the in-memory ordered index from key to the
// byte offset of its latest record in the database's dirty log.
package memtable

import (
	"bytes"

	"github.com/google/btree"
)

// item is a single key/offset binding stored in the underlying btree.
type item struct {
	key    []byte
	offset uint64
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Memtable is an ordered map from key bytes to the absolute offset within
// the dirty log where that key's most recent record begins. Ordering by
// key is required both for deterministic, sorted flush output and for
// O(log n) lookups.
type Memtable struct {
	t *btree.BTreeG[item]
}

// New creates an empty memtable.
func New() *Memtable {
	return &Memtable{t: btree.NewG(32, less)}
}

// Set records that key's latest entry starts at offset, overwriting any
// prior binding for the same key. The key is copied so the caller's
// backing array (often a reused read buffer) can be mutated or reused
// afterwards.
func (m *Memtable) Set(key []byte, offset uint64) {
	owned := make([]byte, len(key))
	copy(owned, key)
	m.t.ReplaceOrInsert(item{key: owned, offset: offset})
}

// Get returns the offset of key's latest record and whether key is present.
func (m *Memtable) Get(key []byte) (uint64, bool) {
	it, ok := m.t.Get(item{key: key})
	if !ok {
		return 0, false
	}
	return it.offset, true
}

// Len reports the number of distinct keys currently indexed.
func (m *Memtable) Len() int {
	return m.t.Len()
}

// Clear empties the memtable, as happens immediately after a successful flush.
func (m *Memtable) Clear() {
	m.t = btree.NewG(32, less)
}

// Ascend visits every (key, offset) pair in ascending key order, stopping
// early if fn returns false. Used by flush to stream a sorted segment.
func (m *Memtable) Ascend(fn func(key []byte, offset uint64) bool) {
	m.t.Ascend(func(it item) bool {
		return fn(it.key, it.offset)
	})
}
