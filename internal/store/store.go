// Package store provides the ordered, transactional key-value substrate
// spec.md treats as an external collaborator (§6): typed records under
// prefix-searchable keys, cursors seekable by exact/less-or-equal/
// greater-or-equal position and walkable forward or backward, and
// read-write transactions that commit or abort as a unit.
//
// The concrete backend is github.com/dgraph-io/badger/v4 (see badger.go);
// callers in chdb/devdb depend only on the DB/Txn/Cursor interfaces here so
// an in-memory fake can stand in for tests.
package store

import "errors"

// ErrNotFound is returned by Txn.Get when key does not exist.
var ErrNotFound = errors.New("store: key not found")

// SeekMode selects how Txn.Seek positions the returned cursor relative to
// start, mirroring the source's find_eq/find_leq/find_geq (spec §6, §9).
type SeekMode int

const (
	SeekEQ SeekMode = iota
	SeekLEQ
	SeekGEQ
)

// Cursor walks an ordered range of records sharing a key prefix. Prev/Next
// remain on one owned cursor because the fuzzy mux search must walk
// backward to find the bottom of an overlapping range and then forward
// again (spec §9 design notes).
type Cursor interface {
	// Valid reports whether the cursor currently points at a record.
	Valid() bool
	// Next advances to the following record in prefix order.
	Next()
	// Prev steps back to the preceding record in prefix order.
	Prev()
	// Item returns the key/value the cursor currently points at. Only
	// valid to call when Valid() is true.
	Item() (key, value []byte)
}

// Txn is a single read or read-write transaction.
type Txn interface {
	// Get fetches the exact value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Put writes key/value. Only valid on a write transaction.
	Put(key, value []byte) error
	// Delete removes key. Only valid on a write transaction.
	Delete(key []byte) error
	// Seek returns a cursor positioned within the keys sharing prefix,
	// starting at or near start according to mode.
	Seek(prefix, start []byte, mode SeekMode) Cursor
	// Nested runs fn against a staged child transaction: writes fn makes
	// are invisible to the parent until fn returns nil, at which point
	// they are folded into the parent's own pending writes and committed
	// together at the outer Update boundary. If fn returns an error the
	// staged writes are discarded and the parent is untouched. This
	// emulates nested transactions on a backend (badger) that has none
	// (spec §9 design notes).
	Nested(fn func(Txn) error) error
}

// DB is a handle to the store.
type DB interface {
	// Update runs fn inside one write transaction; fn's writes commit
	// atomically if fn returns nil, and are discarded otherwise. All of
	// spec.md's scheduling guarantees (§5) hinge on every arbitration
	// decision and its resulting writes happening inside one Update call.
	Update(fn func(Txn) error) error
	// View runs fn inside one read-only, snapshot-consistent transaction.
	View(fn func(Txn) error) error
	// Close releases the underlying handle.
	Close() error
}
