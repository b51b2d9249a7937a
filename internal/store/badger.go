package store

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// badgerDB backs store.DB with an embedded badger.DB (teacher pattern:
// open a handle once, wrap every access in a short-lived closure, wrap
// errors with fmt.Errorf("...: %w", err), as internal/plex/dvr.go does
// around its modernc.org/sqlite handle).
type badgerDB struct {
	bdb *badger.DB
}

// OpenBadger opens (creating if absent) a badger store rooted at dir.
func OpenBadger(dir string) (DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // the core never wants badger's own chatter; see auditlog for our decision trail
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %q: %w", dir, err)
	}
	return &badgerDB{bdb: bdb}, nil
}

func (d *badgerDB) Update(fn func(Txn) error) error {
	err := d.bdb.Update(func(btxn *badger.Txn) error {
		t := &badgerTxn{btxn: btxn}
		if err := fn(t); err != nil {
			return err
		}
		return t.flushNested()
	})
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	return nil
}

func (d *badgerDB) View(fn func(Txn) error) error {
	err := d.bdb.View(func(btxn *badger.Txn) error {
		t := &badgerTxn{btxn: btxn, readOnly: true}
		return fn(t)
	})
	if err != nil {
		return fmt.Errorf("store: view: %w", err)
	}
	return nil
}

func (d *badgerDB) Close() error {
	return d.bdb.Close()
}

// badgerTxn backs store.Txn with a badger.Txn. Every write — whether made
// directly or inside a Nested callback — is staged in the in-memory
// pending overlay rather than applied to btxn immediately; Nested has no
// real child transaction to isolate writes in, since badger has no
// nested-transaction primitive (spec §9 design notes), so isolation comes
// entirely from pending only being folded upward (Nested into its parent,
// the outermost txn into btxn) when the corresponding callback returns
// nil. A callback that errors leaves its writes out of that fold, so they
// never reach btxn at all.
type badgerTxn struct {
	btxn     *badger.Txn
	readOnly bool
	pending  []pendingWrite
}

type pendingWrite struct {
	del   bool
	key   []byte
	value []byte
}

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	for i := len(t.pending) - 1; i >= 0; i-- {
		if bytes.Equal(t.pending[i].key, key) {
			if t.pending[i].del {
				return nil, ErrNotFound
			}
			return t.pending[i].value, nil
		}
	}
	item, err := t.btxn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Put(key, value []byte) error {
	if t.readOnly {
		return fmt.Errorf("store: put on read-only transaction")
	}
	kc := append([]byte(nil), key...)
	vc := append([]byte(nil), value...)
	t.pending = append(t.pending, pendingWrite{key: kc, value: vc})
	return nil
}

func (t *badgerTxn) Delete(key []byte) error {
	if t.readOnly {
		return fmt.Errorf("store: delete on read-only transaction")
	}
	kc := append([]byte(nil), key...)
	t.pending = append(t.pending, pendingWrite{del: true, key: kc})
	return nil
}

// Seek materializes every record sharing prefix into an ordered snapshot and
// returns a cursor walking that snapshot. Badger's iterator direction is
// fixed at construction (forward xor reverse), but the fuzzy mux search
// needs to step backward then forward across one position (spec §9), so we
// snapshot the (bounded — one sat/pol or one card's frontends) prefix range
// once and let the cursor move an index either way.
func (t *badgerTxn) Seek(prefix, start []byte, mode SeekMode) Cursor {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.btxn.NewIterator(opts)
	defer it.Close()

	var items []kv
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().KeyCopy(nil)
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			continue
		}
		items = append(items, kv{k, v})
	}
	items = mergePending(items, t.pending, prefix)

	idx := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, start) >= 0
	})
	switch mode {
	case SeekEQ:
		if idx < len(items) && bytes.Equal(items[idx].key, start) {
			return &sliceCursor{items: items, pos: idx}
		}
		return &sliceCursor{items: items, pos: len(items)}
	case SeekGEQ:
		return &sliceCursor{items: items, pos: idx}
	default: // SeekLEQ
		if idx < len(items) && bytes.Equal(items[idx].key, start) {
			return &sliceCursor{items: items, pos: idx}
		}
		return &sliceCursor{items: items, pos: idx - 1}
	}
}

// Nested stages fn's writes in an overlay invisible to the parent until fn
// returns nil, then folds them into the parent's own pending list.
func (t *badgerTxn) Nested(fn func(Txn) error) error {
	child := &badgerTxn{btxn: t.btxn, readOnly: t.readOnly}
	child.pending = append(child.pending, t.pending...)
	if err := fn(child); err != nil {
		return err
	}
	t.pending = child.pending
	return nil
}

// flushNested applies every write staged on the outermost transaction —
// its own direct Put/Delete calls plus anything folded up from Nested
// callbacks — to the real badger transaction. Called once, at the outer
// Update boundary, after fn has returned nil.
func (t *badgerTxn) flushNested() error {
	for _, w := range t.pending {
		if w.del {
			if err := t.btxn.Delete(w.key); err != nil {
				return err
			}
			continue
		}
		if err := t.btxn.Set(w.key, w.value); err != nil {
			return err
		}
	}
	t.pending = nil
	return nil
}

type kv struct {
	key, value []byte
}

// mergePending overlays staged writes onto a freshly-read snapshot so a
// nested transaction's own uncommitted writes are visible to cursors it
// opens afterward.
func mergePending(items []kv, pending []pendingWrite, prefix []byte) []kv {
	if len(pending) == 0 {
		return items
	}
	byKey := make(map[string]kv, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		s := string(it.key)
		byKey[s] = it
		order = append(order, s)
	}
	for _, w := range pending {
		if !bytes.HasPrefix(w.key, prefix) {
			continue
		}
		s := string(w.key)
		if w.del {
			delete(byKey, s)
			continue
		}
		if _, ok := byKey[s]; !ok {
			order = append(order, s)
		}
		byKey[s] = kv{w.key, w.value}
	}
	out := make([]kv, 0, len(byKey))
	for _, s := range order {
		if v, ok := byKey[s]; ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return out
}

// sliceCursor implements Cursor over a pre-sorted in-memory snapshot.
type sliceCursor struct {
	items []kv
	pos   int
}

func (c *sliceCursor) Valid() bool { return c.pos >= 0 && c.pos < len(c.items) }
func (c *sliceCursor) Next()       { c.pos++ }
func (c *sliceCursor) Prev()       { c.pos-- }
func (c *sliceCursor) Item() (key, value []byte) {
	it := c.items[c.pos]
	return it.key, it.value
}
