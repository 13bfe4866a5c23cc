package stdb

import (
	"fmt"
	"sync"
)

// CallbackID identifies a registered row callback.
type CallbackID uint64

// Table is a row mirror the connection can apply updates to.
// Only TableCache implements it.
type Table interface {
	TableName() string
	// stage decodes updates without touching the cache. commit mutates
	// the cache and returns the callbacks to fire.
	stage(ev Event, updates []QueryUpdate) (commit func() ([]func(), rowCounts), err error)
}

type rowCounts struct {
	inserted, updated, deleted int64
}

type insertCallback[R any] struct {
	id CallbackID
	fn func(ev Event, row R)
}

type updateCallback[R any] struct {
	id CallbackID
	fn func(ev Event, oldRow, newRow R)
}

// indexHook keeps a secondary index in sync with the cache.
type indexHook[K comparable, R any] interface {
	onInsert(pk K, row R)
	onDelete(pk K, row R)
}

// TableCache is the client-side mirror of one subscribed table, keyed by primary key.
//
// Reads and callback registration are expected on the goroutine that pumps
// FrameTick; the mutex only guards against readers elsewhere (status snapshots).
type TableCache[K comparable, R any] struct {
	name string
	pk   func(R) K

	mu      sync.RWMutex
	rows    map[K]R
	order   []K // insertion order, for stable iteration
	indexes []indexHook[K, R]

	lastCallback CallbackID
	onInsert     []insertCallback[R]
	onDelete     []insertCallback[R]
	onUpdate     []updateCallback[R]
}

// NewTableCache creates an empty mirror for the named table.
func NewTableCache[K comparable, R any](name string, pk func(R) K) *TableCache[K, R] {
	return &TableCache[K, R]{
		name: name,
		pk:   pk,
		rows: make(map[K]R),
	}
}

// TableName returns the server-side table name.
func (t *TableCache[K, R]) TableName() string { return t.name }

// Count returns the number of cached rows.
func (t *TableCache[K, R]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Iter returns a snapshot of all rows in insertion order.
func (t *TableCache[K, R]) Iter() []R {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]R, 0, len(t.rows))
	for _, k := range t.order {
		out = append(out, t.rows[k])
	}
	return out
}

// Find looks a row up by primary key.
func (t *TableCache[K, R]) Find(pk K) (R, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[pk]
	return row, ok
}

// Filter returns every row matching pred, in insertion order.
func (t *TableCache[K, R]) Filter(pred func(R) bool) []R {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []R
	for _, k := range t.order {
		if row := t.rows[k]; pred(row) {
			out = append(out, row)
		}
	}
	return out
}

// OnInsert registers fn for newly inserted rows.
func (t *TableCache[K, R]) OnInsert(fn func(ev Event, row R)) CallbackID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCallback++
	t.onInsert = append(t.onInsert, insertCallback[R]{id: t.lastCallback, fn: fn})
	return t.lastCallback
}

// OnDelete registers fn for removed rows.
func (t *TableCache[K, R]) OnDelete(fn func(ev Event, row R)) CallbackID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCallback++
	t.onDelete = append(t.onDelete, insertCallback[R]{id: t.lastCallback, fn: fn})
	return t.lastCallback
}

// OnUpdate registers fn for rows replaced under the same primary key.
func (t *TableCache[K, R]) OnUpdate(fn func(ev Event, oldRow, newRow R)) CallbackID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCallback++
	t.onUpdate = append(t.onUpdate, updateCallback[R]{id: t.lastCallback, fn: fn})
	return t.lastCallback
}

// RemoveCallback unregisters an insert, update or delete callback.
func (t *TableCache[K, R]) RemoveCallback(id CallbackID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, cb := range t.onInsert {
		if cb.id == id {
			t.onInsert = append(t.onInsert[:i], t.onInsert[i+1:]...)
			return true
		}
	}
	for i, cb := range t.onDelete {
		if cb.id == id {
			t.onDelete = append(t.onDelete[:i], t.onDelete[i+1:]...)
			return true
		}
	}
	for i, cb := range t.onUpdate {
		if cb.id == id {
			t.onUpdate = append(t.onUpdate[:i], t.onUpdate[i+1:]...)
			return true
		}
	}
	return false
}

// apply mutates the cache and returns the callbacks to fire.
// A delete and insert of the same key within one update become an update.
func (t *TableCache[K, R]) apply(ev Event, updates []QueryUpdate) ([]func(), rowCounts, error) {
	commit, err := t.stage(ev, updates)
	if err != nil {
		return nil, rowCounts{}, err
	}
	pending, counts := commit()
	return pending, counts, nil
}

func (t *TableCache[K, R]) stage(ev Event, updates []QueryUpdate) (func() ([]func(), rowCounts), error) {
	var deletes []R
	var inserts []R
	for _, u := range updates {
		for _, raw := range u.Deletes {
			row, err := decodeRow[R](raw)
			if err != nil {
				return nil, fmt.Errorf("table %s delete: %w", t.name, err)
			}
			deletes = append(deletes, row)
		}
		for _, raw := range u.Inserts {
			row, err := decodeRow[R](raw)
			if err != nil {
				return nil, fmt.Errorf("table %s insert: %w", t.name, err)
			}
			inserts = append(inserts, row)
		}
	}

	deleted := make(map[K]R, len(deletes))
	var deleteOrder []K
	for _, row := range deletes {
		k := t.pk(row)
		if _, dup := deleted[k]; !dup {
			deleteOrder = append(deleteOrder, k)
		}
		deleted[k] = row
	}

	return func() ([]func(), rowCounts) {
		return t.commit(ev, inserts, deleted, deleteOrder)
	}, nil
}

func (t *TableCache[K, R]) commit(ev Event, inserts []R, deleted map[K]R, deleteOrder []K) ([]func(), rowCounts) {
	t.mu.Lock()
	insertCbs := append([]insertCallback[R](nil), t.onInsert...)
	deleteCbs := append([]insertCallback[R](nil), t.onDelete...)
	updateCbs := append([]updateCallback[R](nil), t.onUpdate...)

	var pending []func()
	var counts rowCounts

	for _, row := range inserts {
		k := t.pk(row)
		delete(deleted, k)

		if old, cached := t.rows[k]; cached {
			t.replace(k, old, row)
			counts.updated++
			for _, cb := range updateCbs {
				fn, oldRow, newRow := cb.fn, old, row
				pending = append(pending, func() { fn(ev, oldRow, newRow) })
			}
			continue
		}

		t.insert(k, row)
		counts.inserted++
		for _, cb := range insertCbs {
			fn, newRow := cb.fn, row
			pending = append(pending, func() { fn(ev, newRow) })
		}
	}

	for _, k := range deleteOrder {
		if _, stillDeleted := deleted[k]; !stillDeleted {
			continue
		}
		cached, ok := t.rows[k]
		if !ok {
			continue
		}
		t.remove(k, cached)
		counts.deleted++
		for _, cb := range deleteCbs {
			fn, oldRow := cb.fn, cached
			pending = append(pending, func() { fn(ev, oldRow) })
		}
	}
	t.mu.Unlock()

	return pending, counts
}

// insert, replace and remove must be called with mu held.
func (t *TableCache[K, R]) insert(k K, row R) {
	t.rows[k] = row
	t.order = append(t.order, k)
	for _, idx := range t.indexes {
		idx.onInsert(k, row)
	}
}

func (t *TableCache[K, R]) replace(k K, old, row R) {
	for _, idx := range t.indexes {
		idx.onDelete(k, old)
	}
	if _, ok := t.rows[k]; !ok {
		t.order = append(t.order, k)
	}
	t.rows[k] = row
	for _, idx := range t.indexes {
		idx.onInsert(k, row)
	}
}

func (t *TableCache[K, R]) remove(k K, row R) {
	delete(t.rows, k)
	for i, key := range t.order {
		if key == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	for _, idx := range t.indexes {
		idx.onDelete(k, row)
	}
}

// UniqueIndex maps a unique column to the primary key.
type UniqueIndex[C comparable, K comparable, R any] struct {
	table *TableCache[K, R]
	col   func(R) C
	keys  map[C]K
}

// NewUniqueIndex adds a unique index over col to t.
func NewUniqueIndex[C comparable, K comparable, R any](t *TableCache[K, R], col func(R) C) *UniqueIndex[C, K, R] {
	idx := &UniqueIndex[C, K, R]{table: t, col: col, keys: make(map[C]K)}

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, row := range t.rows {
		idx.keys[col(row)] = k
	}
	t.indexes = append(t.indexes, idx)
	return idx
}

// Find returns the row whose indexed column equals v.
func (u *UniqueIndex[C, K, R]) Find(v C) (R, bool) {
	u.table.mu.RLock()
	defer u.table.mu.RUnlock()

	var zero R
	k, ok := u.keys[v]
	if !ok {
		return zero, false
	}
	row, ok := u.table.rows[k]
	return row, ok
}

func (u *UniqueIndex[C, K, R]) onInsert(k K, row R) { u.keys[u.col(row)] = k }

func (u *UniqueIndex[C, K, R]) onDelete(_ K, row R) { delete(u.keys, u.col(row)) }

// BTreeIndex groups rows by a non-unique column.
type BTreeIndex[C comparable, K comparable, R any] struct {
	table *TableCache[K, R]
	col   func(R) C
	keys  map[C]map[K]struct{}
}

// NewBTreeIndex adds a non-unique index over col to t.
func NewBTreeIndex[C comparable, K comparable, R any](t *TableCache[K, R], col func(R) C) *BTreeIndex[C, K, R] {
	idx := &BTreeIndex[C, K, R]{table: t, col: col, keys: make(map[C]map[K]struct{})}

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, row := range t.rows {
		idx.onInsert(k, row)
	}
	t.indexes = append(t.indexes, idx)
	return idx
}

// Filter returns every row whose indexed column equals v, in insertion order.
func (b *BTreeIndex[C, K, R]) Filter(v C) []R {
	b.table.mu.RLock()
	defer b.table.mu.RUnlock()

	set := b.keys[v]
	if len(set) == 0 {
		return nil
	}
	out := make([]R, 0, len(set))
	for _, k := range b.table.order {
		if _, ok := set[k]; ok {
			out = append(out, b.table.rows[k])
		}
	}
	return out
}

func (b *BTreeIndex[C, K, R]) onInsert(k K, row R) {
	c := b.col(row)
	set, ok := b.keys[c]
	if !ok {
		set = make(map[K]struct{})
		b.keys[c] = set
	}
	set[k] = struct{}{}
}

func (b *BTreeIndex[C, K, R]) onDelete(k K, row R) {
	c := b.col(row)
	if set, ok := b.keys[c]; ok {
		delete(set, k)
		if len(set) == 0 {
			delete(b.keys, c)
		}
	}
}
