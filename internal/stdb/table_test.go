package stdb

import (
	"encoding/json"
	"testing"
)

type testRow struct {
	ID    uint64 `json:"id"`
	Owner uint64 `json:"owner"`
	Name  string `json:"name"`
}

func rows(t *testing.T, rs ...testRow) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(rs))
	for _, r := range rs {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal row: %v", err)
		}
		out = append(out, data)
	}
	return out
}

func newTestTable() *TableCache[uint64, testRow] {
	return NewTableCache("things", func(r testRow) uint64 { return r.ID })
}

func applyAndFire(t *testing.T, tbl *TableCache[uint64, testRow], updates ...QueryUpdate) rowCounts {
	t.Helper()
	pending, counts, err := tbl.apply(Event{Kind: EventTransaction}, updates)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	for _, fn := range pending {
		fn()
	}
	return counts
}

func TestTableCache_InsertUpdateDelete(t *testing.T) {
	tbl := newTestTable()

	var inserted, deleted []testRow
	var updated [][2]testRow
	tbl.OnInsert(func(_ Event, r testRow) { inserted = append(inserted, r) })
	tbl.OnDelete(func(_ Event, r testRow) { deleted = append(deleted, r) })
	tbl.OnUpdate(func(_ Event, o, n testRow) { updated = append(updated, [2]testRow{o, n}) })

	counts := applyAndFire(t, tbl, QueryUpdate{Inserts: rows(t,
		testRow{ID: 1, Name: "a"},
		testRow{ID: 2, Name: "b"},
	)})
	if counts.inserted != 2 {
		t.Errorf("inserted = %d, want 2", counts.inserted)
	}
	if tbl.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", tbl.Count())
	}

	// Delete + insert of the same key is an update.
	counts = applyAndFire(t, tbl, QueryUpdate{
		Deletes: rows(t, testRow{ID: 1, Name: "a"}),
		Inserts: rows(t, testRow{ID: 1, Name: "a2"}),
	})
	if counts.updated != 1 || counts.inserted != 0 || counts.deleted != 0 {
		t.Errorf("counts = %+v, want one update", counts)
	}
	if len(updated) != 1 || updated[0][0].Name != "a" || updated[0][1].Name != "a2" {
		t.Errorf("updated = %+v", updated)
	}

	counts = applyAndFire(t, tbl, QueryUpdate{Deletes: rows(t, testRow{ID: 2, Name: "b"})})
	if counts.deleted != 1 {
		t.Errorf("deleted = %d, want 1", counts.deleted)
	}
	if len(deleted) != 1 || deleted[0].ID != 2 {
		t.Errorf("deleted = %+v", deleted)
	}

	if _, ok := tbl.Find(2); ok {
		t.Error("Find(2) found a deleted row")
	}
	if r, ok := tbl.Find(1); !ok || r.Name != "a2" {
		t.Errorf("Find(1) = %+v, %v", r, ok)
	}
	if len(inserted) != 2 {
		t.Errorf("insert callbacks = %d, want 2", len(inserted))
	}
}

func TestTableCache_CallbacksSeeMutatedCache(t *testing.T) {
	tbl := newTestTable()

	var seen int
	tbl.OnInsert(func(_ Event, r testRow) {
		if _, ok := tbl.Find(r.ID); ok {
			seen++
		}
	})

	applyAndFire(t, tbl, QueryUpdate{Inserts: rows(t, testRow{ID: 7})})
	if seen != 1 {
		t.Errorf("row visible in %d callbacks, want 1", seen)
	}
}

func TestTableCache_DeleteUnknownRow(t *testing.T) {
	tbl := newTestTable()

	fired := false
	tbl.OnDelete(func(Event, testRow) { fired = true })

	counts := applyAndFire(t, tbl, QueryUpdate{Deletes: rows(t, testRow{ID: 99})})
	if counts.deleted != 0 || fired {
		t.Errorf("deleting an uncached row fired callbacks (counts %+v)", counts)
	}
}

func TestTableCache_RemoveCallback(t *testing.T) {
	tbl := newTestTable()

	calls := 0
	id := tbl.OnInsert(func(Event, testRow) { calls++ })
	if !tbl.RemoveCallback(id) {
		t.Fatal("RemoveCallback() = false, want true")
	}
	if tbl.RemoveCallback(id) {
		t.Error("second RemoveCallback() = true, want false")
	}

	applyAndFire(t, tbl, QueryUpdate{Inserts: rows(t, testRow{ID: 1})})
	if calls != 0 {
		t.Errorf("removed callback ran %d times", calls)
	}
}

func TestTableCache_IterOrder(t *testing.T) {
	tbl := newTestTable()
	applyAndFire(t, tbl, QueryUpdate{Inserts: rows(t,
		testRow{ID: 3}, testRow{ID: 1}, testRow{ID: 2},
	)})

	got := tbl.Iter()
	want := []uint64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("Iter() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Iter()[%d].ID = %d, want %d", i, got[i].ID, want[i])
		}
	}

	odd := tbl.Filter(func(r testRow) bool { return r.ID%2 == 1 })
	if len(odd) != 2 {
		t.Errorf("Filter() len = %d, want 2", len(odd))
	}
}

func TestTableCache_StringEncodedRows(t *testing.T) {
	tbl := newTestTable()
	raw, _ := json.Marshal(`{"id":5,"name":"boxed"}`)

	applyAndFire(t, tbl, QueryUpdate{Inserts: []json.RawMessage{raw}})
	if r, ok := tbl.Find(5); !ok || r.Name != "boxed" {
		t.Errorf("Find(5) = %+v, %v", r, ok)
	}
}

func TestTableCache_BadRow(t *testing.T) {
	tbl := newTestTable()
	_, _, err := tbl.apply(Event{}, []QueryUpdate{{Inserts: []json.RawMessage{json.RawMessage(`[1,2]`)}}})
	if err == nil {
		t.Fatal("apply of malformed row returned nil error")
	}
	if tbl.Count() != 0 {
		t.Errorf("Count() = %d after failed apply, want 0", tbl.Count())
	}
}

func TestIndexes(t *testing.T) {
	tbl := newTestTable()
	byName := NewUniqueIndex(tbl, func(r testRow) string { return r.Name })
	byOwner := NewBTreeIndex(tbl, func(r testRow) uint64 { return r.Owner })

	applyAndFire(t, tbl, QueryUpdate{Inserts: rows(t,
		testRow{ID: 1, Owner: 10, Name: "a"},
		testRow{ID: 2, Owner: 10, Name: "b"},
		testRow{ID: 3, Owner: 20, Name: "c"},
	)})

	if r, ok := byName.Find("b"); !ok || r.ID != 2 {
		t.Errorf("byName.Find(b) = %+v, %v", r, ok)
	}
	if got := byOwner.Filter(10); len(got) != 2 {
		t.Errorf("byOwner.Filter(10) len = %d, want 2", len(got))
	}

	// Moving row 2 to owner 20 and renaming it updates both indexes.
	applyAndFire(t, tbl, QueryUpdate{
		Deletes: rows(t, testRow{ID: 2, Owner: 10, Name: "b"}),
		Inserts: rows(t, testRow{ID: 2, Owner: 20, Name: "bb"}),
	})
	if _, ok := byName.Find("b"); ok {
		t.Error("byName still finds the old value")
	}
	if r, ok := byName.Find("bb"); !ok || r.Owner != 20 {
		t.Errorf("byName.Find(bb) = %+v, %v", r, ok)
	}
	if got := byOwner.Filter(10); len(got) != 1 {
		t.Errorf("byOwner.Filter(10) len = %d, want 1", len(got))
	}
	if got := byOwner.Filter(20); len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Errorf("byOwner.Filter(20) = %+v", got)
	}

	applyAndFire(t, tbl, QueryUpdate{Deletes: rows(t, testRow{ID: 3, Owner: 20, Name: "c"})})
	if got := byOwner.Filter(20); len(got) != 1 {
		t.Errorf("byOwner.Filter(20) after delete len = %d, want 1", len(got))
	}
}
