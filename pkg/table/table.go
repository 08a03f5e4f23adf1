package table

import (
	"strings"

	"github.com/google/btree"

	"github.com/cuemby/arbiter/pkg/errs"
)

const btreeDegree = 32

// indexItem is the ordered-index entry: composite key first, row id
// second, so rows sharing a key are still totally ordered and
// individually addressable.
type indexItem struct {
	key   string
	rowID uint64
}

func (a indexItem) Less(than btree.Item) bool {
	b := than.(indexItem)
	if a.key != b.key {
		return a.key < b.key
	}
	return a.rowID < b.rowID
}

// Table is a named, typed, indexed collection of rows. All tables are
// temporary (process-lifetime only); there is no persistence layer.
type Table struct {
	name      string
	columns   []ColumnDef
	indexCols []int

	rows      map[uint64]Row
	nextRowID uint64
	hashIndex map[string][]uint64
	seq       *btree.BTree

	triggers *triggerSet
	stamp    uint64
}

func newTable(name string, columns []ColumnDef, indexCols []int) *Table {
	return &Table{
		name:      name,
		columns:   columns,
		indexCols: indexCols,
		rows:      make(map[uint64]Row),
		hashIndex: make(map[string][]uint64),
		seq:       btree.New(btreeDegree),
		triggers:  newTriggerSet(),
	}
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// Columns returns the table's column schema.
func (t *Table) Columns() []ColumnDef { return t.columns }

// Stamp returns the table's modification counter, advanced once per
// outermost transaction that touched it.
func (t *Table) Stamp() uint64 { return t.stamp }

// Len returns the current row count.
func (t *Table) Len() int { return len(t.rows) }

func (t *Table) indexKey(row Row) string {
	if len(t.indexCols) == 0 {
		return ""
	}
	parts := make([]string, len(t.indexCols))
	for i, c := range t.indexCols {
		if c < len(row) {
			parts[i] = row[c].encode()
		}
	}
	return strings.Join(parts, "\x1f")
}

func (t *Table) insertRow(row Row) uint64 {
	id := t.nextRowID
	t.nextRowID++
	t.reinsertRow(id, row)
	return id
}

// reinsertRow places row back under a specific id, used both for fresh
// inserts (via insertRow) and for rollback reinstatement of a deleted
// row, which must keep its original id.
func (t *Table) reinsertRow(id uint64, row Row) {
	t.rows[id] = row.clone()
	key := t.indexKey(row)
	t.hashIndex[key] = append(t.hashIndex[key], id)
	t.seq.ReplaceOrInsert(indexItem{key: key, rowID: id})
}

func (t *Table) deleteRowByID(id uint64) (Row, bool) {
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	delete(t.rows, id)
	key := t.indexKey(row)
	t.removeFromHash(key, id)
	t.seq.Delete(indexItem{key: key, rowID: id})
	return row, true
}

func (t *Table) updateRowByID(id uint64, newRow Row) (Row, bool) {
	old, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	oldKey := t.indexKey(old)
	newKey := t.indexKey(newRow)
	t.rows[id] = newRow.clone()
	if oldKey != newKey {
		t.removeFromHash(oldKey, id)
		t.seq.Delete(indexItem{key: oldKey, rowID: id})
		t.hashIndex[newKey] = append(t.hashIndex[newKey], id)
		t.seq.ReplaceOrInsert(indexItem{key: newKey, rowID: id})
	}
	return old, true
}

func (t *Table) removeFromHash(key string, id uint64) {
	ids := t.hashIndex[key]
	for i, v := range ids {
		if v == id {
			t.hashIndex[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.hashIndex[key]) == 0 {
		delete(t.hashIndex, key)
	}
}

// Lookup performs a point lookup on the composite index for the given
// column values, returning matching row ids in index order.
func (t *Table) Lookup(values ...Value) []uint64 {
	row := make(Row, len(t.columns))
	for i, c := range t.indexCols {
		if i < len(values) && c < len(row) {
			row[c] = values[i]
		}
	}
	key := strings.Join(func() []string {
		parts := make([]string, len(t.indexCols))
		for i := range t.indexCols {
			if i < len(values) {
				parts[i] = values[i].encode()
			}
		}
		return parts
	}(), "\x1f")
	ids := t.hashIndex[key]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// ascend iterates rows in index order, invoking fn for each. Stops early
// if fn returns false.
func (t *Table) ascend(fn func(id uint64, row Row) bool) {
	t.seq.Ascend(func(item btree.Item) bool {
		it := item.(indexItem)
		row, ok := t.rows[it.rowID]
		if !ok {
			return true
		}
		return fn(it.rowID, row)
	})
}

// Store owns a set of named tables and the single process-wide
// transaction (depth, handle, and reverse-executable change log) shared
// by every nested Begin within it.
type Store struct {
	tables map[string]*Table

	depth     int
	log       []logEntry
	dirty     map[string]bool
	quiesced  bool
}

// NewStore creates an empty table store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// CreateTable declares a new table with the given schema and composite
// index columns. Returns EXISTS if the name is already taken.
func (s *Store) CreateTable(name string, columns []ColumnDef, indexCols []int) (*Table, error) {
	if _, ok := s.tables[name]; ok {
		return nil, errs.Newf(errs.Exists, "table %q already exists", name)
	}
	t := newTable(name, columns, indexCols)
	s.tables[name] = t
	t.triggers.fire(TriggerTableEvent, TriggerEvent{Table: name, TableEvent: TableCreated})
	return t, nil
}

// Table returns the named table, or nil if it does not exist.
func (s *Store) Table(name string) *Table {
	return s.tables[name]
}

// DropTable removes a table. If called inside an active transaction, it
// cancels any pending log entries referencing that table, since there is
// nothing left to roll back to.
func (s *Store) DropTable(name string) error {
	t, ok := s.tables[name]
	if !ok {
		return errs.Newf(errs.NotFound, "table %q not found", name)
	}
	delete(s.tables, name)
	delete(s.dirty, name)
	if s.depth > 0 {
		filtered := s.log[:0]
		for _, e := range s.log {
			if e.table != name {
				filtered = append(filtered, e)
			}
		}
		s.log = filtered
	}
	t.triggers.fire(TriggerTableEvent, TriggerEvent{Table: name, TableEvent: TableDropped})
	return nil
}

// RegisterTrigger attaches fn under id to the named table for kind.
// Re-registering the same id for the same kind is a no-op.
func (s *Store) RegisterTrigger(tableName string, kind TriggerKind, id any, fn TriggerFunc) error {
	t, ok := s.tables[tableName]
	if !ok {
		return errs.Newf(errs.NotFound, "table %q not found", tableName)
	}
	t.triggers.register(kind, id, fn)
	return nil
}

// UnregisterTrigger removes a previously registered handler.
func (s *Store) UnregisterTrigger(tableName string, kind TriggerKind, id any) {
	if t, ok := s.tables[tableName]; ok {
		t.triggers.unregister(kind, id)
	}
}
