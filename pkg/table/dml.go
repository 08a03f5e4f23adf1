package table

import "github.com/cuemby/arbiter/pkg/errs"

func (s *Store) markDirty(name string) {
	if s.dirty == nil {
		s.dirty = make(map[string]bool)
	}
	s.dirty[name] = true
}

// Insert appends rows to the named table, returning their assigned row
// ids in order.
func (s *Store) Insert(tableName string, rows ...Row) ([]uint64, error) {
	if s.quiesced {
		return nil, errs.New(errs.WrongState, "store is quiesced after a failed rollback")
	}
	t, ok := s.tables[tableName]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "table %q not found", tableName)
	}

	ids := make([]uint64, len(rows))
	for i, row := range rows {
		id := t.insertRow(row)
		ids[i] = id
		if s.depth > 0 {
			s.log = append(s.log, logEntry{kind: logInserted, table: tableName, rowID: id})
			s.markDirty(tableName)
		}
		t.triggers.fire(TriggerRowInsert, TriggerEvent{Table: tableName, RowID: id, Row: row.clone()})
	}
	return ids, nil
}

// Update applies sets (column index -> new value) to every row matching
// where, returning the number of rows changed.
func (s *Store) Update(tableName string, where Expr, ctx EvalCtx, sets map[int]Value) (int, error) {
	if s.quiesced {
		return 0, errs.New(errs.WrongState, "store is quiesced after a failed rollback")
	}
	t, ok := s.tables[tableName]
	if !ok {
		return 0, errs.Newf(errs.NotFound, "table %q not found", tableName)
	}

	var matched []uint64
	t.ascend(func(id uint64, row Row) bool {
		if where.Eval(row, ctx) {
			matched = append(matched, id)
		}
		return true
	})

	count := 0
	for _, id := range matched {
		oldRow := t.rows[id].clone()
		newRow := oldRow.clone()
		var changedCols []int
		for col, v := range sets {
			if col < 0 || col >= len(newRow) {
				continue
			}
			if !newRow[col].equal(v) {
				changedCols = append(changedCols, col)
			}
			newRow[col] = v
		}
		if len(changedCols) == 0 {
			continue
		}
		t.updateRowByID(id, newRow)
		if s.depth > 0 {
			s.log = append(s.log, logEntry{
				kind:        logUpdated,
				table:       tableName,
				rowID:       id,
				updatedCols: changedCols,
				priorRow:    oldRow,
			})
			s.markDirty(tableName)
		}
		for _, col := range changedCols {
			t.triggers.fire(TriggerColumnChange, TriggerEvent{
				Table:    tableName,
				RowID:    id,
				Column:   col,
				OldValue: oldRow[col],
				NewValue: newRow[col],
			})
		}
		count++
	}
	return count, nil
}

// Delete removes every row matching where, returning the number removed.
func (s *Store) Delete(tableName string, where Expr, ctx EvalCtx) (int, error) {
	if s.quiesced {
		return 0, errs.New(errs.WrongState, "store is quiesced after a failed rollback")
	}
	t, ok := s.tables[tableName]
	if !ok {
		return 0, errs.Newf(errs.NotFound, "table %q not found", tableName)
	}

	var matched []uint64
	t.ascend(func(id uint64, row Row) bool {
		if where.Eval(row, ctx) {
			matched = append(matched, id)
		}
		return true
	})

	for _, id := range matched {
		row, ok := t.deleteRowByID(id)
		if !ok {
			continue
		}
		if s.depth > 0 {
			s.log = append(s.log, logEntry{kind: logDeleted, table: tableName, rowID: id, priorRow: row})
			s.markDirty(tableName)
		}
		t.triggers.fire(TriggerRowDelete, TriggerEvent{Table: tableName, RowID: id, Row: row})
	}
	return len(matched), nil
}

// Select returns every row matching where, in index order. cols
// projects the result to the named column indices; a nil cols returns
// full rows.
func (s *Store) Select(tableName string, where Expr, ctx EvalCtx, cols []int) ([]Row, error) {
	t, ok := s.tables[tableName]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "table %q not found", tableName)
	}

	var out []Row
	t.ascend(func(_ uint64, row Row) bool {
		if !where.Eval(row, ctx) {
			return true
		}
		if cols == nil {
			out = append(out, row.clone())
			return true
		}
		projected := make(Row, len(cols))
		for i, c := range cols {
			if c >= 0 && c < len(row) {
				projected[i] = row[c]
			}
		}
		out = append(out, projected)
		return true
	})
	return out, nil
}
