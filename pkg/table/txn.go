package table

import "github.com/cuemby/arbiter/pkg/errs"

type logKind int

const (
	logInserted logKind = iota
	logDeleted
	logUpdated
)

// logEntry is one reverse-executable change-log record. The tagged
// variant shape mirrors {inserted(table,row_key), deleted(table,
// stored_row), updated(table, row_key, column_bitmap, stored_prior_values)}:
// logInserted carries only rowID (undo = delete it), logDeleted carries
// the full stored row (undo = reinstate it under the same id), and
// logUpdated carries the changed column indices plus the full prior row
// (undo = restore it).
type logEntry struct {
	kind        logKind
	table       string
	rowID       uint64
	priorRow    Row
	updatedCols []int
}

// Begin starts (or nests into) a transaction and returns a nonzero
// handle. Nested transactions share the outermost transaction's change
// log; at most one outermost transaction is active at a time.
func (s *Store) Begin() (int, error) {
	if s.quiesced {
		return 0, errs.New(errs.WrongState, "store is quiesced after a failed rollback")
	}
	s.depth++
	if s.depth == 1 {
		s.log = nil
		s.dirty = make(map[string]bool)
		s.fireTableEvent(TransactionStarted)
	}
	return s.depth, nil
}

// Commit ends the transaction identified by handle. Handles must be
// released in LIFO order matching their Begin depth. On the outermost
// commit the change log is discarded, each touched table's stamp
// advances once, and transaction-end triggers fire.
func (s *Store) Commit(handle int) error {
	if handle != s.depth || handle == 0 {
		return errs.Newf(errs.WrongState, "commit handle %d does not match active depth %d", handle, s.depth)
	}
	s.depth--
	if s.depth == 0 {
		for name := range s.dirty {
			if t, ok := s.tables[name]; ok {
				t.stamp++
			}
		}
		s.log = nil
		s.dirty = nil
		s.fireTableEvent(TransactionEnded)
	}
	return nil
}

// Rollback ends the transaction identified by handle, reverting it. On
// the outermost rollback the change log is replayed in reverse:
// insertions are removed, deletions are reinstated under their original
// row id, and updates restore the prior row. Replay over in-memory maps
// cannot fail, so Rollback never quiesces the store; nothing in this
// package sets the quiesced flag that Begin and the DML calls check.
func (s *Store) Rollback(handle int) error {
	if handle != s.depth || handle == 0 {
		return errs.Newf(errs.WrongState, "rollback handle %d does not match active depth %d", handle, s.depth)
	}
	s.depth--
	if s.depth == 0 {
		for i := len(s.log) - 1; i >= 0; i-- {
			entry := s.log[i]
			t, ok := s.tables[entry.table]
			if !ok {
				continue
			}
			switch entry.kind {
			case logInserted:
				t.deleteRowByID(entry.rowID)
			case logDeleted:
				t.reinsertRow(entry.rowID, entry.priorRow)
			case logUpdated:
				t.updateRowByID(entry.rowID, entry.priorRow)
			}
		}
		s.log = nil
		s.dirty = nil
		s.fireTableEvent(TransactionEnded)
	}
	return nil
}

// Depth reports the current transaction nesting depth (0 if idle).
func (s *Store) Depth() int { return s.depth }

func (s *Store) fireTableEvent(kind TableEventKind) {
	for name, t := range s.tables {
		t.triggers.fire(TriggerTableEvent, TriggerEvent{Table: name, TableEvent: kind})
	}
}
