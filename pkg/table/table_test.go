package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZoneOwnerSchema() []ColumnDef {
	return []ColumnDef{
		{Name: "zone_id", Type: ColUint32},
		{Name: "zone_name", Type: ColString, MaxLen: 24},
		{Name: "application_class", Type: ColString, MaxLen: 24},
		{Name: "resource_set_id", Type: ColUint32},
	}
}

func TestInsertSelect(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})
	require.NoError(t, err)

	_, err = s.Insert("r_owner", Row{
		{Type: ColUint32, U32: 1}, {Type: ColString, Str: "zone-a"}, {Type: ColString, Str: "hi"}, {Type: ColUint32, U32: 7},
	})
	require.NoError(t, err)

	rows, err := s.Select("r_owner", All{}, EvalCtx{}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint32(1), rows[0][0].U32)
}

func TestLookupByIndex(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})
	require.NoError(t, err)

	_, _ = s.Insert("r_owner",
		Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "zone-a"}, {Type: ColString, Str: "hi"}, {Type: ColUint32, U32: 7}},
		Row{{Type: ColUint32, U32: 2}, {Type: ColString, Str: "zone-b"}, {Type: ColString, Str: "hi"}, {Type: ColUint32, U32: 8}},
	)

	ids := s.Table("r_owner").Lookup(Value{Type: ColUint32, U32: 2})
	require.Len(t, ids, 1)
}

func TestUpdateFiresColumnChangeTrigger(t *testing.T) {
	s := NewStore()
	_, err := s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})
	require.NoError(t, err)
	ids, _ := s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "zone-a"}, {Type: ColString, Str: "hi"}, {Type: ColUint32, U32: 7}})

	var fired []TriggerEvent
	require.NoError(t, s.RegisterTrigger("r_owner", TriggerColumnChange, "watcher", func(e TriggerEvent) {
		fired = append(fired, e)
	}))

	count, err := s.Update("r_owner", Cmp{Left: Col(0), Op: Eq, Right: Lit(Value{Type: ColUint32, U32: 1})}, EvalCtx{}, map[int]Value{
		3: {Type: ColUint32, U32: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, fired, 1)
	assert.Equal(t, ids[0], fired[0].RowID)
	assert.Equal(t, uint32(99), fired[0].NewValue.U32)
}

func TestDuplicateTriggerRegistrationIsNoop(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})

	calls := 0
	handler := func(TriggerEvent) { calls++ }
	require.NoError(t, s.RegisterTrigger("r_owner", TriggerRowInsert, "h1", handler))
	require.NoError(t, s.RegisterTrigger("r_owner", TriggerRowInsert, "h1", handler))

	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 1}})
	assert.Equal(t, 1, calls)
}

func TestTransactionCommitDiscardsLog(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})

	h, err := s.Begin()
	require.NoError(t, err)
	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 1}})
	require.NoError(t, s.Commit(h))

	assert.Equal(t, 1, s.Table("r_owner").Len())
	assert.Equal(t, uint64(1), s.Table("r_owner").Stamp())
}

func TestRollbackFidelity(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})
	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 1}})

	before, _ := s.Select("r_owner", All{}, EvalCtx{}, nil)

	h, err := s.Begin()
	require.NoError(t, err)

	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 2}, {Type: ColString, Str: "z2"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 2}})
	_, _ = s.Update("r_owner", Cmp{Left: Col(0), Op: Eq, Right: Lit(Value{Type: ColUint32, U32: 1})}, EvalCtx{}, map[int]Value{
		3: {Type: ColUint32, U32: 42},
	})
	_, _ = s.Delete("r_owner", Cmp{Left: Col(0), Op: Eq, Right: Lit(Value{Type: ColUint32, U32: 1})}, EvalCtx{})

	require.NoError(t, s.Rollback(h))

	after, _ := s.Select("r_owner", All{}, EvalCtx{}, nil)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, s.Depth())
}

func TestNestedTransactionsShareLog(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})

	outer, err := s.Begin()
	require.NoError(t, err)
	inner, err := s.Begin()
	require.NoError(t, err)
	assert.Equal(t, outer+1, inner)

	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 1}})

	require.NoError(t, s.Rollback(inner))
	assert.Equal(t, 1, s.Depth())
	// row is still present; outermost hasn't rolled back yet
	assert.Equal(t, 1, s.Table("r_owner").Len())

	require.NoError(t, s.Rollback(outer))
	assert.Equal(t, 0, s.Table("r_owner").Len())
}

func TestCommitRollbackRejectMismatchedHandle(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})

	h, err := s.Begin()
	require.NoError(t, err)
	err = s.Commit(h + 1)
	require.Error(t, err)
	require.NoError(t, s.Commit(h))
}

func TestDropTableCancelsPendingLogEntries(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})

	h, err := s.Begin()
	require.NoError(t, err)
	_, _ = s.Insert("r_owner", Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z"}, {Type: ColString, Str: "c"}, {Type: ColUint32, U32: 1}})
	require.NoError(t, s.DropTable("r_owner"))

	assert.Empty(t, s.log)
	require.NoError(t, s.Commit(h))
}

func TestWhereExpressionTree(t *testing.T) {
	s := NewStore()
	_, _ = s.CreateTable("r_owner", newZoneOwnerSchema(), []int{0})
	_, _ = s.Insert("r_owner",
		Row{{Type: ColUint32, U32: 1}, {Type: ColString, Str: "z1"}, {Type: ColString, Str: "hi"}, {Type: ColUint32, U32: 1}},
		Row{{Type: ColUint32, U32: 2}, {Type: ColString, Str: "z2"}, {Type: ColString, Str: "lo"}, {Type: ColUint32, U32: 2}},
	)

	where := And{
		Cmp{Left: Col(3), Op: Ge, Right: Lit(Value{Type: ColUint32, U32: 1})},
		Not{Expr: Cmp{Left: Col(2), Op: Eq, Right: Lit(Value{Type: ColString, Str: "hi"})}},
	}

	rows, err := s.Select("r_owner", where, EvalCtx{}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint32(2), rows[0][0].U32)
}
