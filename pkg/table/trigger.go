package table

// TriggerKind identifies which of the four trigger categories a handler
// was registered for.
type TriggerKind int

const (
	TriggerRowInsert TriggerKind = iota
	TriggerRowDelete
	TriggerColumnChange
	TriggerTableEvent
)

// TableEventKind further discriminates TriggerTableEvent firings.
type TableEventKind int

const (
	TableCreated TableEventKind = iota
	TableDropped
	TransactionStarted
	TransactionEnded
)

// TriggerEvent is the payload delivered to a registered handler. Only
// the fields relevant to Kind are populated.
type TriggerEvent struct {
	Kind       TriggerKind
	Table      string
	RowID      uint64
	Row        Row
	Column     int
	OldValue   Value
	NewValue   Value
	TableEvent TableEventKind
}

// TriggerFunc receives a fired trigger event.
type TriggerFunc func(TriggerEvent)

// triggerReg pairs a handler identity (used to dedupe re-registration)
// with its callback, mirroring the source's (function, user-data) pair
// semantics where duplicate registration is a no-op.
type triggerReg struct {
	id any
	fn TriggerFunc
}

type triggerSet struct {
	byKind map[TriggerKind][]triggerReg
}

func newTriggerSet() *triggerSet {
	return &triggerSet{byKind: make(map[TriggerKind][]triggerReg)}
}

// register adds fn under id for kind; re-registering the same id for the
// same kind is a no-op.
func (ts *triggerSet) register(kind TriggerKind, id any, fn TriggerFunc) {
	for _, r := range ts.byKind[kind] {
		if r.id == id {
			return
		}
	}
	ts.byKind[kind] = append(ts.byKind[kind], triggerReg{id: id, fn: fn})
}

// unregister removes a handler previously registered under id for kind.
func (ts *triggerSet) unregister(kind TriggerKind, id any) {
	regs := ts.byKind[kind]
	for i, r := range regs {
		if r.id == id {
			ts.byKind[kind] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}

// fire invokes every handler registered for kind, in registration order.
// Triggers fire after the mutation is visible to a subsequent read
// within the same transaction, so callers invoke fire only after
// mutating table state.
func (ts *triggerSet) fire(kind TriggerKind, evt TriggerEvent) {
	evt.Kind = kind
	for _, r := range ts.byKind[kind] {
		r.fn(evt)
	}
}
