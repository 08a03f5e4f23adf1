package registry

// HookContext is passed to every manager hook invocation during
// arbitration, identifying which zone/resource/set triggered the call.
type HookContext struct {
	ZoneID     uint32
	ResourceID uint32
	SetID      uint32
	UserData   any
}

// HookTable is the optional per-resource-definition manager hook set
// consulted during arbitration: init at the start of a recompute,
// allocate/free around a tentative grant, advice for the weaker
// what-if check (also veto-capable), and commit once ownership for the
// zone is finalized. Any field may be nil, meaning that phase is a
// no-op (or, for Allocate/Advice, an automatic allow) for the resource.
type HookTable struct {
	Init     func(ctx HookContext)
	Allocate func(ctx HookContext) bool
	Free     func(ctx HookContext)
	Advice   func(ctx HookContext) bool
	Commit   func(ctx HookContext)
}

// VetoFunc is the single external policy predicate consulted after a
// set's tentative grant, to allow or reject the outcome. A nil VetoFunc
// always allows.
type VetoFunc func(ctx HookContext) bool
