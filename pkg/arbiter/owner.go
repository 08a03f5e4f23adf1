package arbiter

import (
	"github.com/cuemby/arbiter/pkg/registry"
	"github.com/cuemby/arbiter/pkg/resourceset"
	"github.com/cuemby/arbiter/pkg/table"
)

// ownerSlot is one zone's current owner of one resource: which class and
// set hold it, whether that hold is modal (locking out preemption) or
// shared. The empty slot (Set == nil) means nobody owns the resource in
// this zone.
type ownerSlot struct {
	ClassName string
	Set       *resourceset.Set
	Instance  *resourceset.Instance
	Modal     bool
	Share     bool
}

func (o ownerSlot) present() bool { return o.Set != nil }

// resetOwners returns a fresh all-empty owner table for one zone, with
// Share pre-set true on every slot (an unclaimed resource is vacuously
// shareable).
func resetOwners(n int) []ownerSlot {
	slots := make([]ownerSlot, n)
	for i := range slots {
		slots[i] = ownerSlot{Share: true}
	}
	return slots
}

// grantOwnership attempts to grant resource resID (backed by def) to
// set, updating owner in place. It refuses a modal hold, refuses a
// non-shareable resource already held by someone else, and otherwise
// consults the resource's Allocate hook (which may still refuse).
// Ownership's ClassName/Set/Instance are only assigned on first
// acquisition (the "set_owner" path); a set that already owns the
// resource, or another sharer of an already-shared resource, leaves the
// recorded owner Instance pointing at whoever claimed it first.
func grantOwnership(owner *ownerSlot, zoneID uint32, class *registry.Class, set *resourceset.Set, resID uint32, def *registry.ResourceDef) bool {
	if owner.Modal {
		return false
	}

	setOwner := false
	switch {
	case !owner.present():
		setOwner = true
	case owner.Set == set:
		// already ours
	case def.Shareable && owner.Share:
		// shared with us
	default:
		return false
	}

	inst := set.Instances[resID]

	if def.Hooks != nil && def.Hooks.Allocate != nil {
		if !def.Hooks.Allocate(registry.HookContext{ZoneID: zoneID, ResourceID: resID, SetID: set.ID, UserData: def.UserData}) {
			return false
		}
	}

	if setOwner {
		owner.ClassName = class.Name
		owner.Set = set
		owner.Instance = inst
		owner.Modal = class.Modal
	}
	owner.Share = class.Share && inst.Shared
	return true
}

// adviceOwnership reports what ownership WOULD be if the caller were
// attempting a grant, without mutating owner or invoking Allocate. It is
// used both for the weaker advice mask on a losing acquire, and for
// every resource instance held by a releasing set. A same-class LIFO
// tie allows the newest request to out-advise the current set, mirroring
// the class's configured tie-break.
func adviceOwnership(owner *ownerSlot, zoneID uint32, class *registry.Class, set *resourceset.Set, resID uint32, def *registry.ResourceDef) bool {
	if owner.Modal {
		return false
	}

	switch {
	case !owner.present():
	case owner.Share:
	case owner.ClassName == class.Name && class.Order == registry.LIFO:
	default:
		return false
	}

	if def.Hooks != nil && def.Hooks.Advice != nil {
		if !def.Hooks.Advice(registry.HookContext{ZoneID: zoneID, ResourceID: resID, SetID: set.ID, UserData: def.UserData}) {
			return false
		}
	}
	return true
}

// syncOwnerTable reconciles one resource's owner table row against the
// old/next slot for one zone: deletes the row when the resource becomes
// unowned, inserts when it becomes owned for the first time, and updates
// the class/set/attribute columns otherwise. No-op if old and next agree.
func syncOwnerTable(store *table.Store, def *registry.ResourceDef, zone *registry.Zone, old, next ownerSlot) error {
	if old.Set == next.Set && old.present() == next.present() {
		return nil
	}

	zoneIDCol := table.Value{Type: table.ColUint32, U32: zone.ID}
	where := table.Cmp{Left: table.Col(0), Op: table.Eq, Right: table.Lit(zoneIDCol)}

	switch {
	case !next.present():
		_, err := store.Delete(def.OwnerTable.Name(), where, table.EvalCtx{})
		return err

	case !old.present():
		row := ownerRow(def, zone, next)
		_, err := store.Insert(def.OwnerTable.Name(), row)
		return err

	default:
		sets := map[int]table.Value{
			2: {Type: table.ColString, Str: next.ClassName},
			3: {Type: table.ColUint32, U32: next.Set.ID},
		}
		for i, v := range next.Instance.Attrs {
			sets[4+i] = registry.AttrValueToColumn(v)
		}
		_, err := store.Update(def.OwnerTable.Name(), where, table.EvalCtx{}, sets)
		return err
	}
}

func ownerRow(def *registry.ResourceDef, zone *registry.Zone, owner ownerSlot) table.Row {
	row := make(table.Row, 4+len(owner.Instance.Attrs))
	row[0] = table.Value{Type: table.ColUint32, U32: zone.ID}
	row[1] = table.Value{Type: table.ColString, Str: zone.Name}
	row[2] = table.Value{Type: table.ColString, Str: owner.ClassName}
	row[3] = table.Value{Type: table.ColUint32, U32: owner.Set.ID}
	for i, v := range owner.Instance.Attrs {
		row[4+i] = registry.AttrValueToColumn(v)
	}
	return row
}
