// Package arbiter implements the arbitration engine (C5): the per-zone
// ownership recompute that walks application classes in priority order,
// grants or rolls back tentative resource ownership class by class, runs
// the policy veto hook, delivers revoke-then-grant callbacks, and
// persists the result to each resource's owner table — all inside the
// transaction opened by the resource-set operation that triggered it.
package arbiter

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/arbiter/pkg/events"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/metrics"
	"github.com/cuemby/arbiter/pkg/registry"
	"github.com/cuemby/arbiter/pkg/resourceset"
)

// Engine owns the owner state of every resource in every zone it has
// arbitrated, and drives recompute. It implements resourceset.Trigger, so a Manager holds it
// opaquely and never imports this package.
type Engine struct {
	registry *registry.Registry
	sets     *resourceset.Manager
	bus      *events.Bus
	veto     registry.VetoFunc
	log      zerolog.Logger

	owners map[uint32][]ownerSlot // zoneID -> per-resource-id owner slots

	running map[uint32]bool
	pending map[uint32][]pendingRequest
}

type pendingRequest struct {
	setID uint32
	reqID uint32
}

// New creates an arbitration engine over reg/sets/bus, with veto as the
// policy veto hook (nil allows every grant). The engine installs itself
// as sets' recompute trigger.
func New(reg *registry.Registry, sets *resourceset.Manager, bus *events.Bus, veto registry.VetoFunc) *Engine {
	e := &Engine{
		registry: reg,
		sets:     sets,
		bus:      bus,
		veto:     veto,
		log:      log.WithComponent("arbiter"),
		owners:   make(map[uint32][]ownerSlot),
		running:  make(map[uint32]bool),
		pending:  make(map[uint32][]pendingRequest),
	}
	sets.SetTrigger(e)
	return e
}

// Recompute satisfies resourceset.Trigger. A recompute already running
// for zoneID defers this request: it is queued and drained once the
// in-flight recompute finishes, rather than re-entering.
func (e *Engine) Recompute(zoneID uint32, requestingSet uint32, reqID uint32) {
	if e.running[zoneID] {
		e.pending[zoneID] = append(e.pending[zoneID], pendingRequest{requestingSet, reqID})
		metrics.DeferredArbitrationsTotal.WithLabelValues(fmt.Sprint(zoneID)).Inc()
		return
	}

	e.running[zoneID] = true
	e.runRecompute(zoneID, requestingSet, reqID)
	e.running[zoneID] = false

	for len(e.pending[zoneID]) > 0 {
		next := e.pending[zoneID][0]
		e.pending[zoneID] = e.pending[zoneID][1:]
		e.running[zoneID] = true
		e.runRecompute(zoneID, next.setID, next.reqID)
		e.running[zoneID] = false
	}
	if len(e.pending[zoneID]) == 0 {
		delete(e.pending, zoneID)
	}
}

type recomputeEvent struct {
	set     *resourceset.Set
	replyID uint32
	move    bool
}

func (e *Engine) runRecompute(zoneID uint32, requestingSet uint32, reqID uint32) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ArbitrationCycleDuration, fmt.Sprint(zoneID))
	metrics.ArbitrationCyclesTotal.WithLabelValues(fmt.Sprint(zoneID)).Inc()

	zone, ok := e.registry.ZoneByID(zoneID)
	if !ok {
		e.log.Error().Uint32("zone_id", zoneID).Msg("recompute requested for undefined zone")
		return
	}

	managed := e.registry.ManagedResources()
	resources := e.registry.Resources()

	oldOwners := e.owners[zoneID]
	newOwners := resetOwners(len(resources))
	e.owners[zoneID] = newOwners

	// Phase 1/4 bracket: Init at the start, Commit once ownership for
	// the zone is finalized.
	for _, def := range managed {
		if def.Hooks.Init != nil {
			def.Hooks.Init(registry.HookContext{ZoneID: zoneID, ResourceID: def.ID, UserData: def.UserData})
		}
	}

	var recorded []recomputeEvent

	for _, class := range e.registry.Classes() {
		for _, setID := range e.sets.QueueSetIDs(class.Name, zoneID) {
			set, ok := e.sets.Set(setID)
			if !ok {
				continue
			}
			evt := e.arbitrateSet(zoneID, zone, class, set, newOwners, resources, requestingSet, reqID)
			if evt != nil {
				recorded = append(recorded, *evt)
			}
		}
	}

	for _, def := range managed {
		if def.Hooks.Commit != nil {
			def.Hooks.Commit(registry.HookContext{ZoneID: zoneID, UserData: def.UserData})
		}
	}

	// Phase 5: deliver revokes before grants.
	for _, ev := range recorded {
		if ev.move {
			e.bus.Publish(&events.Event{Type: events.ResourceSetRelease, RsetID: ev.set.ID})
		}
		if ev.set.Callback != nil && ev.set.Grant == 0 {
			ev.set.Callback(ev.set, ev.replyID, resourceset.CallbackRevoke)
		}
	}
	for _, ev := range recorded {
		if ev.set.Callback != nil && ev.set.Grant != 0 {
			ev.set.Callback(ev.set, ev.replyID, resourceset.CallbackGrant)
		}
	}

	// Phase 6: persist the owner-table diff.
	for i, def := range resources {
		var old ownerSlot
		if i < len(oldOwners) {
			old = oldOwners[i]
		}
		next := newOwners[i]
		if err := syncOwnerTable(e.sets.Store(), def, zone, old, next); err != nil {
			e.log.Error().Err(err).Str("resource", def.Name).Msg("owner table sync failed")
		}
		if old.Set != next.Set {
			if next.present() {
				metrics.GrantsTotal.WithLabelValues(def.Name, fmt.Sprint(zoneID)).Inc()
			} else if old.present() {
				metrics.RevokesTotal.WithLabelValues(def.Name, fmt.Sprint(zoneID)).Inc()
			}
		}
	}
}

// arbitrateSet runs one resource set's share of a single class's pass:
// tentative grant plus rollback-on-veto for an acquiring set, or the
// advice-only pass for a releasing one. It returns the recorded event
// for Phase 5 delivery, or nil if nothing changed and no reply is due.
func (e *Engine) arbitrateSet(zoneID uint32, zone *registry.Zone, class *registry.Class, set *resourceset.Set, owners []ownerSlot, resources []*registry.ResourceDef, requestingSet, reqID uint32) *recomputeEvent {
	forceRelease := false
	grant := uint32(0)
	advice := uint32(0)

	switch set.State {
	case resourceset.Acquire:
		backup := make(map[uint32]ownerSlot, len(set.Instances))
		for resID := range set.Instances {
			owner := &owners[resID]
			backup[resID] = *owner
			def := resources[resID]
			if grantOwnership(owner, zoneID, class, set, resID, def) {
				grant |= 1 << resID
			} else if owner.Set != set {
				forceRelease = forceRelease || owner.Modal
			}
		}

		vetoed := e.veto != nil && !e.veto(registry.HookContext{ZoneID: zoneID, SetID: set.ID})
		if (grant&set.Mandatory) == set.Mandatory && !vetoed {
			advice = grant
		} else {
			if vetoed && grant != 0 {
				metrics.VetoDenialsTotal.WithLabelValues("", fmt.Sprint(zoneID)).Inc()
			}
			for resID := range set.Instances {
				owner := &owners[resID]
				def := resources[resID]
				*owner = backup[resID]
				if grant&(1<<resID) != 0 && def.Hooks != nil && def.Hooks.Free != nil {
					def.Hooks.Free(registry.HookContext{ZoneID: zoneID, ResourceID: resID, SetID: set.ID, UserData: def.UserData})
				}
				if adviceOwnership(owner, zoneID, class, set, resID, def) {
					advice |= 1 << resID
				}
			}
			grant = 0
			if (advice & set.Mandatory) != set.Mandatory {
				advice = 0
			}
		}

	case resourceset.Release:
		for resID := range set.Instances {
			owner := &owners[resID]
			def := resources[resID]
			if adviceOwnership(owner, zoneID, class, set, resID, def) {
				advice |= 1 << resID
			}
		}
		if (advice & set.Mandatory) != set.Mandatory {
			advice = 0
		}
	}

	return e.decideTransition(set, grant, advice, forceRelease, requestingSet, reqID)
}

// decideTransition applies the grant/advice outcome to set's masks and
// state, following auto_release/dont_wait demotion, and returns the
// event to be delivered in Phase 5 if a reply is owed or anything
// observable changed.
func (e *Engine) decideTransition(set *resourceset.Set, grant, advice uint32, forceRelease bool, requestingSet, reqID uint32) *recomputeEvent {
	changed := false
	move := false

	replyID := uint32(0)
	if requestingSet == set.ID && reqID == set.ReqID {
		replyID = reqID
	}

	if forceRelease {
		move = set.State != resourceset.Release
		changed = move || set.Grant != 0
		set.State = resourceset.Release
		set.Grant = 0
	} else if grant == set.Grant {
		if set.State == resourceset.Acquire && grant == 0 && set.DontWait.Current {
			set.State = resourceset.Release
			set.DontWait.Current = set.DontWait.Client
			move = true
		}
	} else {
		set.Grant = grant
		changed = true
		if set.State != resourceset.Release && grant == 0 && set.AutoRelease.Current {
			set.State = resourceset.Release
			set.AutoRelease.Current = set.AutoRelease.Client
			move = true
		}
	}

	if advice != set.Advice {
		set.Advice = advice
		changed = true
	}

	if replyID == 0 && !changed {
		return nil
	}
	return &recomputeEvent{set: set, replyID: replyID, move: move}
}
