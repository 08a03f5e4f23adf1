// Package resourceset implements the resource-set and client model (C4):
// clients own resource sets, resource sets bundle resource instances,
// and a per-(class,zone) priority queue orders sets for arbitration. The
// queue is a google/btree.BTree keyed on the 32-bit sort key described in
// sortkey.go, replacing the source's intrusive doubly-linked queue per
// the "sorted container keyed on (class, zone, sort_key, set_id)"
// redesign note.
package resourceset

import (
	"fmt"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/cuemby/arbiter/pkg/attribute"
	"github.com/cuemby/arbiter/pkg/errs"
	"github.com/cuemby/arbiter/pkg/events"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/registry"
	"github.com/cuemby/arbiter/pkg/table"
)

const queueBtreeDegree = 32

// State is a resource set's acquire/release lifecycle state.
type State int

const (
	NoRequest State = iota
	Release
	Acquire
	PendingRelease
)

func (s State) String() string {
	switch s {
	case NoRequest:
		return "no-request"
	case Release:
		return "release"
	case Acquire:
		return "acquire"
	case PendingRelease:
		return "pending-release"
	default:
		return "unknown"
	}
}

// BoolPair tracks a client-requested value alongside the value currently
// in effect, for auto_release and dont_wait, which reset to the
// client-requested value at the auto-demote-to-release transition point
// (see the Open Questions ledger entry in DESIGN.md).
type BoolPair struct {
	Client  bool
	Current bool
}

// Instance is one resource bound into a set.
type Instance struct {
	ResourceID uint32
	Shared     bool
	Attrs      []attribute.Value
}

// CallbackKind distinguishes a Phase-5 grant delivery from a revoke/deny
// delivery.
type CallbackKind int

const (
	CallbackRevoke CallbackKind = iota
	CallbackGrant
)

// Callback is a set's per-request event delivery, invoked by the
// arbitration engine's Phase 5, carrying the request id that was active
// when the outcome was decided.
type Callback func(set *Set, reqID uint32, kind CallbackKind)

// Set is the unit of arbitration: a client's bundle of resource
// instances within one (class, zone) pair.
type Set struct {
	ID         uint32
	ClientName string
	ClassName  string
	ZoneID     uint32

	Instances map[uint32]*Instance

	All, Mandatory, Grant, Advice uint32

	State       State
	AutoRelease BoolPair
	DontWait    BoolPair

	ReqID uint32
	Stamp uint32

	Callback Callback
	UserData any
	Shared   bool

	sortKey uint32
}

// String renders a one-line summary of the set's identity and current
// grant/advice masks, for the CLI harness and test diagnostics, in place
// of the original's hand-rolled mrp_resource_set_print buffer arithmetic.
func (s *Set) String() string {
	return fmt.Sprintf("set#%d client=%s class=%s zone=%d state=%s grant=%#x advice=%#x",
		s.ID, s.ClientName, s.ClassName, s.ZoneID, s.State, s.Grant, s.Advice)
}

// Client is a named collection of resource sets.
type Client struct {
	Name     string
	UserData any
	SetIDs   []uint32
}

// Trigger is implemented by the arbitration engine. Acquire and Release
// (and Destroy, through Release) invoke it (inside a transaction they
// open) to recompute
// ownership for the affected zone, breaking the import cycle that would
// otherwise exist between this package and pkg/arbiter.
type Trigger interface {
	Recompute(zoneID uint32, requestingSet uint32, reqID uint32)
}

type noopTrigger struct{}

func (noopTrigger) Recompute(uint32, uint32, uint32) {}

type queueKey struct {
	className string
	zoneID    uint32
}

type queueItem struct {
	key   uint32
	setID uint32
}

func (a queueItem) Less(than btree.Item) bool {
	b := than.(queueItem)
	if a.key != b.key {
		return a.key < b.key
	}
	return a.setID < b.setID
}

// Manager owns every client, set, and per-(class,zone) priority queue
// for one engine instance.
type Manager struct {
	registry *registry.Registry
	bus      *events.Bus
	trigger  Trigger
	log      zerolog.Logger

	clients map[string]*Client
	sets    map[uint32]*Set
	nextID  uint32

	reqStamp uint32

	queues map[queueKey]*btree.BTree

	// undo records the Go-level reversal for every CreateSet call made
	// since the last ResetUndo, for Engine's Rollback: the queue, client
	// SetIDs list, and sets map live outside any table, so the store's
	// own change log cannot reverse them.
	undo []func()
}

// New creates an empty resource-set manager bound to reg and bus.
func New(reg *registry.Registry, bus *events.Bus) *Manager {
	return &Manager{
		registry: reg,
		bus:      bus,
		trigger:  noopTrigger{},
		log:      log.WithComponent("resourceset"),
		clients:  make(map[string]*Client),
		sets:     make(map[uint32]*Set),
		queues:   make(map[queueKey]*btree.BTree),
	}
}

// SetTrigger installs the arbitration engine as the recompute trigger.
func (m *Manager) SetTrigger(t Trigger) { m.trigger = t }

// Store exposes the backing table store via the registry, so callers
// building acquire/release around a transaction, or persisting owner
// tables after arbitration, don't need a second reference threaded
// through.
func (m *Manager) Store() *table.Store {
	return m.registry.Store()
}

// QueueSetIDs returns the set ids queued under (className, zoneID),
// highest sort key first — the order the arbitration engine walks them
// in.
func (m *Manager) QueueSetIDs(className string, zoneID uint32) []uint32 {
	q := m.queueFor(queueKey{className, zoneID})
	ids := make([]uint32, 0, q.Len())
	q.Descend(func(item btree.Item) bool {
		ids = append(ids, item.(queueItem).setID)
		return true
	})
	return ids
}

// CreateClient registers a new named client.
func (m *Manager) CreateClient(name string, userData any) (*Client, error) {
	if _, ok := m.clients[name]; ok {
		return nil, errs.Newf(errs.Exists, "client %q already exists", name)
	}
	c := &Client{Name: name, UserData: userData}
	m.clients[name] = c
	return c, nil
}

// DestroyClient destroys every set the client owns, then the client.
func (m *Manager) DestroyClient(name string) error {
	c, ok := m.clients[name]
	if !ok {
		return errs.Newf(errs.NotFound, "client %q not found", name)
	}
	ids := append([]uint32(nil), c.SetIDs...)
	for _, id := range ids {
		if err := m.Destroy(id); err != nil {
			return err
		}
	}
	delete(m.clients, name)
	return nil
}

// Sets returns a snapshot slice of every live set.
func (m *Manager) Sets() []*Set {
	out := make([]*Set, 0, len(m.sets))
	for _, s := range m.sets {
		out = append(out, s)
	}
	return out
}

// Set looks up a set by id.
func (m *Manager) Set(id uint32) (*Set, bool) {
	s, ok := m.sets[id]
	return s, ok
}

// ResourceSetCountsByState reports how many live sets are in each state,
// keyed by State.String(), for metrics.StatsSource.
func (m *Manager) ResourceSetCountsByState() map[string]int {
	counts := make(map[string]int, 4)
	for _, s := range m.sets {
		counts[s.State.String()]++
	}
	return counts
}

// Queue returns the priority queue for (className, zoneID), creating it
// empty if it does not yet exist.
func (m *Manager) Queue(className string, zoneID uint32) *btree.BTree {
	return m.queueFor(queueKey{className, zoneID})
}

func (m *Manager) queueFor(k queueKey) *btree.BTree {
	q, ok := m.queues[k]
	if !ok {
		q = btree.New(queueBtreeDegree)
		m.queues[k] = q
	}
	return q
}

// CreateSet creates a new resource set attached to client clientName,
// in the named class and zone. className is resolved at creation and
// fixes the set's priority/modal/share/order policy for its lifetime,
// per the Data Model's "pointer to its class and its zone" invariant;
// there is no separate per-set priority override.
func (m *Manager) CreateSet(clientName, className, zoneName string, autoRelease, dontWait bool, cb Callback, userData any) (*Set, error) {
	c, ok := m.clients[clientName]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "client %q not found", clientName)
	}
	if _, ok := m.registry.ClassByName(className); !ok {
		return nil, errs.Newf(errs.NotFound, "class %q not found", className)
	}
	zone, ok := m.registry.ZoneByName(zoneName)
	if !ok {
		return nil, errs.Newf(errs.NotFound, "zone %q not found", zoneName)
	}

	s := &Set{
		ID:          m.nextID,
		ClientName:  clientName,
		ClassName:   className,
		ZoneID:      zone.ID,
		Instances:   make(map[uint32]*Instance),
		State:       NoRequest,
		AutoRelease: BoolPair{Client: autoRelease, Current: autoRelease},
		DontWait:    BoolPair{Client: dontWait, Current: dontWait},
		Callback:    cb,
		UserData:    userData,
	}
	m.nextID++

	m.sets[s.ID] = s
	c.SetIDs = append(c.SetIDs, s.ID)
	m.requeue(s, 0, false)

	if m.registry.Store().Depth() > 0 {
		m.undo = append(m.undo, func() { m.undoCreateSet(s) })
	}

	m.bus.Publish(&events.Event{Type: events.ResourceSetCreated, RsetID: s.ID})
	return s, nil
}

// undoCreateSet reverses CreateSet's Go-level bookkeeping: the queue
// entry, the client's SetIDs list, and the sets map. m.nextID is left
// untouched: a rolled-back set's id is never reused, unlike a zone's
// reclaimed slot.
func (m *Manager) undoCreateSet(s *Set) {
	key := queueKey{s.ClassName, s.ZoneID}
	if q, ok := m.queues[key]; ok {
		q.Delete(queueItem{key: s.sortKey, setID: s.ID})
	}
	if c, ok := m.clients[s.ClientName]; ok {
		for i, id := range c.SetIDs {
			if id == s.ID {
				c.SetIDs = append(c.SetIDs[:i], c.SetIDs[i+1:]...)
				break
			}
		}
	}
	delete(m.sets, s.ID)
}

// ResetUndo discards any recorded resource-set undo actions, starting a
// fresh undo window. Engine calls this at the start of an outermost
// transaction.
func (m *Manager) ResetUndo() { m.undo = nil }

// RollbackUndo replays the recorded resource-set undo actions in reverse
// order, reversing every CreateSet call made since the last ResetUndo.
// Engine calls this once the store's own rollback has completed.
func (m *Manager) RollbackUndo() {
	for i := len(m.undo) - 1; i >= 0; i-- {
		m.undo[i]()
	}
	m.undo = nil
}

// AddResource attaches a resource instance to set. Fails with NOT_FOUND
// if name is unregistered, or EXISTS if the set already holds that
// resource (the resource-id to instance map must be injective).
func (m *Manager) AddResource(set *Set, name string, shared bool, attrs []attribute.Input, mandatory bool) error {
	def, ok := m.registry.ResourceByName(name)
	if !ok {
		return errs.Newf(errs.NotFound, "resource %q not registered", name)
	}
	if _, exists := set.Instances[def.ID]; exists {
		return errs.Newf(errs.Exists, "set %d already holds resource %q", set.ID, name)
	}
	if shared && !def.Shareable {
		shared = false
	}

	inst := &Instance{
		ResourceID: def.ID,
		Shared:     shared,
		Attrs:      attribute.SetValues(attrs, def.AttrDefs, nil),
	}
	set.Instances[def.ID] = inst
	set.All |= 1 << def.ID
	if mandatory {
		set.Mandatory |= 1 << def.ID
	}
	set.Shared = set.Shared || shared
	return nil
}

// Acquire transitions set to the acquire state, stamps and re-sorts the
// request, emits the acquire lifecycle event, and invokes the
// arbitration engine for its zone inside a transaction.
func (m *Manager) Acquire(setID, reqID uint32) error {
	s, ok := m.sets[setID]
	if !ok {
		return errs.Newf(errs.NotFound, "set %d not found", setID)
	}

	s.State = Acquire
	s.ReqID = reqID
	s.Stamp = m.nextRequestStamp()
	m.requeue(s, s.sortKey, true)

	m.bus.Publish(&events.Event{Type: events.ResourceSetAcquire, RsetID: setID})

	return m.withTransaction(func() {
		m.trigger.Recompute(s.ZoneID, setID, reqID)
	})
}

// Release transitions set to the release state. Calling it on an
// already-released set is idempotent: the set's callback fires with
// reqID but no rearbitration or bus emission happens beyond that.
func (m *Manager) Release(setID, reqID uint32) error {
	s, ok := m.sets[setID]
	if !ok {
		return errs.Newf(errs.NotFound, "set %d not found", setID)
	}

	if s.State == Release {
		if s.Callback != nil {
			s.Callback(s, reqID, CallbackRevoke)
		}
		return nil
	}

	s.State = Release
	s.ReqID = reqID
	s.Stamp = m.nextRequestStamp()
	m.requeue(s, s.sortKey, true)

	m.bus.Publish(&events.Event{Type: events.ResourceSetRelease, RsetID: setID})

	return m.withTransaction(func() {
		m.trigger.Recompute(s.ZoneID, setID, reqID)
	})
}

// Destroy releases set if it was acquiring, then removes it from its
// client, its queue, and the manager.
func (m *Manager) Destroy(setID uint32) error {
	s, ok := m.sets[setID]
	if !ok {
		return errs.Newf(errs.NotFound, "set %d not found", setID)
	}

	m.bus.Publish(&events.Event{Type: events.ResourceSetDestroyed, RsetID: setID})

	if s.State == Acquire {
		if err := m.Release(setID, s.ReqID); err != nil {
			return err
		}
	}

	key := queueKey{s.ClassName, s.ZoneID}
	if q, ok := m.queues[key]; ok {
		q.Delete(queueItem{key: s.sortKey, setID: s.ID})
	}
	if c, ok := m.clients[s.ClientName]; ok {
		for i, id := range c.SetIDs {
			if id == s.ID {
				c.SetIDs = append(c.SetIDs[:i], c.SetIDs[i+1:]...)
				break
			}
		}
	}
	delete(m.sets, s.ID)
	return nil
}

func (m *Manager) withTransaction(fn func()) error {
	store := m.registry.Store()
	handle, err := store.Begin()
	if err != nil {
		return err
	}
	fn()
	return store.Commit(handle)
}

// requeue removes any existing queue entry under oldKey (if hadOld) and
// inserts the set under its freshly computed sort key.
func (m *Manager) requeue(s *Set, oldKey uint32, hadOld bool) {
	key := queueKey{s.ClassName, s.ZoneID}
	q := m.queueFor(key)
	if hadOld {
		q.Delete(queueItem{key: oldKey, setID: s.ID})
	}
	class, _ := m.registry.ClassByName(s.ClassName)
	s.sortKey = computeSortKey(s, class)
	q.ReplaceOrInsert(queueItem{key: s.sortKey, setID: s.ID})
}
