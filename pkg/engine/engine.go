// Package engine wires the registry, resource-set manager, arbitration
// engine, and event bus into a single handle: the thing an embedding
// process constructs once and drives acquire/release/destroy calls
// against. It owns no policy of its own beyond what is passed in at
// construction (attribute schemas, classes, resources, a veto hook).
package engine

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/arbiter/pkg/arbiter"
	"github.com/cuemby/arbiter/pkg/attribute"
	"github.com/cuemby/arbiter/pkg/events"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/registry"
	"github.com/cuemby/arbiter/pkg/resourceset"
)

// Engine is the embedding process's single entry point: the registry
// (resources/zones/classes), the resource-set/client model, the
// arbitration engine, and the event bus it publishes lifecycle events
// to, wired together as one unit.
type Engine struct {
	Registry   *registry.Registry
	Sets       *resourceset.Manager
	Arbiter    *arbiter.Engine
	Bus        *events.Bus

	log zerolog.Logger
}

// New creates an engine with its own registry, resource-set manager, and
// event bus, arbitrating under veto (nil allows every grant).
func New(veto registry.VetoFunc) *Engine {
	reg := registry.New()
	bus := events.NewBus()
	sets := resourceset.New(reg, bus)
	arb := arbiter.New(reg, sets, bus, veto)

	return &Engine{
		Registry: reg,
		Sets:     sets,
		Arbiter:  arb,
		Bus:      bus,
		log:      log.WithComponent("engine"),
	}
}

// DefineZoneAttributes declares the shared zone attribute schema. Must
// be called before the first CreateZone.
func (e *Engine) DefineZoneAttributes(defs []attribute.Definition) error {
	return e.Registry.DefineZoneAttributes(defs)
}

// RegisterResource registers a resource definition with the registry.
func (e *Engine) RegisterResource(name string, shareable, syncRelease bool, attrs []attribute.Definition, hooks *registry.HookTable, userData any) (*registry.ResourceDef, error) {
	return e.Registry.RegisterResource(name, shareable, syncRelease, attrs, hooks, userData)
}

// CreateZone creates a new zone instance of the declared attribute schema.
func (e *Engine) CreateZone(name string, inputs []attribute.Input) (*registry.Zone, error) {
	return e.Registry.CreateZone(name, inputs)
}

// CreateClass registers an application class.
func (e *Engine) CreateClass(name string, priority int, modal, share bool, order registry.Order) (*registry.Class, error) {
	return e.Registry.CreateClass(name, priority, modal, share, order)
}

// CreateClient registers a new named client.
func (e *Engine) CreateClient(name string, userData any) (*resourceset.Client, error) {
	return e.Sets.CreateClient(name, userData)
}

// CreateSet creates a new resource set for clientName in className/zoneName.
func (e *Engine) CreateSet(clientName, className, zoneName string, autoRelease, dontWait bool, cb resourceset.Callback, userData any) (*resourceset.Set, error) {
	return e.Sets.CreateSet(clientName, className, zoneName, autoRelease, dontWait, cb, userData)
}

// AddResource attaches a resource instance to set.
func (e *Engine) AddResource(set *resourceset.Set, name string, shared bool, attrs []attribute.Input, mandatory bool) error {
	return e.Sets.AddResource(set, name, shared, attrs, mandatory)
}

// Acquire requests ownership for set.
func (e *Engine) Acquire(setID, reqID uint32) error {
	return e.Sets.Acquire(setID, reqID)
}

// Release releases set's ownership request.
func (e *Engine) Release(setID, reqID uint32) error {
	return e.Sets.Release(setID, reqID)
}

// Destroy tears down a resource set.
func (e *Engine) Destroy(setID uint32) error {
	return e.Sets.Destroy(setID)
}

// Begin opens a transaction spanning every call the caller makes until
// the matching Commit or Rollback, nesting the same way the underlying
// store does: a second Begin before the first Commit/Rollback shares the
// outermost transaction rather than starting a new one.
func (e *Engine) Begin() (int, error) {
	handle, err := e.Registry.Store().Begin()
	if err != nil {
		return 0, err
	}
	if handle == 1 {
		e.Registry.ResetUndo()
		e.Sets.ResetUndo()
	}
	return handle, nil
}

// Commit ends the transaction identified by handle. Nothing needs
// reversing, so the registry's and resource-set manager's undo logs are
// simply left to be discarded by the next Begin.
func (e *Engine) Commit(handle int) error {
	return e.Registry.Store().Commit(handle)
}

// Rollback ends the transaction identified by handle, reverting it: every
// table row change made since Begin (owner-table grants, zone and
// application-class rows), then every CreateSet and every CreateZone/
// CreateClass call made in the same span, so that a sequence like
// "begin; create zone; create set; acquire; rollback" leaves the zone
// table, the owner tables, and the per-(class,zone) queues bit-identical
// to their pre-Begin state.
func (e *Engine) Rollback(handle int) error {
	if err := e.Registry.Store().Rollback(handle); err != nil {
		return err
	}
	if e.Registry.Store().Depth() == 0 {
		e.Sets.RollbackUndo()
		e.Registry.RollbackUndo()
	}
	return nil
}

// ZoneCount, ResourceCount, ApplicationClassCount, and
// ResourceSetCountsByState satisfy metrics.StatsSource.

func (e *Engine) ZoneCount() int { return len(e.Registry.Zones()) }

func (e *Engine) ResourceCount() int { return len(e.Registry.Resources()) }

func (e *Engine) ApplicationClassCount() int { return len(e.Registry.Classes()) }

func (e *Engine) ResourceSetCountsByState() map[string]int {
	return e.Sets.ResourceSetCountsByState()
}
