// Package registry implements the resource, zone, and application-class
// registry (C3): idempotent resource registration (each creating a
// backing owner table), one-time zone-schema declaration plus per-zone
// creation, and application-class creation with priority-collision
// warnings rather than rejections. It is owned by a single Engine
// context rather than held as module-level state.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/arbiter/pkg/attribute"
	"github.com/cuemby/arbiter/pkg/errs"
	"github.com/cuemby/arbiter/pkg/log"
	"github.com/cuemby/arbiter/pkg/table"
)

const (
	// MaxResources is the bit-width of the resource mask: at most 32
	// resource definitions may exist system-wide.
	MaxResources = 32
	// MaxZones is the zone-id bitmask width: at most 8 zones.
	MaxZones = 8
)

// Order breaks ties among same-priority, same-state sets within a class.
type Order int

const (
	FIFO Order = iota
	LIFO
)

// ResourceDef is an immutable-once-registered resource definition.
type ResourceDef struct {
	ID          uint32
	Name        string
	Shareable   bool
	SyncRelease bool // reserved per an open design question; never read.
	AttrDefs    []attribute.Definition
	Hooks       *HookTable
	UserData    any

	OwnerTable *table.Table
}

// Zone is a named instance of the (once-declared) zone attribute schema.
type Zone struct {
	ID     uint32
	Name   string
	Values []attribute.Value
}

// Class is a named priority tier.
type Class struct {
	Name     string
	Priority int
	Modal    bool
	Share    bool
	Order    Order

	seq int // insertion order, breaks priority ties in class iteration
}

// Registry holds every resource definition, zone, and application class
// for one engine instance, plus the table.Store backing the zones,
// application_classes, and per-resource owner tables.
type Registry struct {
	store *table.Store
	log   zerolog.Logger

	resources   []*ResourceDef
	resourceIdx map[string]*ResourceDef

	zoneAttrDefs []attribute.Definition
	zoneSchemaSet bool
	zones         []*Zone
	zoneIdx       map[string]*Zone

	classes    []*Class
	classIdx   map[string]*Class
	classSeq   int

	// undo records the Go-level reversal for every CreateZone/CreateClass
	// call made since the last ResetUndo, for Engine's Rollback: the
	// store's own change log only reverses table rows, never r.zones,
	// r.classes, or their index maps.
	undo []func()
}

// New creates an empty registry with its own backing table store.
func New() *Registry {
	r := &Registry{
		store:       table.NewStore(),
		log:         log.WithComponent("registry"),
		resourceIdx: make(map[string]*ResourceDef),
		zoneIdx:     make(map[string]*Zone),
		classIdx:    make(map[string]*Class),
	}
	_, _ = r.store.CreateTable("application_classes",
		[]table.ColumnDef{
			{Name: "name", Type: table.ColString, MaxLen: 24},
			{Name: "priority", Type: table.ColUint32},
		},
		[]int{1},
	)
	return r
}

// Store returns the backing table store, for use by the arbitration
// engine (owner-table writes) and the reconciler (invariant reads).
func (r *Registry) Store() *table.Store { return r.store }

// DefineZoneAttributes declares the shared zone attribute schema exactly
// once. A second call returns EXISTS.
func (r *Registry) DefineZoneAttributes(defs []attribute.Definition) error {
	if r.zoneSchemaSet {
		return errs.New(errs.Exists, "zone attribute schema already declared")
	}
	for _, d := range defs {
		if err := attribute.ValidateDefault(d); err != nil {
			return err
		}
	}
	r.zoneAttrDefs = attribute.CopyDefinitions(defs)
	r.zoneSchemaSet = true

	cols := []table.ColumnDef{
		{Name: "zone_id", Type: table.ColUint32},
		{Name: "zone_name", Type: table.ColString, MaxLen: 24},
	}
	cols = append(cols, attrColumns(r.zoneAttrDefs)...)
	_, err := r.store.CreateTable("zones", cols, []int{0})
	return err
}

// RegisterResource idempotently registers a named resource definition,
// assigning the next dense id and creating its owner table
// `<name>_owner`, indexed by zone_id. Re-registering an existing name
// returns EXISTS; exceeding MaxResources returns OVERFLOW.
func (r *Registry) RegisterResource(name string, shareable, syncRelease bool, attrs []attribute.Definition, hooks *HookTable, userData any) (*ResourceDef, error) {
	if _, ok := r.resourceIdx[name]; ok {
		return nil, errs.Newf(errs.Exists, "resource %q already registered", name)
	}
	if len(r.resources) >= MaxResources {
		return nil, errs.Newf(errs.Overflow, "resource limit (%d) reached", MaxResources)
	}
	for _, d := range attrs {
		if err := attribute.ValidateDefault(d); err != nil {
			return nil, err
		}
	}

	def := &ResourceDef{
		ID:          uint32(len(r.resources)),
		Name:        name,
		Shareable:   shareable,
		SyncRelease: syncRelease,
		AttrDefs:    attribute.CopyDefinitions(attrs),
		Hooks:       hooks,
		UserData:    userData,
	}

	cols := []table.ColumnDef{
		{Name: "zone_id", Type: table.ColUint32},
		{Name: "zone_name", Type: table.ColString, MaxLen: 24},
		{Name: "application_class", Type: table.ColString, MaxLen: 24},
		{Name: "resource_set_id", Type: table.ColUint32},
	}
	cols = append(cols, attrColumns(def.AttrDefs)...)
	tbl, err := r.store.CreateTable(name+"_owner", cols, []int{0})
	if err != nil {
		return nil, err
	}
	def.OwnerTable = tbl

	r.resources = append(r.resources, def)
	r.resourceIdx[name] = def
	return def, nil
}

// CreateZone allocates the next dense zone id (0..7) and records it in
// the zones table. Exceeding MaxZones returns OVERFLOW. inputs fill the
// zone attribute schema declared by DefineZoneAttributes.
func (r *Registry) CreateZone(name string, inputs []attribute.Input) (*Zone, error) {
	if !r.zoneSchemaSet {
		return nil, errs.New(errs.WrongState, "zone attribute schema not declared")
	}
	if len(r.zones) >= MaxZones {
		return nil, errs.Newf(errs.Overflow, "zone limit (%d) reached", MaxZones)
	}
	if _, ok := r.zoneIdx[name]; ok {
		return nil, errs.Newf(errs.Exists, "zone %q already exists", name)
	}

	z := &Zone{
		ID:     uint32(len(r.zones)),
		Name:   name,
		Values: attribute.SetValues(inputs, r.zoneAttrDefs, nil),
	}
	r.zones = append(r.zones, z)
	r.zoneIdx[name] = z

	row := make(table.Row, 2+len(z.Values))
	row[0] = table.Value{Type: table.ColUint32, U32: z.ID}
	row[1] = table.Value{Type: table.ColString, Str: z.Name}
	for i, v := range z.Values {
		row[2+i] = attrValueToColumn(v)
	}
	_, err := r.store.Insert("zones", row)
	if err != nil {
		return nil, err
	}
	if r.store.Depth() > 0 {
		r.undo = append(r.undo, func() {
			delete(r.zoneIdx, z.Name)
			if n := len(r.zones); n > 0 && r.zones[n-1] == z {
				r.zones = r.zones[:n-1]
			}
		})
	}
	return z, nil
}

// CreateClass registers an application class. Priority collisions with
// an existing class are logged as a warning, never rejected.
func (r *Registry) CreateClass(name string, priority int, modal, share bool, order Order) (*Class, error) {
	if _, ok := r.classIdx[name]; ok {
		return nil, errs.Newf(errs.Exists, "class %q already exists", name)
	}
	for _, c := range r.classes {
		if c.Priority == priority {
			r.log.Warn().Str("class", name).Str("conflicts_with", c.Name).Int("priority", priority).
				Msg("application class priority collision")
			break
		}
	}

	c := &Class{Name: name, Priority: priority, Modal: modal, Share: share, Order: order, seq: r.classSeq}
	r.classSeq++
	r.classes = append(r.classes, c)
	r.classIdx[name] = c
	sort.SliceStable(r.classes, func(i, j int) bool {
		if r.classes[i].Priority != r.classes[j].Priority {
			return r.classes[i].Priority > r.classes[j].Priority
		}
		return r.classes[i].seq < r.classes[j].seq
	})

	_, err := r.store.Insert("application_classes", table.Row{
		{Type: table.ColString, Str: c.Name},
		{Type: table.ColUint32, U32: uint32(c.Priority)},
	})
	if err != nil {
		return nil, err
	}
	if r.store.Depth() > 0 {
		r.undo = append(r.undo, func() {
			delete(r.classIdx, c.Name)
			for i, cl := range r.classes {
				if cl == c {
					r.classes = append(r.classes[:i], r.classes[i+1:]...)
					break
				}
			}
			r.classSeq--
		})
	}
	return c, nil
}

// ResetUndo discards any recorded zone/class undo actions, starting a
// fresh undo window. Engine calls this at the start of an outermost
// transaction.
func (r *Registry) ResetUndo() { r.undo = nil }

// RollbackUndo replays the recorded zone/class undo actions in reverse
// order, reversing every CreateZone/CreateClass call made since the last
// ResetUndo. Engine calls this once the store's own rollback has
// completed.
func (r *Registry) RollbackUndo() {
	for i := len(r.undo) - 1; i >= 0; i-- {
		r.undo[i]()
	}
	r.undo = nil
}

// Resources returns every registered resource definition in
// registration (dense id) order.
func (r *Registry) Resources() []*ResourceDef { return r.resources }

// ResourceByName looks up a resource definition by name.
func (r *Registry) ResourceByName(name string) (*ResourceDef, bool) {
	d, ok := r.resourceIdx[name]
	return d, ok
}

// ResourceByID looks up a resource definition by its dense id.
func (r *Registry) ResourceByID(id uint32) (*ResourceDef, bool) {
	if int(id) >= len(r.resources) {
		return nil, false
	}
	return r.resources[id], true
}

// Zones returns every zone in creation (dense id) order.
func (r *Registry) Zones() []*Zone { return r.zones }

// ZoneByName looks up a zone by name.
func (r *Registry) ZoneByName(name string) (*Zone, bool) {
	z, ok := r.zoneIdx[name]
	return z, ok
}

// ZoneByID looks up a zone by its dense id.
func (r *Registry) ZoneByID(id uint32) (*Zone, bool) {
	if int(id) >= len(r.zones) {
		return nil, false
	}
	return r.zones[id], true
}

// Classes returns classes sorted by descending priority, insertion order
// breaking ties — the order the arbitration engine walks them in.
func (r *Registry) Classes() []*Class { return r.classes }

// ClassByName looks up a class by name.
func (r *Registry) ClassByName(name string) (*Class, bool) {
	c, ok := r.classIdx[name]
	return c, ok
}

// ManagedResources returns every resource definition that carries a
// non-nil manager hook table, the set Phase 1/4 of arbitration iterate.
func (r *Registry) ManagedResources() []*ResourceDef {
	var out []*ResourceDef
	for _, d := range r.resources {
		if d.Hooks != nil {
			out = append(out, d)
		}
	}
	return out
}

// Dump renders a human-readable summary of every owner table row across
// all registered resources, one line per occupied (resource, zone)
// slot. Intended for the CLI harness and for tests asserting on engine
// state without reaching into table internals, the way the original's
// mrp_resource_owner_print dumped ownership to a text buffer.
func (r *Registry) Dump() string {
	var b strings.Builder
	for _, def := range r.resources {
		rows, err := r.store.Select(def.OwnerTable.Name(), table.All{}, table.EvalCtx{}, nil)
		if err != nil {
			continue
		}
		for _, row := range rows {
			fmt.Fprintf(&b, "%s: zone=%s class=%s set=%d\n",
				def.Name, row[1].Str, row[2].Str, row[3].U32)
		}
	}
	return b.String()
}

func attrColumns(defs []attribute.Definition) []table.ColumnDef {
	cols := make([]table.ColumnDef, len(defs))
	for i, d := range defs {
		cols[i] = table.ColumnDef{Name: d.Name, Type: attrTypeToColumn(d.Type)}
	}
	return cols
}

func attrTypeToColumn(t attribute.Type) table.ColumnType {
	switch t {
	case attribute.TypeString:
		return table.ColString
	case attribute.TypeInt32:
		return table.ColInt32
	case attribute.TypeUint32:
		return table.ColUint32
	case attribute.TypeDouble:
		return table.ColDouble
	default:
		return table.ColString
	}
}

// AttrValueToColumn converts an attribute value to its table.Value
// encoding, for callers (the arbitration engine's owner-table sync)
// outside this package that need the same conversion this package uses
// internally.
func AttrValueToColumn(v attribute.Value) table.Value {
	return attrValueToColumn(v)
}

func attrValueToColumn(v attribute.Value) table.Value {
	switch v.Type {
	case attribute.TypeString:
		return table.Value{Type: table.ColString, Str: v.Str}
	case attribute.TypeInt32:
		return table.Value{Type: table.ColInt32, I32: v.I32}
	case attribute.TypeUint32:
		return table.Value{Type: table.ColUint32, U32: v.U32}
	case attribute.TypeDouble:
		return table.Value{Type: table.ColDouble, Dbl: v.Dbl}
	default:
		return table.Value{}
	}
}
