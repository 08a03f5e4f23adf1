package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/arbiter/pkg/events"
	"github.com/cuemby/arbiter/pkg/registry"
	"github.com/cuemby/arbiter/pkg/resourceset"
	"github.com/cuemby/arbiter/pkg/table"
)

type fixture struct {
	reg    *registry.Registry
	sets   *resourceset.Manager
	bus    *events.Bus
	engine *Engine
}

func newFixture(t *testing.T, veto registry.VetoFunc) *fixture {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.DefineZoneAttributes(nil))
	_, err := reg.CreateZone("zone-a", nil)
	require.NoError(t, err)

	bus := events.NewBus()
	sets := resourceset.New(reg, bus)
	engine := New(reg, sets, bus, veto)

	return &fixture{reg: reg, sets: sets, bus: bus, engine: engine}
}

func (f *fixture) client(t *testing.T, name string) {
	t.Helper()
	_, err := f.sets.CreateClient(name, nil)
	require.NoError(t, err)
}

func (f *fixture) acquireSet(t *testing.T, clientName, className, resourceName string, reqID uint32, cb resourceset.Callback) *resourceset.Set {
	t.Helper()
	s, err := f.sets.CreateSet(clientName, className, "zone-a", false, false, cb, nil)
	require.NoError(t, err)
	require.NoError(t, f.sets.AddResource(s, resourceName, false, nil, true))
	require.NoError(t, f.sets.Acquire(s.ID, reqID))
	return s
}

func TestRecompute_HigherPriorityClassWinsExclusiveResource(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("low", 1, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.CreateClass("high", 9, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "loud")
	f.client(t, "quiet")

	lowSet := f.acquireSet(t, "quiet", "low", "speaker", 1, nil)
	assert.NotEqual(t, uint32(0), lowSet.Grant)

	highSet := f.acquireSet(t, "loud", "high", "speaker", 2, nil)
	assert.NotEqual(t, uint32(0), highSet.Grant)
	assert.Equal(t, uint32(0), lowSet.Grant, "the lower-priority set must lose the resource to the higher-priority one")
}

func TestRecompute_SharedResourceGrantsBothHolders(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("audio", 5, false, true, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", true, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "a")
	f.client(t, "b")

	s1, err := f.sets.CreateSet("a", "audio", "zone-a", false, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.sets.AddResource(s1, "speaker", true, nil, true))
	require.NoError(t, f.sets.Acquire(s1.ID, 1))

	s2, err := f.sets.CreateSet("b", "audio", "zone-a", false, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.sets.AddResource(s2, "speaker", true, nil, true))
	require.NoError(t, f.sets.Acquire(s2.ID, 2))

	assert.NotEqual(t, uint32(0), s1.Grant)
	assert.NotEqual(t, uint32(0), s2.Grant)
}

func TestRecompute_VetoRejectsGrantAndFallsBackToAdvice(t *testing.T) {
	f := newFixture(t, func(ctx registry.HookContext) bool { return false })
	_, err := f.reg.CreateClass("audio", 5, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)
	f.client(t, "a")

	s := f.acquireSet(t, "a", "audio", "speaker", 1, nil)
	assert.Equal(t, uint32(0), s.Grant, "a vetoed request must not be granted")
}

func TestRecompute_ModalOwnerForcesRequesterToRelease(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("modal", 5, true, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.CreateClass("other", 3, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "owner")
	f.client(t, "challenger")

	owner := f.acquireSet(t, "owner", "modal", "speaker", 1, nil)
	require.NotEqual(t, uint32(0), owner.Grant)

	challenger := f.acquireSet(t, "challenger", "other", "speaker", 2, nil)
	assert.Equal(t, resourceset.Release, challenger.State, "a modal owner must force the challenger into release, not be preempted")
}

func TestRecompute_AutoReleaseDemotesSetWhenGrantDrops(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("low", 1, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.CreateClass("high", 9, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "quiet")
	f.client(t, "loud")

	s, err := f.sets.CreateSet("quiet", "low", "zone-a", true, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.sets.AddResource(s, "speaker", false, nil, true))
	require.NoError(t, f.sets.Acquire(s.ID, 1))
	require.NotEqual(t, uint32(0), s.Grant)

	f.acquireSet(t, "loud", "high", "speaker", 2, nil)

	assert.Equal(t, resourceset.Release, s.State, "auto_release must demote the set once it loses its grant")
}

func TestRecompute_CallbacksFireRevokesBeforeGrants(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("low", 1, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.CreateClass("high", 9, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "quiet")
	f.client(t, "loud")

	var calls []string
	cb := func(name string) resourceset.Callback {
		return func(set *resourceset.Set, reqID uint32, kind resourceset.CallbackKind) {
			if kind == resourceset.CallbackGrant {
				calls = append(calls, name+":grant")
			} else {
				calls = append(calls, name+":revoke")
			}
		}
	}

	lowSet := f.acquireSet(t, "quiet", "low", "speaker", 1, cb("low"))
	require.NotEqual(t, uint32(0), lowSet.Grant)
	calls = nil

	f.acquireSet(t, "loud", "high", "speaker", 2, cb("high"))

	require.Len(t, calls, 2)
	assert.Equal(t, "low:revoke", calls[0])
	assert.Equal(t, "high:grant", calls[1])
}

func TestRecompute_ManagerHooksFireInOrder(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("audio", 5, false, false, registry.FIFO)
	require.NoError(t, err)

	var order []string
	hooks := &registry.HookTable{
		Init:     func(registry.HookContext) { order = append(order, "init") },
		Allocate: func(registry.HookContext) bool { order = append(order, "allocate"); return true },
		Commit:   func(registry.HookContext) { order = append(order, "commit") },
	}
	_, err = f.reg.RegisterResource("speaker", false, false, nil, hooks, nil)
	require.NoError(t, err)
	f.client(t, "a")

	f.acquireSet(t, "a", "audio", "speaker", 1, nil)

	require.Len(t, order, 3)
	assert.Equal(t, []string{"init", "allocate", "commit"}, order)
}

func TestRecompute_PersistsOwnerTableRow(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("audio", 5, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)
	f.client(t, "a")

	s := f.acquireSet(t, "a", "audio", "speaker", 1, nil)
	require.NotEqual(t, uint32(0), s.Grant)

	rows, err := f.reg.Store().Select("speaker_owner", table.All{}, table.EvalCtx{}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "audio", rows[0][2].Str)
	assert.Equal(t, s.ID, rows[0][3].U32)
}

func TestRecompute_MandatoryUnmetRollsBackTentativeGrantWithoutLeak(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.CreateClass("high", 9, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.CreateClass("low", 1, false, false, registry.FIFO)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("battery", false, false, nil, nil, nil)
	require.NoError(t, err)
	_, err = f.reg.RegisterResource("speaker", false, false, nil, nil, nil)
	require.NoError(t, err)

	f.client(t, "peer")
	f.client(t, "requester")

	peer := f.acquireSet(t, "peer", "high", "speaker", 1, nil)
	require.NotEqual(t, uint32(0), peer.Grant, "the higher-priority peer must hold the speaker exclusively")

	s, err := f.sets.CreateSet("requester", "low", "zone-a", false, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.sets.AddResource(s, "battery", false, nil, true))
	require.NoError(t, f.sets.AddResource(s, "speaker", false, nil, true))
	require.NoError(t, f.sets.Acquire(s.ID, 2))

	assert.Equal(t, uint32(0), s.Grant, "one mandatory resource is unavailable, so neither mandatory resource may be granted")

	batteryRows, err := f.reg.Store().Select("battery_owner", table.All{}, table.EvalCtx{}, nil)
	require.NoError(t, err)
	assert.Empty(t, batteryRows, "the tentatively granted mandatory resource must be released, not left owned by the failed set")

	speakerRows, err := f.reg.Store().Select("speaker_owner", table.All{}, table.EvalCtx{}, nil)
	require.NoError(t, err)
	require.Len(t, speakerRows, 1)
	assert.Equal(t, peer.ID, speakerRows[0][3].U32, "the already-granted peer's ownership must be restored, not disturbed by the failed rollback")
}

func TestRecompute_DeferralQueuesReentrantRequests(t *testing.T) {
	f := newFixture(t, nil)
	zoneID := uint32(0)

	f.engine.running[zoneID] = true
	f.engine.Recompute(zoneID, 7, 1)
	f.engine.running[zoneID] = false

	require.Len(t, f.engine.pending[zoneID], 1)
	assert.Equal(t, uint32(7), f.engine.pending[zoneID][0].setID)
}
