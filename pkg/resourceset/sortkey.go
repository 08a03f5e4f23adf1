package resourceset

import "github.com/cuemby/arbiter/pkg/registry"

// StampBits is the width of the stamp field packed into a sort key.
const StampBits = 27

// StampMask masks a stamp (or the global counter) to StampBits.
const StampMask = (1 << StampBits) - 1

// computeSortKey packs priority, usage, state, and stamp into a 32-bit
// key so that a descending btree walk visits the highest-priority,
// acquiring-before-releasing sets first, with the stamp field breaking
// ties per the class's configured FIFO/LIFO order:
//
//	[ priority:3 | usage:1 | state:1 | stamp:27 ]
//	  31      29   28        27        26     0
//
// usage is 1 iff the set holds any shared instance. state is 1 iff the
// set is in the acquire state. stamp is the request's monotonic counter
// for FIFO classes, or StampMask minus it for LIFO classes, so that
// within one class/zone/priority/state/usage bucket the btree's
// descending key walk still yields the class's configured tie-break.
func computeSortKey(s *Set, class *registry.Class) uint32 {
	var priority uint32
	var order registry.Order
	if class != nil {
		priority = uint32(class.Priority) & 0x7
		order = class.Order
	}

	var usage uint32
	if s.Shared {
		usage = 1
	}

	var state uint32
	if s.State == Acquire {
		state = 1
	}

	stamp := s.Stamp & StampMask
	if order == registry.LIFO {
		stamp = StampMask - stamp
	}

	return priority<<29 | usage<<28 | state<<27 | stamp
}

// nextRequestStamp returns the next monotonic request stamp, rebasing
// every live set's stamp (and the counter itself) down by the minimum
// live stamp first if the counter would otherwise overflow StampMask.
func (m *Manager) nextRequestStamp() uint32 {
	if m.reqStamp >= StampMask {
		m.rebaseStamps()
	}
	m.reqStamp++
	return m.reqStamp
}

func (m *Manager) rebaseStamps() {
	min := m.reqStamp
	for _, s := range m.sets {
		if s.State == Acquire || s.State == Release {
			if s.Stamp < min {
				min = s.Stamp
			}
		}
	}
	if min == 0 {
		return
	}

	for _, s := range m.sets {
		if s.State != Acquire && s.State != Release {
			continue
		}
		oldKey := s.sortKey
		s.Stamp -= min
		m.requeue(s, oldKey, true)
	}
	m.reqStamp -= min
}
