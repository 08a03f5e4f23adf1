/*
Package events is the synchronous lifecycle event bus for resource-set
transitions.

Each Acquire/Release/Create/Destroy call on a resource set publishes its
own lifecycle event before returning, carrying nothing but the affected
set's id. Release on a set already in the release state publishes
nothing; Destroy of an acquiring set also publishes the release event of
the Release it performs; and arbitration publishes a release event for
every set it demotes to release.

	Publish(&Event{Type: ResourceSetAcquire, RsetID: set.ID})

Delivery is synchronous and best-effort: Publish walks every current
subscriber and sends without blocking, so a subscriber whose buffer is
full misses the event rather than stalling the arbitration call that
produced it. Subscribers that need every event should drain their
channel promptly; this bus makes no delivery guarantee beyond "at most
once, same goroutine, no blocking."

# Event types

	resource_set_created
	resource_set_destroyed
	resource_set_acquire
	resource_set_release

Each Type is interned to a dense integer id on first use (InternedID),
for callers that want a stable small id instead of comparing strings.

# Usage

	bus := events.NewBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	go func() {
		for evt := range sub {
			log.Printf("%s: set %d (%s)", evt.Type, evt.RsetID, evt.ID)
		}
	}()

	bus.Publish(&events.Event{Type: events.ResourceSetAcquire, RsetID: 7})

Every Event gets a correlation ID if the caller didn't set one, so a
reconciliation run or a downstream log line can tie back to the exact
publish that produced it.
*/
package events
