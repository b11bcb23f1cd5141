// Package refs tracks the lifetime of graph nodes.
//
// Every node reachable from the root has a refId and a count of the
// parent slots pointing at it. A node whose count drops to zero is
// scheduled for removal; GarbageCollect drops it after the batch has
// been dispatched, cascading into its own ref children.
package refs

import (
	"slices"

	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
)

type Tracker struct {
	instances map[int]schema.Ref
	counts    map[int]int

	// pending removals, a work queue with a membership set
	queue   []int
	pending map[int]struct{}

	log utils.Logger
}

func NewTracker(log utils.Logger) *Tracker {
	return &Tracker{
		instances: make(map[int]schema.Ref),
		counts:    make(map[int]int),
		pending:   make(map[int]struct{}),
		log:       log,
	}
}

// Add registers node under refID, optionally counting one more parent
// slot. A refId scheduled for removal is kept alive.
func (t *Tracker) Add(refID int, node schema.Ref, increment bool) {
	if _, ok := t.instances[refID]; !ok {
		t.instances[refID] = node
		t.counts[refID] = 0
	}
	if increment {
		t.counts[refID]++
	}
	delete(t.pending, refID)
}

func (t *Tracker) Get(refID int) (schema.Ref, bool) {
	node, ok := t.instances[refID]
	return node, ok
}

func (t *Tracker) Has(refID int) bool {
	_, ok := t.instances[refID]
	return ok
}

// Count is the number of parent slots referencing refID.
func (t *Tracker) Count(refID int) int {
	return t.counts[refID]
}

// IDs lists the tracked refIds in ascending order.
func (t *Tracker) IDs() []int {
	ids := make([]int, 0, len(t.instances))
	for id := range t.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *Tracker) Len() int {
	return len(t.instances)
}

// Pending is the number of refIds scheduled for removal.
func (t *Tracker) Pending() int {
	return len(t.pending)
}

// Remove releases one parent slot. It returns true when this call
// scheduled the node for removal; repeated calls in the same pass
// return false.
func (t *Tracker) Remove(refID int) bool {
	count, ok := t.counts[refID]
	if !ok {
		t.log.Error("trying to remove an untracked refId", "refId", refID)
		return false
	}
	if count > 0 {
		count--
		t.counts[refID] = count
	}
	if count > 0 {
		return false
	}
	if _, ok := t.pending[refID]; ok {
		return false
	}
	t.pending[refID] = struct{}{}
	t.queue = append(t.queue, refID)
	return true
}

// GarbageCollect drops every scheduled node still unreferenced and
// returns the dropped refIds. Cascaded removals are appended to the
// queue and processed in the same call.
func (t *Tracker) GarbageCollect() (dropped []int) {
	for i := 0; i < len(t.queue); i++ {
		refID := t.queue[i]
		if _, ok := t.pending[refID]; !ok {
			continue // re-added meanwhile
		}
		if t.counts[refID] > 0 {
			continue
		}
		t.release(t.instances[refID])
		delete(t.instances, refID)
		delete(t.counts, refID)
		delete(t.pending, refID)
		dropped = append(dropped, refID)
	}
	t.queue = t.queue[:0]
	return dropped
}

// release removes the node's references to its children. Children
// already dropped (cycles) are skipped.
func (t *Tracker) release(node schema.Ref) {
	drop := func(v schema.Value) {
		if v.IsRef() && t.Has(v.Ref().RefID()) {
			t.Remove(v.Ref().RefID())
		}
	}
	switch n := node.(type) {
	case *schema.Record:
		for _, f := range n.Class().RefFields() {
			drop(n.GetByIndex(f.Index))
		}
	case schema.Collection:
		if !n.ChildType().IsRef() {
			return
		}
		n.ForEach(func(_ schema.Key, v schema.Value) { drop(v) })
	}
}
