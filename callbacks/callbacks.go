package callbacks

import (
	"strings"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
)

// Nodes resolves the refIds found in a change batch and tells how many
// parent slots still reference each.
type Nodes interface {
	Get(refID int) (schema.Ref, bool)
	Count(refID int) int
}

// Binder receives field values copied by BindTo.
type Binder interface {
	Bind(field string, v schema.Value)
}

type BinderFunc func(field string, v schema.Value)

func (f BinderFunc) Bind(field string, v schema.Value) { f(field, v) }

// MapBinder mirrors bound fields into a map; undefined values delete.
type MapBinder map[string]schema.Value

func (m MapBinder) Bind(field string, v schema.Value) {
	if v.Defined() {
		m[field] = v
	} else {
		delete(m, field)
	}
}

type Callbacks struct {
	entries map[int]*entry
	nodes   Nodes
	log     utils.Logger

	// set while a batch is dispatched; suppresses fire-on-subscribe
	isTriggering bool
}

func New(nodes Nodes, log utils.Logger) *Callbacks {
	return &Callbacks{
		entries: make(map[int]*entry),
		nodes:   nodes,
		log:     log,
	}
}

func (c *Callbacks) entry(refID int) *entry {
	e, ok := c.entries[refID]
	if !ok {
		e = newEntry()
		c.entries[refID] = e
	}
	return e
}

// On registers fn on a raw selector of a node.
func (c *Callbacks) On(node schema.Ref, sel Selector, fn func(Event)) (remove func()) {
	return c.entry(node.RefID()).add(sel, fn)
}

// Listen fires fn(current, previous) whenever the field changes. With
// immediate set and the field already defined, fn fires once right away.
func (c *Callbacks) Listen(rec *schema.Record, field string, fn func(cur, prev schema.Value), immediate bool) func() {
	remove := c.On(rec, FieldSelector(field), func(ev Event) { fn(ev.Value, ev.Previous) })
	if cur := rec.Get(field); immediate && !c.isTriggering && cur.Defined() {
		c.call(rec.RefID(), func() { fn(cur, schema.Undefined()) })
	}
	return remove
}

// OnChange fires once per batch touching any field of rec.
func (c *Callbacks) OnChange(rec *schema.Record, fn func()) func() {
	return c.On(rec, AnyChange, func(Event) { fn() })
}

// OnRemove fires when node is deleted from its parent slot.
func (c *Callbacks) OnRemove(node schema.Ref, fn func()) func() {
	return c.On(node, Removed, func(Event) { fn() })
}

// OnAdd fires for every entry added to coll. With immediate set the
// existing entries are reported first.
func (c *Callbacks) OnAdd(coll schema.Collection, fn func(k schema.Key, v schema.Value), immediate bool) func() {
	remove := c.On(coll, OpSelector(protocol.Add), func(ev Event) { fn(ev.Key, ev.Value) })
	if immediate && !c.isTriggering {
		coll.ForEach(func(k schema.Key, v schema.Value) {
			c.call(coll.RefID(), func() { fn(k, v) })
		})
	}
	return remove
}

func (c *Callbacks) OnItemChange(coll schema.Collection, fn func(k schema.Key, v schema.Value)) func() {
	return c.On(coll, OpSelector(protocol.Replace), func(ev Event) { fn(ev.Key, ev.Value) })
}

// OnItemRemove receives the removed value.
func (c *Callbacks) OnItemRemove(coll schema.Collection, fn func(k schema.Key, v schema.Value)) func() {
	return c.On(coll, OpSelector(protocol.Delete), func(ev Event) { fn(ev.Key, ev.Previous) })
}

// BindTo copies changes of the named fields (all fields if none are
// named) into target.
func (c *Callbacks) BindTo(rec *schema.Record, target Binder, fields ...string) func() {
	want := func(name string) bool {
		if len(fields) == 0 {
			return true
		}
		for _, f := range fields {
			if f == name {
				return true
			}
		}
		return false
	}
	remove := c.On(rec, Bound, func(ev Event) {
		if want(ev.Field) {
			target.Bind(ev.Field, ev.Value)
		}
	})
	if !c.isTriggering {
		rec.ForEach(func(f *schema.Field, v schema.Value) {
			if v.Defined() && want(f.Name) {
				c.call(rec.RefID(), func() { target.Bind(f.Name, v) })
			}
		})
	}
	return remove
}

// slot subscribes fn to the value named by hop: a field of a record or a
// key of a collection. It also returns the value currently there.
func (c *Callbacks) slot(node schema.Ref, hop string, fn func(cur, prev schema.Value)) (schema.Value, func()) {
	switch n := node.(type) {
	case *schema.Record:
		remove := c.On(n, FieldSelector(hop), func(ev Event) { fn(ev.Value, ev.Previous) })
		return n.Get(hop), remove
	case schema.Collection:
		match := func(ev Event) bool { return ev.Key.String() == hop }
		removes := []func(){
			c.On(n, OpSelector(protocol.Add), func(ev Event) {
				if match(ev) {
					fn(ev.Value, ev.Previous)
				}
			}),
			c.On(n, OpSelector(protocol.Replace), func(ev Event) {
				if match(ev) {
					fn(ev.Value, ev.Previous)
				}
			}),
			c.On(n, OpSelector(protocol.Delete), func(ev Event) {
				if match(ev) {
					fn(schema.Undefined(), ev.Previous)
				}
			}),
		}
		var cur schema.Value
		n.ForEach(func(k schema.Key, v schema.Value) {
			if k.String() == hop {
				cur = v
			}
		})
		return cur, func() {
			for _, rm := range removes {
				rm()
			}
		}
	}
	return schema.Undefined(), func() {}
}

// Watch follows path from root and calls attach on the node it leads to.
// Unresolved hops keep a provisional listener; when any intermediate
// node is replaced the subscription below it is detached and attached
// again to the new node. The returned func detaches everything.
func (c *Callbacks) Watch(root schema.Ref, path []string, attach func(schema.Ref) func()) func() {
	if len(path) == 0 {
		if detach := attach(root); detach != nil {
			return detach
		}
		return func() {}
	}
	hop, rest := path[0], path[1:]
	var below func()
	follow := func(v schema.Value) {
		if below != nil {
			below()
			below = nil
		}
		if v.IsRef() {
			below = c.Watch(v.Ref(), rest, attach)
		}
	}
	cur, remove := c.slot(root, hop, func(cur, prev schema.Value) {
		if !cur.Same(prev) || below == nil {
			follow(cur)
		}
	})
	follow(cur)
	return func() {
		remove()
		if below != nil {
			below()
			below = nil
		}
	}
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "."), ".")
}

// ListenPath is Listen over a dotted path, e.g. "players.alice.hp".
// Collection hops are addressed by key.
func (c *Callbacks) ListenPath(root schema.Ref, path string, fn func(cur, prev schema.Value), immediate bool) func() {
	segs := splitPath(path)
	last := segs[len(segs)-1]
	return c.Watch(root, segs[:len(segs)-1], func(node schema.Ref) func() {
		cur, remove := c.slot(node, last, fn)
		if immediate && !c.isTriggering && cur.Defined() {
			c.call(node.RefID(), func() { fn(cur, schema.Undefined()) })
		}
		return remove
	})
}

// OnAddPath is OnAdd on the collection found at path.
func (c *Callbacks) OnAddPath(root schema.Ref, path string, fn func(k schema.Key, v schema.Value), immediate bool) func() {
	return c.Watch(root, splitPath(path), func(node schema.Ref) func() {
		if coll, ok := node.(schema.Collection); ok {
			return c.OnAdd(coll, fn, immediate)
		}
		return nil
	})
}

// OnItemRemovePath is OnItemRemove on the collection found at path.
func (c *Callbacks) OnItemRemovePath(root schema.Ref, path string, fn func(k schema.Key, v schema.Value)) func() {
	return c.Watch(root, splitPath(path), func(node schema.Ref) func() {
		if coll, ok := node.(schema.Collection); ok {
			return c.OnItemRemove(coll, fn)
		}
		return nil
	})
}

// removes reports whether ch takes a node out of its slot for good: the
// DELETE bit is set, or another value replaced a node no slot references
// anymore.
func (c *Callbacks) removes(ch schema.DataChange) bool {
	if !ch.Previous.IsRef() {
		return false
	}
	if ch.Op.IsDelete() {
		return true
	}
	return !ch.Value.Same(ch.Previous) && c.nodes.Count(ch.Previous.Ref().RefID()) == 0
}

// Migrate makes the node newly occupying a tree position share the
// registrations of the one it replaced. The decoder only migrates from
// nodes that left the tree.
func (c *Callbacks) Migrate(from, to int) {
	if from == to {
		return
	}
	if e, ok := c.entries[from]; ok {
		c.entries[to] = e
	}
}

// Forget drops the registrations of collected refIds.
func (c *Callbacks) Forget(refIDs ...int) {
	for _, id := range refIDs {
		delete(c.entries, id)
	}
}

func (c *Callbacks) Len() int { return len(c.entries) }

// Listeners counts the registrations reachable from refID.
func (c *Callbacks) Listeners(refID int) int {
	if e, ok := c.entries[refID]; ok {
		return e.size()
	}
	return 0
}

func (c *Callbacks) IsTriggering() bool { return c.isTriggering }

// Trigger dispatches one change batch in emission order.
func (c *Callbacks) Trigger(changes []schema.DataChange) {
	c.isTriggering = true
	defer func() { c.isTriggering = false }()

	notified := make(map[int]struct{})
	for _, ch := range changes {
		if c.removes(ch) {
			c.fire(ch.Previous.Ref().RefID(), Removed, Event{Previous: ch.Previous})
		}
		if _, ok := c.entries[ch.RefID]; !ok {
			continue
		}
		node, ok := c.nodes.Get(ch.RefID)
		if !ok {
			continue
		}
		ev := Event{Field: ch.Field, Key: ch.Key, Value: ch.Value, Previous: ch.Previous}
		switch node.(type) {
		case *schema.Record:
			if _, done := notified[ch.RefID]; !done {
				notified[ch.RefID] = struct{}{}
				c.fire(ch.RefID, AnyChange, ev)
			}
			c.fire(ch.RefID, FieldSelector(ch.Field), ev)
			c.fire(ch.RefID, Bound, ev)
		case schema.Collection:
			c.dispatchItem(ch, ev)
		}
	}
}

func (c *Callbacks) dispatchItem(ch schema.DataChange, ev Event) {
	switch {
	case ch.Op == protocol.Add && !ch.Previous.Defined():
		c.fire(ch.RefID, OpSelector(protocol.Add), ev)
	case ch.Op == protocol.Delete:
		if ch.Previous.Defined() {
			c.fire(ch.RefID, OpSelector(protocol.Delete), ev)
		}
	case ch.Op == protocol.DeleteAndAdd:
		if ch.Previous.Defined() {
			c.fire(ch.RefID, OpSelector(protocol.Delete), ev)
		}
		c.fire(ch.RefID, OpSelector(protocol.Add), ev)
	case ch.Op == protocol.Replace || !ch.Value.Same(ch.Previous):
		c.fire(ch.RefID, OpSelector(protocol.Replace), ev)
	}
}

func (c *Callbacks) fire(refID int, sel Selector, ev Event) {
	e, ok := c.entries[refID]
	if !ok {
		return
	}
	for _, l := range e.snapshot(sel) {
		if l.removed {
			continue
		}
		c.call(refID, func() { l.fn(ev) })
	}
}

// call runs one callback; a panic is logged and counted, the batch goes on.
func (c *Callbacks) call(refID int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			CallbackPanics.Inc()
			c.log.Error("callback panicked", "refId", refID, "panic", r)
		}
	}()
	fn()
}
