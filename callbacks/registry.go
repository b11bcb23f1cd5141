// Package callbacks turns change batches into add/remove/change
// notifications.
//
// Listeners are stored per node in an entry. An entry belongs to a tree
// position rather than to one instance: when the decoder replaces a node
// with a fresh one, Migrate makes the new refId share the old entry, so
// listeners follow the position without being copied.
package callbacks

import (
	"slices"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/prometheus/client_golang/prometheus"
)

var CallbackPanics = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "callbacks",
	Name:      "panics",
	Help:      "Callbacks that panicked and were recovered",
})

type selectorKind uint8

const (
	selField selectorKind = iota + 1
	selOp
	selAny
	selBind
	selRemoved
)

// Selector picks one listener list of a node: a field name, an
// operation kind, the any-change list or the bound targets.
type Selector struct {
	kind  selectorKind
	field string
	op    protocol.Operation
}

func FieldSelector(name string) Selector {
	return Selector{kind: selField, field: name}
}

func OpSelector(op protocol.Operation) Selector {
	return Selector{kind: selOp, op: op}
}

var (
	AnyChange = Selector{kind: selAny}
	Bound     = Selector{kind: selBind}
	// Removed fires when the node itself leaves its parent slot.
	Removed = Selector{kind: selRemoved}
)

// Event is what a listener receives for one change.
type Event struct {
	Field    string
	Key      schema.Key
	Value    schema.Value
	Previous schema.Value
}

type listener struct {
	fn      func(Event)
	removed bool
}

type entry struct {
	lists map[Selector][]*listener
}

func newEntry() *entry {
	return &entry{lists: make(map[Selector][]*listener)}
}

func (e *entry) add(sel Selector, fn func(Event)) (remove func()) {
	l := &listener{fn: fn}
	e.lists[sel] = append(e.lists[sel], l)
	return func() {
		if l.removed {
			return
		}
		l.removed = true
		list := e.lists[sel]
		if i := slices.Index(list, l); i >= 0 {
			e.lists[sel] = slices.Delete(slices.Clone(list), i, i+1)
		}
	}
}

// snapshot is the list as of now; later adds and removes don't touch it.
func (e *entry) snapshot(sel Selector) []*listener {
	return e.lists[sel]
}

func (e *entry) size() (n int) {
	for _, list := range e.lists {
		n += len(list)
	}
	return
}
