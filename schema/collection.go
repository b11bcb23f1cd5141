package schema

import (
	"cmp"
	"slices"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
)

// Collection is the common surface of ArraySchema and MapSchema.
//
// Entries are stored by dynamic key; the wire addresses them by a
// transient slot index, translated through the slot table.
type Collection interface {
	Ref
	ChildType() protocol.Type
	ChildClass() *Class
	SetChild(t protocol.Type, cls *Class)
	Len() int

	// KeyAt translates a slot index into the dynamic key.
	KeyAt(slot int) (Key, bool)
	// ValueAt is the value currently addressed by a slot.
	ValueAt(slot int) Value
	// SetAt binds slot to key and stores v under key.
	SetAt(slot int, key Key, v Value)
	// DeleteAt drops the entry addressed by slot and the slot itself.
	DeleteAt(slot int)

	ForEach(fn func(k Key, v Value))
	// Clear empties the collection, appending one DELETE change per entry
	// and releasing ref elements through rm.
	Clear(changes *[]DataChange, rm Remover)
	// Clone is a shallow copy sharing element values.
	Clone() Collection
}

// items is the shared storage: ordered keys, values and the slot table.
type items[K cmp.Ordered] struct {
	refID     int
	childType protocol.Type
	child     *Class
	sorted    bool

	keys   []K
	values map[K]Value
	slots  map[int]K
}

func newItems[K cmp.Ordered](refID int, childType protocol.Type, child *Class, sorted bool) items[K] {
	return items[K]{
		refID:     refID,
		childType: childType,
		child:     child,
		sorted:    sorted,
		values:    make(map[K]Value),
		slots:     make(map[int]K),
	}
}

func (c *items[K]) ChildType() protocol.Type { return c.childType }

func (c *items[K]) ChildClass() *Class { return c.child }

func (c *items[K]) SetChild(t protocol.Type, cls *Class) {
	c.childType = t
	c.child = cls
}

func (c *items[K]) Len() int { return len(c.keys) }

func (c *items[K]) get(k K) (Value, bool) {
	v, ok := c.values[k]
	return v, ok
}

func (c *items[K]) put(k K, v Value) {
	if _, ok := c.values[k]; !ok {
		if c.sorted {
			at, _ := slices.BinarySearch(c.keys, k)
			c.keys = slices.Insert(c.keys, at, k)
		} else {
			c.keys = append(c.keys, k)
		}
	}
	c.values[k] = v
}

func (c *items[K]) drop(k K) {
	if _, ok := c.values[k]; !ok {
		return
	}
	delete(c.values, k)
	if i := slices.Index(c.keys, k); i >= 0 {
		c.keys = slices.Delete(c.keys, i, i+1)
	}
}

func (c *items[K]) slotKey(slot int) (K, bool) {
	k, ok := c.slots[slot]
	return k, ok
}

func (c *items[K]) valueAt(slot int) Value {
	k, ok := c.slots[slot]
	if !ok {
		return Value{}
	}
	return c.values[k]
}

func (c *items[K]) setAt(slot int, k K, v Value) {
	c.slots[slot] = k
	c.put(k, v)
}

func (c *items[K]) deleteAt(slot int) {
	k, ok := c.slots[slot]
	if !ok {
		return
	}
	c.drop(k)
	delete(c.slots, slot)
}

func (c *items[K]) each(fn func(k K, v Value)) {
	keys := slices.Clone(c.keys)
	for _, k := range keys {
		if v, ok := c.values[k]; ok {
			fn(k, v)
		}
	}
}

func (c *items[K]) clear(changes *[]DataChange, rm Remover, key func(K) Key) {
	for _, k := range c.keys {
		v := c.values[k]
		if v.IsRef() && rm != nil {
			rm.Remove(v.Ref().RefID())
		}
		if changes != nil {
			*changes = append(*changes, DataChange{
				RefID:    c.refID,
				Op:       protocol.Delete,
				Key:      key(k),
				Index:    -1,
				Previous: v,
			})
		}
	}
	c.keys = c.keys[:0]
	c.values = make(map[K]Value)
	c.slots = make(map[int]K)
}

func (c *items[K]) clone(refID int) items[K] {
	n := newItems[K](refID, c.childType, c.child, c.sorted)
	n.keys = slices.Clone(c.keys)
	for k, v := range c.values {
		n.values[k] = v
	}
	for s, k := range c.slots {
		n.slots[s] = k
	}
	return n
}
