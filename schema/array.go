package schema

import "github.com/colyseus/colyseus-unity-sdk-sub001/protocol"

// ArraySchema is an ordered sequence. Entries are keyed by the server
// assigned index and iterate in ascending key order.
type ArraySchema struct {
	items[int]
}

func NewArraySchema(refID int, childType protocol.Type, child *Class) *ArraySchema {
	return &ArraySchema{items: newItems[int](refID, childType, child, true)}
}

func (a *ArraySchema) node() {}

func (a *ArraySchema) RefID() int { return a.refID }

func (a *ArraySchema) Type() protocol.Type { return protocol.Array }

// At returns the i-th element in iteration order.
func (a *ArraySchema) At(i int) Value {
	if i < 0 || i >= len(a.keys) {
		return Value{}
	}
	return a.values[a.keys[i]]
}

// Get returns the element stored under key k.
func (a *ArraySchema) Get(k int) (Value, bool) {
	return a.get(k)
}

// Values lists the elements in iteration order.
func (a *ArraySchema) Values() []Value {
	ret := make([]Value, 0, len(a.keys))
	for _, k := range a.keys {
		ret = append(ret, a.values[k])
	}
	return ret
}

func (a *ArraySchema) KeyAt(slot int) (Key, bool) {
	k, ok := a.slotKey(slot)
	return IntKey(k), ok
}

func (a *ArraySchema) ValueAt(slot int) Value { return a.valueAt(slot) }

func (a *ArraySchema) SetAt(slot int, key Key, v Value) { a.setAt(slot, key.Int(), v) }

func (a *ArraySchema) DeleteAt(slot int) { a.deleteAt(slot) }

func (a *ArraySchema) ForEach(fn func(k Key, v Value)) {
	a.each(func(k int, v Value) { fn(IntKey(k), v) })
}

func (a *ArraySchema) Clear(changes *[]DataChange, rm Remover) {
	a.clear(changes, rm, IntKey)
}

func (a *ArraySchema) Clone() Collection {
	return &ArraySchema{items: a.clone(a.refID)}
}
