package schema

import "github.com/colyseus/colyseus-unity-sdk-sub001/protocol"

// MapSchema is a string-keyed map iterating in insertion order.
type MapSchema struct {
	items[string]
}

func NewMapSchema(refID int, childType protocol.Type, child *Class) *MapSchema {
	return &MapSchema{items: newItems[string](refID, childType, child, false)}
}

func (m *MapSchema) node() {}

func (m *MapSchema) RefID() int { return m.refID }

func (m *MapSchema) Type() protocol.Type { return protocol.Map }

func (m *MapSchema) Get(key string) (Value, bool) {
	return m.get(key)
}

func (m *MapSchema) Keys() []string {
	return append([]string(nil), m.keys...)
}

func (m *MapSchema) KeyAt(slot int) (Key, bool) {
	k, ok := m.slotKey(slot)
	return StringKey(k), ok
}

func (m *MapSchema) ValueAt(slot int) Value { return m.valueAt(slot) }

func (m *MapSchema) SetAt(slot int, key Key, v Value) { m.setAt(slot, key.Str(), v) }

func (m *MapSchema) DeleteAt(slot int) { m.deleteAt(slot) }

func (m *MapSchema) ForEach(fn func(k Key, v Value)) {
	m.each(func(k string, v Value) { fn(StringKey(k), v) })
}

func (m *MapSchema) Clear(changes *[]DataChange, rm Remover) {
	m.clear(changes, rm, StringKey)
}

func (m *MapSchema) Clone() Collection {
	return &MapSchema{items: m.clone(m.refID)}
}

// NewCollection creates an empty array or map node for a collection tag.
func NewCollection(t protocol.Type, refID int, childType protocol.Type, child *Class) Collection {
	if t == protocol.Map {
		return NewMapSchema(refID, childType, child)
	}
	return NewArraySchema(refID, childType, child)
}
