package testutils

import "github.com/colyseus/colyseus-unity-sdk-sub001/protocol"

type ReflField struct {
	Name, Type string
	Ref        int
}

type ReflType struct {
	ID, Extends int
	Fields      []ReflField
}

// Reflection encodes a handshake type tree the way a room server sends it.
func Reflection(root int, types ...ReflType) []byte {
	p := NewPatch()
	next := 1
	alloc := func() int { next++; return next - 1 }

	typesRef := alloc()
	p.Field(protocol.Replace, 0).Ref(typesRef).Field(protocol.Replace, 1).Number(float64(root))

	typeRefs := make([]int, len(types))
	p.Switch(typesRef)
	for i := range types {
		typeRefs[i] = alloc()
		p.Item(protocol.Add, i).Ref(typeRefs[i])
	}
	for i, rt := range types {
		fieldsRef := alloc()
		p.Switch(typeRefs[i]).
			Field(protocol.Replace, 0).Number(float64(rt.ID)).
			Field(protocol.Replace, 1).Number(float64(rt.Extends)).
			Field(protocol.Replace, 2).Ref(fieldsRef)
		fieldRefs := make([]int, len(rt.Fields))
		p.Switch(fieldsRef)
		for j := range rt.Fields {
			fieldRefs[j] = alloc()
			p.Item(protocol.Add, j).Ref(fieldRefs[j])
		}
		for j, f := range rt.Fields {
			p.Switch(fieldRefs[j]).
				Field(protocol.Replace, 0).String(f.Name).
				Field(protocol.Replace, 1).String(f.Type).
				Field(protocol.Replace, 2).Number(float64(f.Ref))
		}
	}
	return p.Bytes()
}

// Kennel is a small three type handshake: a root with a name, a pets
// map and a leader ref, a Pet and a Dog extending it.
var Kennel = []ReflType{
	{ID: 0, Extends: -1, Fields: []ReflField{
		{"name", "string", -1},
		{"pets", "map", 1},
		{"scores", "array:number", -1},
		{"leader", "ref", 2},
	}},
	{ID: 1, Extends: -1, Fields: []ReflField{{"kind", "string", -1}}},
	{ID: 2, Extends: 1, Fields: []ReflField{{"bark", "boolean", -1}}},
}
