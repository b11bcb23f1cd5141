/*
Package protocol implements the primitive layer of the diff-state wire format.

# Message layout

A state message is a flat byte sequence of operations. Each operation is
addressed to the "current structure", which starts at the root (refId 0)
and is switched by a SWITCH marker:

	[255, refId number]            switch current structure
	[op|index, value...]           record field operation
	[op, index number, value...]   collection slot operation
	[10]                           clear a collection

Record operations pack the operation into the two high bits and the field
index into the low bits of a single byte. Collection operations carry the
operation byte uncompressed followed by the slot index as a number, since
collections may exceed 64 entries.

# Numbers

	0x00..0x7f  positive fixint, the prefix is the value
	0xca        float32
	0xcb        float64
	0xcc..0xcf  uint8, uint16, uint32, uint64
	0xd0..0xd3  int8, int16, int32, int64
	0xe0..0xff  negative fixint, value = (0xff - prefix + 1) * -1

All fixed-width bodies are little-endian.

# Strings

	0xa0..0xbf  fixstr, length = prefix & 0x1f
	0xd9        8-bit length
	0xda        16-bit length
	0xdb        32-bit length

followed by the UTF-8 body.

Reading past the end of the buffer fails with ErrIncomplete; framing is
the transport's job, so an incomplete message is fatal for that message.
*/
package protocol

import (
	"errors"
	"fmt"
)

const (
	// SwitchToStructure is followed by the refId of the new current structure.
	SwitchToStructure byte = 255
	// TypeID is followed by a type id selecting a concrete child class.
	TypeID byte = 213
)

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadPrefix  = errors.New("bad value prefix")
	ErrBadType    = errors.New("unknown wire type")
)

// Operation is the operation part of an operation byte.
type Operation byte

const (
	Replace      Operation = 0
	Delete       Operation = 64
	Add          Operation = 128
	DeleteAndAdd Operation = 192
	Clear        Operation = 10
)

// IsDelete reports whether the DELETE bit is set (DELETE and DELETE_AND_ADD).
func (op Operation) IsDelete() bool {
	return op != Clear && op&Delete == Delete
}

// IsAdd reports whether the ADD bit is set (ADD and DELETE_AND_ADD).
func (op Operation) IsAdd() bool {
	return op != Clear && op&Add == Add
}

func (op Operation) String() string {
	switch op {
	case Replace:
		return "REPLACE"
	case Delete:
		return "DELETE"
	case Add:
		return "ADD"
	case DeleteAndAdd:
		return "DELETE_AND_ADD"
	case Clear:
		return "CLEAR"
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

// SplitRecordOp splits a record operation byte into the operation and the
// field index. The index is byte % (op == 0 ? 255 : op), so REPLACE keeps
// the byte as is and the other operations strip their high bits.
func SplitRecordOp(b byte) (op Operation, index int) {
	op = Operation((b >> 6) << 6)
	mod := int(op)
	if op == Replace {
		mod = 255
	}
	return op, int(b) % mod
}

// Type is a wire type tag of a field or of a collection element.
type Type uint8

const (
	Undefined Type = iota
	String
	Number
	Boolean
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Ref
	Array
	Map
)

var typeNames = [...]string{
	Undefined: "undefined",
	String:    "string",
	Number:    "number",
	Boolean:   "boolean",
	Int8:      "int8",
	Uint8:     "uint8",
	Int16:     "int16",
	Uint16:    "uint16",
	Int32:     "int32",
	Uint32:    "uint32",
	Int64:     "int64",
	Uint64:    "uint64",
	Float32:   "float32",
	Float64:   "float64",
	Ref:       "ref",
	Array:     "array",
	Map:       "map",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps a tag name ("string", "int8", "ref", ...) to a Type.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name && Type(i) != Undefined {
			return Type(i), nil
		}
	}
	return Undefined, fmt.Errorf("%w: %q", ErrBadType, name)
}

// IsPrimitive is true for scalar tags decoded in place.
func (t Type) IsPrimitive() bool {
	return t >= String && t <= Float64
}

// IsRef is true for tags whose value is a tracked node.
func (t Type) IsRef() bool {
	return t == Ref || t == Array || t == Map
}

// IsCollection is true for array and map tags.
func (t Type) IsCollection() bool {
	return t == Array || t == Map
}
