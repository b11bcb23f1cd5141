package schema

import (
	"fmt"
	"math"
	"strconv"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
)

// Value is a tagged union holding one field or element value.
// The zero Value is undefined, the "empty" marker of a slot.
type Value struct {
	typ  protocol.Type
	bits uint64
	str  string
	ref  Ref
}

func Undefined() Value { return Value{} }

func StringValue(s string) Value { return Value{typ: protocol.String, str: s} }

func NumberValue(f float64) Value { return Value{typ: protocol.Number, bits: math.Float64bits(f)} }

func BoolValue(b bool) Value {
	v := Value{typ: protocol.Boolean}
	if b {
		v.bits = 1
	}
	return v
}

func Int8Value(i int8) Value       { return Value{typ: protocol.Int8, bits: uint64(int64(i))} }
func Int16Value(i int16) Value     { return Value{typ: protocol.Int16, bits: uint64(int64(i))} }
func Int32Value(i int32) Value     { return Value{typ: protocol.Int32, bits: uint64(int64(i))} }
func Int64Value(i int64) Value     { return Value{typ: protocol.Int64, bits: uint64(i)} }
func Uint8Value(u uint8) Value     { return Value{typ: protocol.Uint8, bits: uint64(u)} }
func Uint16Value(u uint16) Value   { return Value{typ: protocol.Uint16, bits: uint64(u)} }
func Uint32Value(u uint32) Value   { return Value{typ: protocol.Uint32, bits: uint64(u)} }
func Uint64Value(u uint64) Value   { return Value{typ: protocol.Uint64, bits: u} }
func Float32Value(f float32) Value { return Value{typ: protocol.Float32, bits: uint64(math.Float32bits(f))} }
func Float64Value(f float64) Value { return Value{typ: protocol.Float64, bits: math.Float64bits(f)} }

// RefValue wraps a node; the tag follows the node kind.
func RefValue(r Ref) Value {
	if r == nil {
		return Value{}
	}
	return Value{typ: r.Type(), ref: r}
}

func (v Value) Type() protocol.Type { return v.typ }

func (v Value) Defined() bool { return v.typ != protocol.Undefined }

func (v Value) IsRef() bool { return v.ref != nil }

func (v Value) Str() string { return v.str }

func (v Value) Bool() bool { return v.bits != 0 }

// Int converts any numeric value to int64.
func (v Value) Int() int64 {
	switch v.typ {
	case protocol.Number, protocol.Float64:
		return int64(math.Float64frombits(v.bits))
	case protocol.Float32:
		return int64(math.Float32frombits(uint32(v.bits)))
	}
	return int64(v.bits)
}

// Uint converts any numeric value to uint64.
func (v Value) Uint() uint64 {
	switch v.typ {
	case protocol.Number, protocol.Float64:
		return uint64(math.Float64frombits(v.bits))
	case protocol.Float32:
		return uint64(math.Float32frombits(uint32(v.bits)))
	}
	return v.bits
}

// Float converts any numeric value to float64.
func (v Value) Float() float64 {
	switch v.typ {
	case protocol.Number, protocol.Float64:
		return math.Float64frombits(v.bits)
	case protocol.Float32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case protocol.Uint64, protocol.Uint32, protocol.Uint16, protocol.Uint8, protocol.Boolean:
		return float64(v.bits)
	}
	return float64(int64(v.bits))
}

func (v Value) Ref() Ref { return v.ref }

func (v Value) Record() *Record {
	r, _ := v.ref.(*Record)
	return r
}

func (v Value) Array() *ArraySchema {
	a, _ := v.ref.(*ArraySchema)
	return a
}

func (v Value) Map() *MapSchema {
	m, _ := v.ref.(*MapSchema)
	return m
}

// Collection returns the array or map held, nil otherwise.
func (v Value) Collection() Collection {
	c, _ := v.ref.(Collection)
	return c
}

// Same is node identity for refs and value equality for primitives.
func (v Value) Same(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	if v.ref != nil || o.ref != nil {
		return v.ref == o.ref
	}
	return v.bits == o.bits && v.str == o.str
}

func (v Value) String() string {
	switch v.typ {
	case protocol.Undefined:
		return "undefined"
	case protocol.String:
		return strconv.Quote(v.str)
	case protocol.Boolean:
		return strconv.FormatBool(v.Bool())
	case protocol.Number, protocol.Float32, protocol.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case protocol.Uint8, protocol.Uint16, protocol.Uint32, protocol.Uint64:
		return strconv.FormatUint(v.bits, 10)
	case protocol.Ref, protocol.Array, protocol.Map:
		return fmt.Sprintf("%s#%d", v.typ, v.ref.RefID())
	}
	return strconv.FormatInt(int64(v.bits), 10)
}

// Key is the dynamic key of a collection entry: an int for arrays,
// a string for maps.
type Key struct {
	str   string
	num   int
	isStr bool
}

func IntKey(i int) Key { return Key{num: i} }

func StringKey(s string) Key { return Key{str: s, isStr: true} }

func (k Key) IsString() bool { return k.isStr }

func (k Key) Int() int { return k.num }

func (k Key) Str() string { return k.str }

func (k Key) String() string {
	if k.isStr {
		return k.str
	}
	return strconv.Itoa(k.num)
}
