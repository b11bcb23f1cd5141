package schema

import (
	"fmt"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
)

// DataChange is one entry of a change batch. Field is set for record
// targets, Key for collection targets.
type DataChange struct {
	RefID    int
	Op       protocol.Operation
	Field    string
	Index    int
	Key      Key
	Value    Value
	Previous Value
}

func (c DataChange) String() string {
	at := c.Field
	if at == "" {
		at = "[" + c.Key.String() + "]"
	}
	return fmt.Sprintf("#%d %s %s %s -> %s", c.RefID, c.Op, at, c.Previous, c.Value)
}

// DecodePrimitive decodes a scalar of wire type t.
func DecodePrimitive(t protocol.Type, it *protocol.Iterator) (v Value, err error) {
	switch t {
	case protocol.String:
		var s string
		s, err = protocol.DecodeString(it)
		v = StringValue(s)
	case protocol.Number:
		var f float64
		f, err = protocol.DecodeNumber(it)
		v = NumberValue(f)
	case protocol.Boolean:
		var b bool
		b, err = protocol.DecodeBoolean(it)
		v = BoolValue(b)
	case protocol.Int8:
		var i int8
		i, err = protocol.DecodeInt8(it)
		v = Int8Value(i)
	case protocol.Uint8:
		var u uint8
		u, err = protocol.DecodeUint8(it)
		v = Uint8Value(u)
	case protocol.Int16:
		var i int16
		i, err = protocol.DecodeInt16(it)
		v = Int16Value(i)
	case protocol.Uint16:
		var u uint16
		u, err = protocol.DecodeUint16(it)
		v = Uint16Value(u)
	case protocol.Int32:
		var i int32
		i, err = protocol.DecodeInt32(it)
		v = Int32Value(i)
	case protocol.Uint32:
		var u uint32
		u, err = protocol.DecodeUint32(it)
		v = Uint32Value(u)
	case protocol.Int64:
		var i int64
		i, err = protocol.DecodeInt64(it)
		v = Int64Value(i)
	case protocol.Uint64:
		var u uint64
		u, err = protocol.DecodeUint64(it)
		v = Uint64Value(u)
	case protocol.Float32:
		var f float32
		f, err = protocol.DecodeFloat32(it)
		v = Float32Value(f)
	case protocol.Float64:
		var f float64
		f, err = protocol.DecodeFloat64(it)
		v = Float64Value(f)
	default:
		return Value{}, fmt.Errorf("%w: %s is not a primitive", protocol.ErrBadType, t)
	}
	if err != nil {
		return Value{}, err
	}
	return v, nil
}
