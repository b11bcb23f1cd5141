package protocol

import (
	"encoding/binary"
	"math"
)

// The append functions produce the client side of the room envelope
// (message types, reconnection data) and test fixtures. State messages
// are produced by the server only.

func AppendUint8(buf []byte, v uint8) []byte {
	return append(buf, v)
}

func AppendUint16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

func AppendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func AppendUint64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

func AppendInt8(buf []byte, v int8) []byte   { return AppendUint8(buf, uint8(v)) }
func AppendInt16(buf []byte, v int16) []byte { return AppendUint16(buf, uint16(v)) }
func AppendInt32(buf []byte, v int32) []byte { return AppendUint32(buf, uint32(v)) }
func AppendInt64(buf []byte, v int64) []byte { return AppendUint64(buf, uint64(v)) }

func AppendFloat32(buf []byte, v float32) []byte {
	return AppendUint32(buf, math.Float32bits(v))
}

func AppendFloat64(buf []byte, v float64) []byte {
	return AppendUint64(buf, math.Float64bits(v))
}

func AppendBoolean(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendNumber writes the shortest tagged form of v.
func AppendNumber(buf []byte, v float64) []byte {
	if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
		return AppendFloat64(append(buf, 0xcb), v)
	}
	if v >= 0 {
		switch {
		case v < 0x80:
			return append(buf, byte(v))
		case v < 0x100:
			return AppendUint8(append(buf, 0xcc), uint8(v))
		case v < 0x10000:
			return AppendUint16(append(buf, 0xcd), uint16(v))
		case v < 0x100000000:
			return AppendUint32(append(buf, 0xce), uint32(v))
		case v < math.MaxUint64:
			return AppendUint64(append(buf, 0xcf), uint64(v))
		}
		return AppendFloat64(append(buf, 0xcb), v)
	}
	switch {
	case v >= -0x20:
		return append(buf, byte(0x100+int(v)))
	case v >= math.MinInt8:
		return AppendInt8(append(buf, 0xd0), int8(v))
	case v >= math.MinInt16:
		return AppendInt16(append(buf, 0xd1), int16(v))
	case v >= math.MinInt32:
		return AppendInt32(append(buf, 0xd2), int32(v))
	case v >= math.MinInt64:
		return AppendInt64(append(buf, 0xd3), int64(v))
	}
	return AppendFloat64(append(buf, 0xcb), v)
}

// AppendString writes a length-prefixed UTF-8 string.
func AppendString(buf []byte, s string) []byte {
	n := len(s)
	switch {
	case n < 0x20:
		buf = append(buf, byte(0xa0|n))
	case n < 0x100:
		buf = append(buf, 0xd9, byte(n))
	case n < 0x10000:
		buf = AppendUint16(append(buf, 0xda), uint16(n))
	default:
		buf = AppendUint32(append(buf, 0xdb), uint32(n))
	}
	return append(buf, s...)
}
