package protocol

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"golang.org/x/exp/constraints"
)

// readLE reads a size-byte little-endian body into an integer of type T.
func readLE[T constraints.Integer](it *Iterator, size int) (v T, err error) {
	body, err := it.Take(size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return T(body[0]), nil
	case 2:
		return T(binary.LittleEndian.Uint16(body)), nil
	case 4:
		return T(binary.LittleEndian.Uint32(body)), nil
	default:
		return T(binary.LittleEndian.Uint64(body)), nil
	}
}

func DecodeUint8(it *Iterator) (uint8, error)   { return readLE[uint8](it, 1) }
func DecodeUint16(it *Iterator) (uint16, error) { return readLE[uint16](it, 2) }
func DecodeUint32(it *Iterator) (uint32, error) { return readLE[uint32](it, 4) }
func DecodeUint64(it *Iterator) (uint64, error) { return readLE[uint64](it, 8) }

func DecodeInt8(it *Iterator) (int8, error) {
	u, err := DecodeUint8(it)
	return int8(u), err
}

func DecodeInt16(it *Iterator) (int16, error) {
	u, err := DecodeUint16(it)
	return int16(u), err
}

func DecodeInt32(it *Iterator) (int32, error) {
	u, err := DecodeUint32(it)
	return int32(u), err
}

func DecodeInt64(it *Iterator) (int64, error) {
	u, err := DecodeUint64(it)
	return int64(u), err
}

func DecodeFloat32(it *Iterator) (float32, error) {
	u, err := DecodeUint32(it)
	return math.Float32frombits(u), err
}

func DecodeFloat64(it *Iterator) (float64, error) {
	u, err := DecodeUint64(it)
	return math.Float64frombits(u), err
}

func DecodeBoolean(it *Iterator) (bool, error) {
	u, err := DecodeUint8(it)
	return u > 0, err
}

// DecodeNumber decodes a tagged variable-width number.
func DecodeNumber(it *Iterator) (float64, error) {
	prefix, err := it.ReadByte()
	if err != nil {
		return 0, err
	}
	if prefix < 0x80 {
		return float64(prefix), nil
	}
	switch prefix {
	case 0xca:
		f, err := DecodeFloat32(it)
		return float64(f), err
	case 0xcb:
		return DecodeFloat64(it)
	case 0xcc:
		u, err := DecodeUint8(it)
		return float64(u), err
	case 0xcd:
		u, err := DecodeUint16(it)
		return float64(u), err
	case 0xce:
		u, err := DecodeUint32(it)
		return float64(u), err
	case 0xcf:
		u, err := DecodeUint64(it)
		return float64(u), err
	case 0xd0:
		i, err := DecodeInt8(it)
		return float64(i), err
	case 0xd1:
		i, err := DecodeInt16(it)
		return float64(i), err
	case 0xd2:
		i, err := DecodeInt32(it)
		return float64(i), err
	case 0xd3:
		i, err := DecodeInt64(it)
		return float64(i), err
	}
	if prefix > 0xdf {
		return float64((0xff - int(prefix) + 1) * -1), nil
	}
	return math.NaN(), ErrBadPrefix
}

// DecodeInt decodes a number used as an index, refId or type id.
func DecodeInt(it *Iterator) (int, error) {
	f, err := DecodeNumber(it)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// DecodeString decodes a length-prefixed UTF-8 string.
func DecodeString(it *Iterator) (string, error) {
	prefix, err := it.ReadByte()
	if err != nil {
		return "", err
	}
	var length int
	switch {
	case prefix >= 0xa0 && prefix < 0xc0:
		length = int(prefix & 0x1f)
	case prefix == 0xd9:
		length, err = readLE[int](it, 1)
	case prefix == 0xda:
		length, err = readLE[int](it, 2)
	case prefix == 0xdb:
		length, err = readLE[int](it, 4)
	default:
		return "", ErrBadPrefix
	}
	if err != nil {
		return "", err
	}
	body, err := it.Take(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(body) {
		return string([]rune(string(body))), nil
	}
	return string(body), nil
}

// IsString reports whether the next byte starts a string.
func IsString(it *Iterator) bool {
	b, ok := it.Peek()
	return ok && ((b >= 0xa0 && b < 0xc0) || (b >= 0xd9 && b <= 0xdb))
}

// IsNumber reports whether the next byte starts a number.
func IsNumber(it *Iterator) bool {
	b, ok := it.Peek()
	return ok && (b < 0x80 || (b >= 0xca && b <= 0xd3) || b > 0xdf)
}
