package testutils

import (
	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
)

// Patch builds state messages the way a server would encode them.
type Patch struct {
	buf []byte
}

func NewPatch() *Patch { return &Patch{} }

func (p *Patch) Bytes() []byte { return p.buf }

func (p *Patch) Raw(b ...byte) *Patch {
	p.buf = append(p.buf, b...)
	return p
}

// Switch makes refID the current structure.
func (p *Patch) Switch(refID int) *Patch {
	p.buf = append(p.buf, protocol.SwitchToStructure)
	return p.Number(float64(refID))
}

// Field emits a record operation byte: op in the high bits, index below.
func (p *Patch) Field(op protocol.Operation, index int) *Patch {
	p.buf = append(p.buf, byte(op)|byte(index))
	return p
}

// Item emits a collection operation with its slot index.
func (p *Patch) Item(op protocol.Operation, slot int) *Patch {
	p.buf = append(p.buf, byte(op))
	return p.Number(float64(slot))
}

// Clear empties the current collection.
func (p *Patch) Clear() *Patch {
	p.buf = append(p.buf, byte(protocol.Clear))
	return p
}

// Ref is a refId value; typeID >= 0 adds an explicit concrete type.
func (p *Patch) Ref(refID int, typeID ...int) *Patch {
	p.Number(float64(refID))
	for _, id := range typeID {
		p.buf = append(p.buf, protocol.TypeID)
		p.Number(float64(id))
	}
	return p
}

func (p *Patch) Number(v float64) *Patch {
	p.buf = protocol.AppendNumber(p.buf, v)
	return p
}

func (p *Patch) String(s string) *Patch {
	p.buf = protocol.AppendString(p.buf, s)
	return p
}

func (p *Patch) Bool(b bool) *Patch {
	p.buf = protocol.AppendBoolean(p.buf, b)
	return p
}

func (p *Patch) Int8(v int8) *Patch {
	p.buf = protocol.AppendInt8(p.buf, v)
	return p
}

func (p *Patch) Uint8(v uint8) *Patch {
	p.buf = protocol.AppendUint8(p.buf, v)
	return p
}

func (p *Patch) Int16(v int16) *Patch {
	p.buf = protocol.AppendInt16(p.buf, v)
	return p
}

func (p *Patch) Uint16(v uint16) *Patch {
	p.buf = protocol.AppendUint16(p.buf, v)
	return p
}

func (p *Patch) Int32(v int32) *Patch {
	p.buf = protocol.AppendInt32(p.buf, v)
	return p
}

func (p *Patch) Uint32(v uint32) *Patch {
	p.buf = protocol.AppendUint32(p.buf, v)
	return p
}

func (p *Patch) Int64(v int64) *Patch {
	p.buf = protocol.AppendInt64(p.buf, v)
	return p
}

func (p *Patch) Uint64(v uint64) *Patch {
	p.buf = protocol.AppendUint64(p.buf, v)
	return p
}

func (p *Patch) Float32(v float32) *Patch {
	p.buf = protocol.AppendFloat32(p.buf, v)
	return p
}

func (p *Patch) Float64(v float64) *Patch {
	p.buf = protocol.AppendFloat64(p.buf, v)
	return p
}
