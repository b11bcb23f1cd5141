package statesync

import (
	"fmt"
	"strings"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/pkg/errors"
)

// The handshake describes the room's types with the state encoding
// itself, as a Reflection tree.
var (
	ReflectionField = schema.MustClass("ReflectionField", nil,
		schema.Field{Index: 0, Name: "name", Type: protocol.String},
		schema.Field{Index: 1, Name: "type", Type: protocol.String},
		schema.Field{Index: 2, Name: "referencedType", Type: protocol.Number},
	)
	ReflectionType = schema.MustClass("ReflectionType", nil,
		schema.Field{Index: 0, Name: "id", Type: protocol.Number},
		schema.Field{Index: 1, Name: "extendsId", Type: protocol.Number},
		schema.Field{Index: 2, Name: "fields", Type: protocol.Array, ChildType: protocol.Ref, Child: ReflectionField},
	)
	Reflection = schema.MustClass("Reflection", nil,
		schema.Field{Index: 0, Name: "types", Type: protocol.Array, ChildType: protocol.Ref, Child: ReflectionType},
		schema.Field{Index: 1, Name: "rootType", Type: protocol.Number},
	)
)

// Handshake is a decoded type context and the class of the root state.
type Handshake struct {
	Context *schema.Context
	Root    *schema.Class
}

// NewDecoder creates a decoder for the described state.
func (h *Handshake) NewDecoder(opts Options) *Decoder {
	return NewDecoder(h.Root, h.Context, opts)
}

// DecodeHandshake builds the classes described by the Reflection tree at
// buf[offset:]. A type's parent fields come first; its own field indexes
// continue after them.
func DecodeHandshake(buf []byte, offset int, log utils.Logger) (*Handshake, error) {
	d := NewDecoder(Reflection, nil, Options{Logger: log})
	if err := d.DecodeAt(buf, offset); err != nil {
		return nil, fmt.Errorf("%w: %w", statesync_errors.ErrBadHandshake, err)
	}
	state := d.State()
	types := state.Get("types").Array()
	if types == nil {
		return nil, errors.Wrap(statesync_errors.ErrBadHandshake, "no types")
	}

	b := builder{
		ctx:   schema.NewContext(),
		types: make(map[int]*schema.Record),
		state: make(map[int]byte),
	}
	for _, v := range types.Values() {
		rt := v.Record()
		if rt == nil {
			continue
		}
		id := int(rt.Get("id").Int())
		b.types[id] = rt
		cls := schema.NewClass(fmt.Sprintf("type%d", id), nil)
		if err := b.ctx.Register(id, cls); err != nil {
			return nil, fmt.Errorf("%w: %w", statesync_errors.ErrBadHandshake, err)
		}
	}
	for id := range b.types {
		if err := b.build(id); err != nil {
			return nil, err
		}
	}

	rootID := 0
	if v := state.Get("rootType"); v.Defined() {
		rootID = int(v.Int())
	}
	root, err := b.ctx.Get(rootID)
	if err != nil {
		return nil, errors.Wrapf(statesync_errors.ErrBadHandshake, "root type %d", rootID)
	}
	return &Handshake{Context: b.ctx, Root: root}, nil
}

const (
	building byte = iota + 1
	built
)

type builder struct {
	ctx   *schema.Context
	types map[int]*schema.Record
	state map[int]byte
}

// build fills the fields of a type, parents first.
func (b *builder) build(id int) error {
	switch b.state[id] {
	case built:
		return nil
	case building:
		return errors.Wrapf(statesync_errors.ErrBadHandshake, "type %d extends itself", id)
	}
	b.state[id] = building
	rt := b.types[id]
	cls, _ := b.ctx.Get(id)

	if ext := rt.Get("extendsId"); ext.Defined() && ext.Int() >= 0 && int(ext.Int()) != id {
		parentID := int(ext.Int())
		if _, ok := b.types[parentID]; ok {
			if err := b.build(parentID); err != nil {
				return err
			}
			parent, _ := b.ctx.Get(parentID)
			if err := cls.Inherit(parent); err != nil {
				return fmt.Errorf("%w: %w", statesync_errors.ErrBadHandshake, err)
			}
		}
	}

	base := cls.Fields().MaxIndex() + 1
	if fields := rt.Get("fields").Array(); fields != nil {
		for i, v := range fields.Values() {
			rf := v.Record()
			if rf == nil {
				continue
			}
			f, err := b.field(base+i, rf)
			if err != nil {
				return fmt.Errorf("%w: type %d: %w", statesync_errors.ErrBadHandshake, id, err)
			}
			if err := cls.AddField(f); err != nil {
				return fmt.Errorf("%w: %w", statesync_errors.ErrBadHandshake, err)
			}
		}
	}
	b.state[id] = built
	return nil
}

// field translates one ReflectionField: "ref", "array", "map" point at
// referencedType, "array:<primitive>" and "map:<primitive>" hold scalars.
func (b *builder) field(index int, rf *schema.Record) (schema.Field, error) {
	f := schema.Field{Index: index, Name: rf.Get("name").Str()}
	kind, elem, hasElem := strings.Cut(rf.Get("type").Str(), ":")
	referenced := func() (*schema.Class, error) {
		ref := rf.Get("referencedType")
		if !ref.Defined() || ref.Int() < 0 {
			return nil, fmt.Errorf("%s has no referenced type", f.Name)
		}
		return b.ctx.Get(int(ref.Int()))
	}
	var err error
	switch kind {
	case "ref":
		f.Type = protocol.Ref
		f.Child, err = referenced()
	case "array", "map":
		f.Type, _ = protocol.ParseType(kind)
		if hasElem {
			f.ChildType, err = protocol.ParseType(elem)
		} else {
			f.ChildType = protocol.Ref
			f.Child, err = referenced()
		}
	default:
		f.Type, err = protocol.ParseType(kind)
	}
	return f, err
}
