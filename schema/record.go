package schema

import (
	"errors"
	"fmt"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
)

var ErrBadField = errors.New("bad field description")

// Ref is a tracked graph node: a *Record, *ArraySchema or *MapSchema.
type Ref interface {
	RefID() int
	// Type is protocol.Ref, protocol.Array or protocol.Map.
	Type() protocol.Type
	node()
}

// Remover is the part of the reference tracker nodes need to release
// their children.
type Remover interface {
	Remove(refID int) bool
}

// Record is a node with a fixed, class-defined field table.
type Record struct {
	class  *Class
	refID  int
	values []Value
}

func (r *Record) node() {}

func (r *Record) RefID() int { return r.refID }

func (r *Record) Type() protocol.Type { return protocol.Ref }

func (r *Record) Class() *Class { return r.class }

func (r *Record) Get(name string) Value {
	f := r.class.FieldByName(name)
	if f == nil {
		return Value{}
	}
	return r.values[f.Index]
}

func (r *Record) GetByIndex(index int) Value {
	if index < 0 || index >= len(r.values) {
		return Value{}
	}
	return r.values[index]
}

func (r *Record) Set(name string, v Value) error {
	f := r.class.FieldByName(name)
	if f == nil {
		return fmt.Errorf("%w: %s.%s", statesync_errors.ErrNotAField, r.class.Name, name)
	}
	return r.set(f, v)
}

func (r *Record) SetByIndex(index int, v Value) error {
	f := r.class.Field(index)
	if f == nil {
		return fmt.Errorf("%w: %s#%d", statesync_errors.ErrNotAField, r.class.Name, index)
	}
	return r.set(f, v)
}

func (r *Record) DeleteByIndex(index int) {
	if index >= 0 && index < len(r.values) {
		r.values[index] = Value{}
	}
}

func (r *Record) set(f *Field, v Value) error {
	if !Assignable(f, v) {
		return fmt.Errorf("%w: %s.%s is %s, got %s",
			statesync_errors.ErrFieldType, r.class.Name, f.Name, f.Type, v.Type())
	}
	r.values[f.Index] = v
	return nil
}

// ForEach visits the declared fields in index order.
func (r *Record) ForEach(fn func(f *Field, v Value)) {
	for _, f := range r.class.fields {
		if f != nil {
			fn(f, r.values[f.Index])
		}
	}
}

// Assignable checks a value against a field declaration.
func Assignable(f *Field, v Value) bool {
	if !v.Defined() {
		return true
	}
	if v.Type() != f.Type {
		return false
	}
	switch f.Type {
	case protocol.Ref:
		rec := v.Record()
		return rec != nil && (f.Child == nil || rec.class.IsA(f.Child))
	case protocol.Array, protocol.Map:
		c := v.Collection()
		return c != nil && (c.ChildType() == protocol.Undefined || c.ChildType() == f.ChildType)
	}
	return true
}
