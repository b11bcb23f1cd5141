package schema

import (
	"fmt"
	"sort"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
)

// Class is the descriptor of a record type: its field table, built once
// and shared by every instance.
type Class struct {
	ID     int
	Name   string
	Parent *Class

	fields    Fields
	byName    map[string]*Field
	refFields []*Field
}

// NewClass creates a class inheriting every field of parent (may be nil).
func NewClass(name string, parent *Class) *Class {
	c := &Class{
		ID:     -1,
		Name:   name,
		Parent: parent,
		byName: make(map[string]*Field),
	}
	if parent != nil {
		_ = c.Inherit(parent)
	}
	return c
}

// Inherit makes c extend parent and copies the parent fields. Classes
// built from a handshake are created first and linked afterwards, so
// Inherit has to run before c gets fields of its own.
func (c *Class) Inherit(parent *Class) error {
	if parent.IsA(c) {
		return fmt.Errorf("%w: %s extends itself", ErrBadField, c.Name)
	}
	if len(c.byName) > 0 {
		return fmt.Errorf("%w: %s already has fields", ErrBadField, c.Name)
	}
	c.Parent = parent
	for _, f := range parent.fields {
		if f != nil {
			c.put(f)
		}
	}
	return nil
}

// MustClass creates a class from a static field list, panics on a bad table.
func MustClass(name string, parent *Class, fields ...Field) *Class {
	c := NewClass(name, parent)
	for _, f := range fields {
		if err := c.AddField(f); err != nil {
			panic(err)
		}
	}
	return c
}

// AddField appends a field; self-referencing classes add their ref
// fields after creation.
func (c *Class) AddField(f Field) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s.%s", ErrBadField, c.Name, f.Name)
	}
	if c.fields.ByIndex(f.Index) != nil {
		return fmt.Errorf("%w: %s index %d taken", ErrBadField, c.Name, f.Index)
	}
	if _, ok := c.byName[f.Name]; ok {
		return fmt.Errorf("%w: %s.%s declared twice", ErrBadField, c.Name, f.Name)
	}
	field := f
	c.put(&field)
	return nil
}

func (c *Class) put(f *Field) {
	for len(c.fields) <= f.Index {
		c.fields = append(c.fields, nil)
	}
	c.fields[f.Index] = f
	c.byName[f.Name] = f
	if f.Type.IsRef() {
		c.refFields = append(c.refFields, f)
	}
}

func (c *Class) Fields() Fields {
	return c.fields
}

func (c *Class) Field(index int) *Field {
	return c.fields.ByIndex(index)
}

func (c *Class) FieldByName(name string) *Field {
	return c.byName[name]
}

// RefFields lists the fields holding tracked nodes.
func (c *Class) RefFields() []*Field {
	return c.refFields
}

// IsA reports whether c is o or extends it.
func (c *Class) IsA(o *Class) bool {
	for k := c; k != nil; k = k.Parent {
		if k == o {
			return true
		}
	}
	return false
}

// New creates an empty record of this class.
func (c *Class) New(refID int) *Record {
	return &Record{
		class:  c,
		refID:  refID,
		values: make([]Value, len(c.fields)),
	}
}

func (c *Class) String() string {
	return c.Name
}

// Context maps type ids to classes, for polymorphic ref fields.
type Context struct {
	types map[int]*Class
}

func NewContext() *Context {
	return &Context{types: make(map[int]*Class)}
}

// Register binds id to cls and stamps cls.ID.
func (ctx *Context) Register(id int, cls *Class) error {
	if old, ok := ctx.types[id]; ok && old != cls {
		return fmt.Errorf("%w: type id %d taken by %s", ErrBadField, id, old.Name)
	}
	cls.ID = id
	ctx.types[id] = cls
	return nil
}

func (ctx *Context) Get(id int) (*Class, error) {
	cls, ok := ctx.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", statesync_errors.ErrTypeUnknown, id)
	}
	return cls, nil
}

func (ctx *Context) Len() int {
	return len(ctx.types)
}

// Classes lists the registered classes ordered by id.
func (ctx *Context) Classes() []*Class {
	ret := make([]*Class, 0, len(ctx.types))
	for _, cls := range ctx.types {
		ret = append(ret, cls)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// Resolve picks the class of a new child node: an explicit type id
// when present, the declared class otherwise.
func (ctx *Context) Resolve(it *protocol.Iterator, declared *Class) (*Class, error) {
	if !protocol.IsTypeID(it) {
		return declared, nil
	}
	_, _ = it.ReadByte()
	id, err := protocol.DecodeInt(it)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		return nil, fmt.Errorf("%w: %d", statesync_errors.ErrTypeUnknown, id)
	}
	return ctx.Get(id)
}
