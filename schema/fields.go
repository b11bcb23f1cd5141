package schema

// A class contains a number of fields. Each Field has a wire type,
// and ref/collection fields also name the class of their child.
// A class can extend another class: parent fields come first and
// keep their indexes, own fields continue the numbering.
// Field indexes are packed into 6 bits on the wire, so at most 64
// fields per class, inherited ones included.

import (
	"fmt"
	"unicode/utf8"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
)

const MaxFields = 64

type Field struct {
	Index int
	Name  string
	Type  protocol.Type
	// Child is the class of a ref field, or of the elements of a
	// collection of refs.
	Child *Class
	// ChildType is the element tag of a collection field.
	ChildType protocol.Type
}

func (f Field) Valid() bool {
	for _, l := range f.Name { // has unsafe chars
		if l < ' ' {
			return false
		}
	}
	if f.Index < 0 || f.Index >= MaxFields || len(f.Name) == 0 || !utf8.ValidString(f.Name) {
		return false
	}
	switch {
	case f.Type.IsPrimitive():
		return true
	case f.Type == protocol.Ref:
		return f.Child != nil
	case f.Type.IsCollection():
		return f.ChildType.IsPrimitive() || (f.ChildType == protocol.Ref && f.Child != nil)
	}
	return false
}

func (f Field) String() string {
	switch {
	case f.Type == protocol.Ref:
		return fmt.Sprintf("%d:%s ref(%s)", f.Index, f.Name, f.Child.Name)
	case f.Type.IsCollection() && f.ChildType == protocol.Ref:
		return fmt.Sprintf("%d:%s %s(%s)", f.Index, f.Name, f.Type, f.Child.Name)
	case f.Type.IsCollection():
		return fmt.Sprintf("%d:%s %s:%s", f.Index, f.Name, f.Type, f.ChildType)
	}
	return fmt.Sprintf("%d:%s %s", f.Index, f.Name, f.Type)
}

// Fields is a field table indexed by field index; gaps are nil.
type Fields []*Field

func (fs Fields) MaxIndex() (off int) {
	off = -1
	for _, f := range fs {
		if f != nil && f.Index > off {
			off = f.Index
		}
	}
	return
}

func (fs Fields) ByIndex(index int) *Field {
	if index < 0 || index >= len(fs) {
		return nil
	}
	return fs[index]
}

func (fs Fields) FindName(name string) (ndx int) {
	for i := 0; i < len(fs); i++ {
		if fs[i] != nil && fs[i].Name == name {
			return i
		}
	}
	return -1
}
