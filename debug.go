package statesync

import (
	"fmt"
	"io"
	"strings"

	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/pkg/errors"
)

// Describe names a node: Class#refId for records, kind#refId(len) for
// collections.
func Describe(node schema.Ref) string {
	switch n := node.(type) {
	case *schema.Record:
		return fmt.Sprintf("%s#%d", n.Class().Name, n.RefID())
	case schema.Collection:
		return fmt.Sprintf("%s#%d(%d)", n.Type(), n.RefID(), n.Len())
	}
	return "?"
}

// DumpAll writes the state tree and the reference counts.
func (d *Decoder) DumpAll(writer io.Writer) {
	d.DumpState(writer)
	fmt.Fprintln(writer, "")
	d.DumpRefs(writer)
}

func (d *Decoder) DumpState(writer io.Writer) {
	DumpNode(writer, d.state)
}

func (d *Decoder) DumpRefs(writer io.Writer) {
	for _, id := range d.refs.IDs() {
		node, _ := d.refs.Get(id)
		fmt.Fprintf(writer, "%s\trefs=%d\tlisteners=%d\n", Describe(node), d.refs.Count(id), d.cb.Listeners(id))
	}
}

// DumpNode writes node and everything reachable from it, one value per
// line. A node met twice is printed once.
func DumpNode(writer io.Writer, node schema.Ref) {
	fmt.Fprintln(writer, Describe(node))
	dumpNode(writer, node, 1, map[int]bool{node.RefID(): true})
}

func dumpNode(writer io.Writer, node schema.Ref, depth int, seen map[int]bool) {
	pad := strings.Repeat("  ", depth)
	line := func(label string, v schema.Value) {
		if !v.IsRef() {
			fmt.Fprintf(writer, "%s%s: %s\n", pad, label, v)
			return
		}
		child := v.Ref()
		fmt.Fprintf(writer, "%s%s: %s\n", pad, label, Describe(child))
		if !seen[child.RefID()] {
			seen[child.RefID()] = true
			dumpNode(writer, child, depth+1, seen)
		}
	}
	switch n := node.(type) {
	case *schema.Record:
		n.ForEach(func(f *schema.Field, v schema.Value) {
			if v.Defined() {
				line(f.Name, v)
			}
		})
	case schema.Collection:
		n.ForEach(func(k schema.Key, v schema.Value) {
			line("["+k.String()+"]", v)
		})
	}
}

// Lookup follows a dotted path of field names and collection keys.
func Lookup(root schema.Ref, path string) (schema.Value, error) {
	cur := schema.RefValue(root)
	path = strings.Trim(path, ".")
	if path == "" {
		return cur, nil
	}
	hops := strings.Split(path, ".")
	for i, hop := range hops {
		var next schema.Value
		switch n := cur.Ref().(type) {
		case *schema.Record:
			if n.Class().FieldByName(hop) == nil {
				return schema.Undefined(), errors.Wrapf(statesync_errors.ErrNotAField, "%s.%s", n.Class().Name, hop)
			}
			next = n.Get(hop)
		case schema.Collection:
			n.ForEach(func(k schema.Key, v schema.Value) {
				if k.String() == hop {
					next = v
				}
			})
		default:
			return schema.Undefined(), errors.Wrapf(statesync_errors.ErrNotAField, "%s is %s", hop, cur)
		}
		if !next.IsRef() && i < len(hops)-1 {
			return schema.Undefined(), errors.Wrapf(statesync_errors.ErrNotAField, "%s is %s", hop, next)
		}
		cur = next
	}
	return cur, nil
}
