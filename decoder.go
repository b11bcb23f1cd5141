// Package statesync mirrors a server-authoritative object graph from the
// diff-state messages of a room.
//
// A Decoder owns the root record, the reference tracker and the callback
// registry. Decode applies one message: every mutation is applied first,
// then the batch of changes is dispatched to callbacks, then nodes left
// without parents are collected.
package statesync

import (
	"time"

	"github.com/colyseus/colyseus-unity-sdk-sub001/callbacks"
	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/refs"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/pkg/errors"
)

// RootRefID is the refId of the root record.
const RootRefID = 0

type Decoder struct {
	opts  Options
	log   utils.Logger
	ctx   *schema.Context
	state *schema.Record
	refs  *refs.Tracker
	cb    *callbacks.Callbacks

	// slots that switched to another node during the current message
	replaced []replacement
}

type replacement struct {
	old   schema.Ref
	to    int
	at    int  // batch position of the slot's change
	fresh bool // to was constructed for this slot
}

// NewDecoder creates a decoder with an empty root of class root. ctx
// resolves explicit type ids and may be nil for monomorphic schemas.
func NewDecoder(root *schema.Class, ctx *schema.Context, opts Options) *Decoder {
	opts.SetDefaults()
	if ctx == nil {
		ctx = schema.NewContext()
	}
	d := &Decoder{
		opts:  opts,
		log:   opts.Logger,
		ctx:   ctx,
		state: root.New(RootRefID),
		refs:  refs.NewTracker(opts.Logger),
	}
	d.refs.Add(RootRefID, d.state, true)
	d.cb = callbacks.New(d.refs, opts.Logger)
	return d
}

func (d *Decoder) State() *schema.Record { return d.state }

func (d *Decoder) Refs() *refs.Tracker { return d.refs }

func (d *Decoder) Callbacks() *callbacks.Callbacks { return d.cb }

func (d *Decoder) Context() *schema.Context { return d.ctx }

func (d *Decoder) Decode(buf []byte) error {
	return d.DecodeAt(buf, 0)
}

// DecodeAt applies the message starting at offset; preceding bytes are
// transport framing. On error the batch is neither dispatched nor
// collected.
func (d *Decoder) DecodeAt(buf []byte, offset int) (err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		DecodedMessages.WithLabelValues(result).Inc()
		DecodeDuration.Observe(float64(time.Since(started).Microseconds()))
	}()

	it := protocol.NewIterator(buf, offset)
	var changes []schema.DataChange
	d.replaced = d.replaced[:0]
	var target schema.Ref = d.state

	for !it.Done() {
		if protocol.IsSwitch(it) {
			_, _ = it.ReadByte()
			refID, err := protocol.DecodeInt(it)
			if err != nil {
				return errors.Wrapf(err, "switch at offset %d", it.Offset())
			}
			node, ok := d.refs.Get(refID)
			if !ok {
				return errors.Wrapf(statesync_errors.ErrRefUnknown, "switch to refId %d", refID)
			}
			target = node
			continue
		}

		at := it.Offset()
		switch node := target.(type) {
		case *schema.Record:
			err = d.decodeField(it, node, &changes)
		case schema.Collection:
			err = d.decodeItem(it, node, &changes)
		}
		if errors.Is(err, statesync_errors.ErrFieldIndex) && d.opts.SkipUnknown() {
			skipped := d.skip(it)
			SkippedBytes.Add(float64(skipped))
			d.log.Warn("decoder: skipped unknown field",
				"refId", target.RefID(), "offset", at, "skipped", skipped)
			err = nil
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "refId %d at offset %d", target.RefID(), at)
		}
	}

	changes = d.settle(changes)
	DecodedBytes.Add(float64(len(buf) - offset))
	EmittedChanges.Add(float64(len(changes)))

	d.cb.Trigger(changes)
	dropped := d.refs.GarbageCollect()
	d.cb.Forget(dropped...)
	CollectedRefs.Add(float64(len(dropped)))
	TrackedRefs.Set(float64(d.refs.Len()))
	if len(dropped) > 0 {
		d.log.Debug("decoder: collected refs", "count", len(dropped))
	}
	return nil
}

// skip moves forward until a SWITCH to a tracked refId, returning the
// number of bytes passed over.
func (d *Decoder) skip(it *protocol.Iterator) int {
	from := it.Offset()
	for !it.Done() {
		if protocol.IsSwitch(it) {
			next := it.Clone()
			_, _ = next.ReadByte()
			if refID, err := protocol.DecodeInt(next); err == nil && d.refs.Has(refID) {
				break
			}
		}
		it.Seek(it.Offset() + 1)
	}
	return it.Offset() - from
}

func (d *Decoder) decodeField(it *protocol.Iterator, rec *schema.Record, changes *[]schema.DataChange) error {
	b, err := it.ReadByte()
	if err != nil {
		return err
	}
	op, index := protocol.SplitRecordOp(b)
	f := rec.Class().Field(index)
	if f == nil {
		return errors.Wrapf(statesync_errors.ErrFieldIndex, "%s#%d", rec.Class().Name, index)
	}

	prev := rec.GetByIndex(index)
	if op == protocol.Delete {
		rec.DeleteByIndex(index)
	}
	value, err := d.decodeValue(it, op, f.Type, f.Child, f.ChildType, prev, changes)
	if err != nil {
		return err
	}
	if value.Defined() {
		if err := rec.SetByIndex(index, value); err != nil {
			return err
		}
	}
	if !value.Same(prev) {
		*changes = append(*changes, schema.DataChange{
			RefID:    rec.RefID(),
			Op:       op,
			Field:    f.Name,
			Index:    index,
			Value:    value,
			Previous: prev,
		})
	}
	return nil
}

func (d *Decoder) decodeItem(it *protocol.Iterator, coll schema.Collection, changes *[]schema.DataChange) error {
	b, err := it.ReadByte()
	if err != nil {
		return err
	}
	op := protocol.Operation(b)
	switch op {
	case protocol.Clear:
		coll.Clear(changes, d.refs)
		return nil
	case protocol.Replace, protocol.Delete, protocol.Add, protocol.DeleteAndAdd:
	default:
		return errors.Wrapf(statesync_errors.ErrBadOperation, "%d on %s", b, coll.Type())
	}

	slot, err := protocol.DecodeInt(it)
	if err != nil {
		return err
	}
	var key schema.Key
	switch {
	case coll.Type() == protocol.Array:
		key = schema.IntKey(slot)
	case op.IsAdd():
		s, err := protocol.DecodeString(it)
		if err != nil {
			return err
		}
		key = schema.StringKey(s)
	default:
		k, ok := coll.KeyAt(slot)
		if !ok && op != protocol.Delete {
			return errors.Wrapf(statesync_errors.ErrFieldIndex, "%s#%d slot %d", coll.Type(), coll.RefID(), slot)
		}
		key = k
	}

	prev := coll.ValueAt(slot)
	if op == protocol.Delete {
		coll.DeleteAt(slot)
	} else if old, ok := coll.KeyAt(slot); ok && op == protocol.DeleteAndAdd && old != key {
		coll.DeleteAt(slot)
	}
	value, err := d.decodeValue(it, op, coll.ChildType(), coll.ChildClass(), protocol.Undefined, prev, changes)
	if err != nil {
		return err
	}
	if value.Defined() {
		elem := schema.Field{Type: coll.ChildType(), Child: coll.ChildClass()}
		if !schema.Assignable(&elem, value) {
			return errors.Wrapf(statesync_errors.ErrFieldType, "%s#%d holds %s, got %s",
				coll.Type(), coll.RefID(), coll.ChildType(), value.Type())
		}
		coll.SetAt(slot, key, value)
	}
	if !value.Same(prev) {
		*changes = append(*changes, schema.DataChange{
			RefID:    coll.RefID(),
			Op:       op,
			Key:      key,
			Index:    slot,
			Value:    value,
			Previous: prev,
		})
	}
	return nil
}

// decodeValue reads the new value of a slot whose previous value is prev,
// keeping the reference counts in step. A DELETE yields undefined.
func (d *Decoder) decodeValue(it *protocol.Iterator, op protocol.Operation, typ protocol.Type,
	child *schema.Class, childType protocol.Type, prev schema.Value, changes *[]schema.DataChange) (schema.Value, error) {

	released := false
	if op.IsDelete() {
		if prev.IsRef() {
			d.refs.Remove(prev.Ref().RefID())
			released = true
		}
		if op == protocol.Delete {
			return schema.Undefined(), nil
		}
	}

	switch {
	case typ == protocol.Ref:
		refID, err := protocol.DecodeInt(it)
		if err != nil {
			return schema.Undefined(), err
		}
		cls, err := d.ctx.Resolve(it, child)
		if err != nil {
			return schema.Undefined(), err
		}
		node, ok := d.refs.Get(refID)
		if !ok {
			if cls == nil {
				return schema.Undefined(), errors.Wrapf(statesync_errors.ErrTypeUnknown, "no class for refId %d", refID)
			}
			node = cls.New(refID)
		}
		d.replace(prev, node, !ok, len(*changes))
		return d.link(node, prev, released), nil

	case typ.IsCollection():
		refID, err := protocol.DecodeInt(it)
		if err != nil {
			return schema.Undefined(), err
		}
		node, ok := d.refs.Get(refID)
		if !ok {
			node = schema.NewCollection(typ, refID, childType, child)
		}
		d.replace(prev, node, !ok, len(*changes))
		return d.link(node, prev, released), nil

	default:
		return schema.DecodePrimitive(typ, it)
	}
}

// replace notes that a slot holding prev now holds node. Whether the
// previous node left the tree is only known once the whole message is
// applied, see settle.
func (d *Decoder) replace(prev schema.Value, node schema.Ref, fresh bool, at int) {
	if prev.IsRef() && prev.Ref() != node {
		d.replaced = append(d.replaced, replacement{old: prev.Ref(), to: node.RefID(), at: at, fresh: fresh})
	}
}

// settle handles the nodes replaced during the message. A node no longer
// referenced by any slot gets one DELETE per entry, placed before the
// change that replaced it, and hands its registrations to the fresh node
// taking its slot. A node still referenced elsewhere keeps both.
func (d *Decoder) settle(changes []schema.DataChange) []schema.DataChange {
	if len(d.replaced) == 0 {
		return changes
	}
	out := make([]schema.DataChange, 0, len(changes))
	next := 0
	done := make(map[int]struct{})
	for _, r := range d.replaced {
		id := r.old.RefID()
		if _, ok := done[id]; ok || d.refs.Count(id) > 0 {
			continue
		}
		done[id] = struct{}{}
		out = append(out, changes[next:r.at]...)
		out = appendRemovals(out, r.old)
		next = r.at
		if r.fresh {
			d.cb.Migrate(id, r.to)
		}
	}
	d.replaced = d.replaced[:0]
	return append(out, changes[next:]...)
}

// appendRemovals emits a DELETE for every defined entry of node.
func appendRemovals(changes []schema.DataChange, node schema.Ref) []schema.DataChange {
	switch n := node.(type) {
	case *schema.Record:
		n.ForEach(func(f *schema.Field, v schema.Value) {
			if v.Defined() {
				changes = append(changes, schema.DataChange{
					RefID:    n.RefID(),
					Op:       protocol.Delete,
					Field:    f.Name,
					Index:    f.Index,
					Previous: v,
				})
			}
		})
	case schema.Collection:
		n.ForEach(func(k schema.Key, v schema.Value) {
			changes = append(changes, schema.DataChange{
				RefID:    n.RefID(),
				Op:       protocol.Delete,
				Key:      k,
				Index:    -1,
				Previous: v,
			})
		})
	}
	return changes
}

// link accounts for node entering a slot that held prev. The previous
// node loses the slot exactly once, either through the DELETE bit
// (released) or here; the new node gains it unless it is the same node
// that was never released.
func (d *Decoder) link(node schema.Ref, prev schema.Value, released bool) schema.Value {
	changed := !prev.IsRef() || prev.Ref() != node
	if changed && prev.IsRef() && !released {
		d.refs.Remove(prev.Ref().RefID())
	}
	d.refs.Add(node.RefID(), node, changed || released)
	return schema.RefValue(node)
}
