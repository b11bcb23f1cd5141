package callbacks

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/refs"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/stretchr/testify/assert"
)

var unit = schema.MustClass("Unit", nil,
	schema.Field{Index: 0, Name: "hp", Type: protocol.Number},
	schema.Field{Index: 1, Name: "name", Type: protocol.String},
)

var world = schema.MustClass("World", nil,
	schema.Field{Index: 0, Name: "hero", Type: protocol.Ref, Child: unit},
	schema.Field{Index: 1, Name: "units", Type: protocol.Map, ChildType: protocol.Ref, Child: unit},
	schema.Field{Index: 2, Name: "turn", Type: protocol.Number},
)

type fixture struct {
	refs *refs.Tracker
	cb   *Callbacks
	out  *bytes.Buffer
	root *schema.Record
}

func newFixture() *fixture {
	var out bytes.Buffer
	log := utils.NewWriterLogger(&out, slog.LevelDebug)
	tr := refs.NewTracker(log)
	root := world.New(0)
	tr.Add(0, root, true)
	return &fixture{refs: tr, cb: New(tr, log), out: &out, root: root}
}

// set assigns a record field and returns the matching change.
func (f *fixture) set(rec *schema.Record, field string, v schema.Value) schema.DataChange {
	prev := rec.Get(field)
	if v.IsRef() {
		f.refs.Add(v.Ref().RefID(), v.Ref(), true)
	}
	if v.Defined() {
		_ = rec.Set(field, v)
	} else {
		rec.DeleteByIndex(rec.Class().FieldByName(field).Index)
	}
	op := protocol.Replace
	if !v.Defined() {
		op = protocol.Delete
	}
	return schema.DataChange{RefID: rec.RefID(), Op: op, Field: field, Value: v, Previous: prev}
}

func (f *fixture) put(coll schema.Collection, op protocol.Operation, slot int, key schema.Key, v schema.Value) schema.DataChange {
	prev := coll.ValueAt(slot)
	if v.IsRef() {
		f.refs.Add(v.Ref().RefID(), v.Ref(), true)
	}
	if op.IsDelete() && !op.IsAdd() {
		coll.DeleteAt(slot)
	} else {
		coll.SetAt(slot, key, v)
	}
	return schema.DataChange{RefID: coll.RefID(), Op: op, Key: key, Index: slot, Value: v, Previous: prev}
}

func TestCallbacks_Listen(t *testing.T) {
	f := newFixture()
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "turn", schema.NumberValue(1))})

	var got [][2]float64
	stop := f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) {
		got = append(got, [2]float64{cur.Float(), prev.Float()})
	}, true)
	assert.Equal(t, [][2]float64{{1, 0}}, got)

	f.cb.Trigger([]schema.DataChange{f.set(f.root, "turn", schema.NumberValue(2))})
	assert.Equal(t, [][2]float64{{1, 0}, {2, 1}}, got)

	stop()
	stop()
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "turn", schema.NumberValue(3))})
	assert.Len(t, got, 2)
	assert.Equal(t, 0, f.cb.Listeners(0))
}

func TestCallbacks_OnChangeOncePerBatch(t *testing.T) {
	f := newFixture()
	hero := unit.New(1)
	calls := 0
	f.cb.OnChange(f.root, func() { calls++ })
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "turn", schema.NumberValue(1)),
		f.set(f.root, "hero", schema.RefValue(hero)),
		f.set(hero, "hp", schema.NumberValue(10)),
	})
	assert.Equal(t, 1, calls)

	f.cb.Trigger(nil)
	assert.Equal(t, 1, calls)
}

func TestCallbacks_CollectionRules(t *testing.T) {
	f := newFixture()
	units := schema.NewMapSchema(2, protocol.Ref, unit)
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "units", schema.RefValue(units))})

	var log []string
	f.cb.OnAdd(units, func(k schema.Key, v schema.Value) { log = append(log, "add "+k.String()) }, false)
	f.cb.OnItemRemove(units, func(k schema.Key, v schema.Value) { log = append(log, "remove "+k.String()) })
	f.cb.OnItemChange(units, func(k schema.Key, v schema.Value) { log = append(log, "change "+k.String()) })

	a, b, c := unit.New(3), unit.New(4), unit.New(5)
	f.cb.Trigger([]schema.DataChange{
		f.put(units, protocol.Add, 0, schema.StringKey("a"), schema.RefValue(a)),
		f.put(units, protocol.Add, 1, schema.StringKey("b"), schema.RefValue(b)),
	})
	assert.Equal(t, []string{"add a", "add b"}, log)

	log = nil
	f.cb.Trigger([]schema.DataChange{
		f.put(units, protocol.DeleteAndAdd, 0, schema.StringKey("a"), schema.RefValue(c)),
		f.put(units, protocol.Delete, 1, schema.StringKey("b"), schema.Undefined()),
		f.put(units, protocol.Delete, 7, schema.StringKey("ghost"), schema.Undefined()),
		f.put(units, protocol.Add, 0, schema.StringKey("a"), schema.RefValue(b)),
	})
	assert.Equal(t, []string{"remove a", "add a", "remove b", "change a"}, log)
}

func TestCallbacks_OldSubtreeFirst(t *testing.T) {
	f := newFixture()
	hero := unit.New(1)
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "hero", schema.RefValue(hero))})

	var order []string
	f.cb.OnRemove(hero, func() { order = append(order, "hero removed") })
	f.cb.Listen(f.root, "hero", func(cur, prev schema.Value) {
		order = append(order, "root.hero "+cur.String())
	}, false)
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "hero", schema.Undefined())})
	assert.Equal(t, []string{"hero removed", "root.hero undefined"}, order)
}

func TestCallbacks_ReplacedNodeRemoved(t *testing.T) {
	f := newFixture()
	h1, h2 := unit.New(1), unit.New(2)
	f.refs.Add(1, h1, true)
	f.refs.Add(2, h2, true)
	removed := 0
	f.cb.OnRemove(h1, func() { removed++ })

	replace := schema.DataChange{RefID: 0, Op: protocol.Replace, Field: "hero",
		Value: schema.RefValue(h2), Previous: schema.RefValue(h1)}
	// h1 is still referenced from another slot
	f.cb.Trigger([]schema.DataChange{replace})
	assert.Equal(t, 0, removed)

	f.refs.Remove(1)
	f.cb.Trigger([]schema.DataChange{replace})
	assert.Equal(t, 1, removed)

	same := schema.DataChange{RefID: 0, Op: protocol.Replace, Field: "hero",
		Value: schema.RefValue(h1), Previous: schema.RefValue(h1)}
	f.cb.Trigger([]schema.DataChange{same})
	assert.Equal(t, 1, removed)
}

func TestCallbacks_RemoveDuringDispatch(t *testing.T) {
	f := newFixture()
	var order []string
	var stopB func()
	f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) {
		order = append(order, "a")
		stopB()
		f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) { order = append(order, "late") }, true)
	}, false)
	stopB = f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) { order = append(order, "b") }, false)

	f.cb.Trigger([]schema.DataChange{f.set(f.root, "turn", schema.NumberValue(1))})
	assert.Equal(t, []string{"a"}, order)
	assert.False(t, f.cb.IsTriggering())
}

func TestCallbacks_PanicIsContained(t *testing.T) {
	f := newFixture()
	called := false
	f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) { panic("boom") }, false)
	f.cb.Listen(f.root, "turn", func(cur, prev schema.Value) { called = true }, false)
	f.cb.Trigger([]schema.DataChange{f.set(f.root, "turn", schema.NumberValue(1))})
	assert.True(t, called)
	assert.Contains(t, f.out.String(), "callback panicked")
	assert.Contains(t, f.out.String(), "boom")
}

func TestCallbacks_MigrateAndForget(t *testing.T) {
	f := newFixture()
	old := unit.New(1)
	var hp []float64
	f.cb.Listen(old, "hp", func(cur, prev schema.Value) { hp = append(hp, cur.Float()) }, false)

	fresh := unit.New(9)
	f.refs.Add(9, fresh, true)
	f.cb.Migrate(1, 9)
	f.cb.Trigger([]schema.DataChange{f.set(fresh, "hp", schema.NumberValue(42))})
	assert.Equal(t, []float64{42}, hp)

	f.cb.Forget(1)
	assert.Equal(t, 1, f.cb.Listeners(9))
	assert.Equal(t, 0, f.cb.Listeners(1))
}

func TestCallbacks_ListenPathReattaches(t *testing.T) {
	f := newFixture()
	var got []string
	f.cb.ListenPath(f.root, "hero.hp", func(cur, prev schema.Value) {
		got = append(got, cur.String()+"<-"+prev.String())
	}, true)
	assert.Empty(t, got)

	h1 := unit.New(1)
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "hero", schema.RefValue(h1)),
		f.set(h1, "hp", schema.NumberValue(10)),
	})
	assert.Equal(t, []string{"10<-undefined"}, got)

	h2 := unit.New(2)
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "hero", schema.RefValue(h2)),
		f.set(h2, "hp", schema.NumberValue(20)),
	})
	assert.Equal(t, []string{"10<-undefined", "20<-undefined"}, got)
	assert.Equal(t, 0, f.cb.Listeners(1))

	f.cb.Trigger([]schema.DataChange{f.set(h1, "hp", schema.NumberValue(5))})
	assert.Len(t, got, 2)
}

func TestCallbacks_ListenPathThroughMap(t *testing.T) {
	f := newFixture()
	units := schema.NewMapSchema(2, protocol.Ref, unit)
	var got []float64
	stop := f.cb.ListenPath(f.root, "units.alice.hp", func(cur, prev schema.Value) {
		got = append(got, cur.Float())
	}, true)

	alice := unit.New(3)
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "units", schema.RefValue(units)),
		f.put(units, protocol.Add, 0, schema.StringKey("bob"), schema.RefValue(unit.New(4))),
		f.put(units, protocol.Add, 1, schema.StringKey("alice"), schema.RefValue(alice)),
		f.set(alice, "hp", schema.NumberValue(7)),
	})
	assert.Equal(t, []float64{7}, got)

	stop()
	assert.Equal(t, 0, f.cb.Listeners(0))
	assert.Equal(t, 0, f.cb.Listeners(2))
	assert.Equal(t, 0, f.cb.Listeners(3))
}

func TestCallbacks_OnAddPathImmediate(t *testing.T) {
	f := newFixture()
	units := schema.NewMapSchema(2, protocol.Ref, unit)
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "units", schema.RefValue(units)),
		f.put(units, protocol.Add, 0, schema.StringKey("bob"), schema.RefValue(unit.New(4))),
	})

	var added, removed []string
	f.cb.OnAddPath(f.root, "units", func(k schema.Key, v schema.Value) { added = append(added, k.String()) }, true)
	f.cb.OnItemRemovePath(f.root, "units", func(k schema.Key, v schema.Value) { removed = append(removed, k.String()) })
	assert.Equal(t, []string{"bob"}, added)

	f.cb.Trigger([]schema.DataChange{
		f.put(units, protocol.Add, 1, schema.StringKey("eve"), schema.RefValue(unit.New(5))),
		f.put(units, protocol.Delete, 0, schema.StringKey("bob"), schema.Undefined()),
	})
	assert.Equal(t, []string{"bob", "eve"}, added)
	assert.Equal(t, []string{"bob"}, removed)
}

func TestCallbacks_BindTo(t *testing.T) {
	f := newFixture()
	hero := unit.New(1)
	f.cb.Trigger([]schema.DataChange{
		f.set(f.root, "hero", schema.RefValue(hero)),
		f.set(hero, "hp", schema.NumberValue(3)),
	})
	view := MapBinder{}
	f.cb.BindTo(hero, view, "hp")
	assert.Equal(t, 3.0, view["hp"].Float())

	f.cb.Trigger([]schema.DataChange{
		f.set(hero, "hp", schema.NumberValue(4)),
		f.set(hero, "name", schema.StringValue("zed")),
	})
	assert.Equal(t, 4.0, view["hp"].Float())
	_, ok := view["name"]
	assert.False(t, ok)
}
