package statesync

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	testutils "github.com/colyseus/colyseus-unity-sdk-sub001/test_utils"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/stretchr/testify/assert"
)

var player = schema.MustClass("Player", nil,
	schema.Field{Index: 0, Name: "name", Type: protocol.String},
	schema.Field{Index: 1, Name: "hp", Type: protocol.Number},
)

var boss = schema.MustClass("Boss", player,
	schema.Field{Index: 2, Name: "power", Type: protocol.Number},
)

var game = schema.MustClass("Game", nil,
	schema.Field{Index: 0, Name: "host", Type: protocol.Ref, Child: player},
	schema.Field{Index: 1, Name: "guest", Type: protocol.Ref, Child: player},
	schema.Field{Index: 2, Name: "players", Type: protocol.Map, ChildType: protocol.Ref, Child: player},
	schema.Field{Index: 3, Name: "board", Type: protocol.Array, ChildType: protocol.Number},
	schema.Field{Index: 4, Name: "turn", Type: protocol.Number},
)

func gameContext() *schema.Context {
	ctx := schema.NewContext()
	_ = ctx.Register(0, game)
	_ = ctx.Register(1, player)
	_ = ctx.Register(2, boss)
	return ctx
}

func newGame() (*Decoder, *bytes.Buffer) {
	var out bytes.Buffer
	return NewDecoder(game, gameContext(), Options{Logger: utils.NewWriterLogger(&out, slog.LevelDebug)}), &out
}

// threePlayers fills the map at refId 10 with a, b, c (refIds 11..13).
func threePlayers() []byte {
	return testutils.NewPatch().
		Field(protocol.Replace, 2).Ref(10).
		Switch(10).
		Item(protocol.Add, 0).String("a").Ref(11).
		Item(protocol.Add, 1).String("b").Ref(12).
		Item(protocol.Add, 2).String("c").Ref(13).
		Switch(11).Field(protocol.Replace, 0).String("ann").
		Switch(12).Field(protocol.Replace, 0).String("bob").
		Bytes()
}

func TestDecoder_Primitives(t *testing.T) {
	cls := schema.MustClass("Primitives", nil,
		schema.Field{Index: 0, Name: "int8", Type: protocol.Int8},
		schema.Field{Index: 1, Name: "str", Type: protocol.String},
		schema.Field{Index: 2, Name: "boolean", Type: protocol.Boolean},
	)
	d := NewDecoder(cls, nil, Options{Logger: utils.NewDefaultLogger(slog.LevelError)})
	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Int8(-128).
		Field(protocol.Replace, 1).String("Hello world").
		Field(protocol.Replace, 2).Bool(true)
	assert.Nil(t, d.Decode(patch.Bytes()))

	st := d.State()
	assert.Equal(t, int64(-128), st.Get("int8").Int())
	assert.Equal(t, "Hello world", st.Get("str").Str())
	assert.True(t, st.Get("boolean").Bool())
}

func TestDecoder_DecodeAtSkipsFraming(t *testing.T) {
	d, _ := newGame()
	frame := append([]byte{14}, testutils.NewPatch().Field(protocol.Replace, 4).Number(7).Bytes()...)
	assert.Nil(t, d.DecodeAt(frame, 1))
	assert.Equal(t, 7.0, d.State().Get("turn").Float())
}

func TestDecoder_EmptyPatchFiresNothing(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(threePlayers()))

	fired := 0
	cb := d.Callbacks()
	cb.OnChange(d.State(), func() { fired++ })
	cb.Listen(d.State(), "turn", func(cur, prev schema.Value) { fired++ }, false)
	players := d.State().Get("players").Map()
	cb.OnAdd(players, func(k schema.Key, v schema.Value) { fired++ }, false)
	cb.OnItemRemove(players, func(k schema.Key, v schema.Value) { fired++ })

	var before bytes.Buffer
	d.DumpAll(&before)
	assert.Nil(t, d.Decode(nil))
	assert.Nil(t, d.Decode(testutils.NewPatch().Switch(10).Bytes()))
	assert.Equal(t, 0, fired)

	var after bytes.Buffer
	d.DumpAll(&after)
	assert.Equal(t, before.String(), after.String())
}

func TestDecoder_SharedSiblings(t *testing.T) {
	d, _ := newGame()
	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(5).
		Field(protocol.Replace, 1).Ref(5).
		Switch(5).Field(protocol.Replace, 0).String("ann")
	assert.Nil(t, d.Decode(patch.Bytes()))

	st := d.State()
	assert.Same(t, st.Get("host").Record(), st.Get("guest").Record())
	assert.Equal(t, "ann", st.Get("guest").Record().Get("name").Str())
	assert.Equal(t, 2, d.Refs().Count(5))

	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Delete, 0).Bytes()))
	assert.Equal(t, 1, d.Refs().Count(5))
	assert.True(t, d.Refs().Has(5))
	assert.False(t, st.Get("host").Defined())

	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Delete, 1).Bytes()))
	assert.False(t, d.Refs().Has(5))
	assert.Equal(t, []int{0}, d.Refs().IDs())
}

func TestDecoder_RefcountOnReplace(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Replace, 0).Ref(5).Bytes()))
	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Replace, 0).Ref(6).Bytes()))
	assert.False(t, d.Refs().Has(5))
	assert.Equal(t, 1, d.Refs().Count(6))

	// same node re-stated, with and without the DELETE bit
	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Replace, 0).Ref(6).Bytes()))
	assert.Equal(t, 1, d.Refs().Count(6))
	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.DeleteAndAdd, 0).Ref(6).Bytes()))
	assert.Equal(t, 1, d.Refs().Count(6))

	// moved between siblings in one message
	assert.Nil(t, d.Decode(testutils.NewPatch().
		Field(protocol.Replace, 1).Ref(6).
		Field(protocol.Delete, 0).Bytes()))
	assert.Equal(t, 1, d.Refs().Count(6))
	node, _ := d.Refs().Get(6)
	assert.Equal(t, schema.Ref(d.State().Get("guest").Record()), node)
	assert.False(t, d.State().Get("host").Defined())
}

func TestDecoder_Clear(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(threePlayers()))
	players := d.State().Get("players").Map()
	assert.Equal(t, []string{"a", "b", "c"}, players.Keys())

	var removed []string
	d.Callbacks().OnItemRemove(players, func(k schema.Key, v schema.Value) {
		removed = append(removed, k.String()+"="+v.Record().Get("name").Str())
	})
	assert.Nil(t, d.Decode(testutils.NewPatch().Switch(10).Clear().Bytes()))

	assert.Equal(t, []string{"a=ann", "b=bob", "c="}, removed)
	assert.Equal(t, 0, players.Len())
	assert.Equal(t, []int{0, 10}, d.Refs().IDs())
}

func TestDecoder_ReplacedCollection(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(threePlayers()))
	old := d.State().Get("players").Map()

	var log []string
	cb := d.Callbacks()
	cb.OnItemRemove(old, func(k schema.Key, v schema.Value) { log = append(log, "remove "+k.String()) })
	cb.OnAdd(old, func(k schema.Key, v schema.Value) { log = append(log, "add "+k.String()) }, false)
	cb.Listen(d.State(), "players", func(cur, prev schema.Value) { log = append(log, "players") }, false)

	patch := testutils.NewPatch().
		Field(protocol.Replace, 2).Ref(20).
		Switch(20).Item(protocol.Add, 0).String("z").Ref(21)
	assert.Nil(t, d.Decode(patch.Bytes()))

	assert.Equal(t, []string{"remove a", "remove b", "remove c", "players", "add z"}, log)
	players := d.State().Get("players").Map()
	assert.Equal(t, 20, players.RefID())
	assert.Equal(t, []string{"z"}, players.Keys())
	assert.Equal(t, []int{0, 20, 21}, d.Refs().IDs())
	assert.Equal(t, 0, cb.Listeners(10))
	assert.Equal(t, 2, cb.Listeners(20))
}

func TestDecoder_ReplacedRecord(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(5).
		Switch(5).Field(protocol.Replace, 0).String("ann").Field(protocol.Replace, 1).Number(3).Bytes()))
	old := d.State().Get("host").Record()

	var names [][2]string
	var log []string
	cb := d.Callbacks()
	cb.Listen(old, "name", func(cur, prev schema.Value) { names = append(names, [2]string{cur.Str(), prev.Str()}) }, false)
	cb.Listen(old, "hp", func(cur, prev schema.Value) { log = append(log, "hp "+cur.String()) }, false)
	cb.OnRemove(old, func() { log = append(log, "removed") })
	cb.Listen(d.State(), "host", func(cur, prev schema.Value) { log = append(log, "host") }, false)

	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(6).
		Switch(6).Field(protocol.Replace, 0).String("bob")
	assert.Nil(t, d.Decode(patch.Bytes()))

	assert.Equal(t, []string{"hp undefined", "removed", "host"}, log)
	assert.Equal(t, [][2]string{{"", "ann"}, {"bob", ""}}, names)
	assert.Equal(t, []int{0, 6}, d.Refs().IDs())
	assert.Equal(t, 0, cb.Listeners(5))
	assert.Equal(t, 3, cb.Listeners(6))
	assert.Equal(t, "ann", old.Get("name").Str())
}

func TestDecoder_ReplaceSharedNode(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(5).
		Field(protocol.Replace, 1).Ref(5).
		Switch(5).Field(protocol.Replace, 0).String("ann").Bytes()))
	guest := d.State().Get("guest").Record()

	var names []string
	removed := 0
	cb := d.Callbacks()
	cb.Listen(guest, "name", func(cur, prev schema.Value) { names = append(names, cur.Str()) }, false)
	cb.OnRemove(guest, func() { removed++ })

	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(6).
		Switch(6).Field(protocol.Replace, 0).String("host-only")
	assert.Nil(t, d.Decode(patch.Bytes()))

	assert.Empty(t, names)
	assert.Equal(t, 0, removed)
	assert.Equal(t, "host-only", d.State().Get("host").Record().Get("name").Str())
	assert.Equal(t, "ann", d.State().Get("guest").Record().Get("name").Str())
	assert.Equal(t, 1, d.Refs().Count(5))
	assert.Equal(t, 1, d.Refs().Count(6))
	assert.Equal(t, 2, cb.Listeners(5))
	assert.Equal(t, 0, cb.Listeners(6))

	assert.Nil(t, d.Decode(testutils.NewPatch().Switch(5).Field(protocol.Replace, 0).String("amy").Bytes()))
	assert.Equal(t, []string{"amy"}, names)

	assert.Nil(t, d.Decode(testutils.NewPatch().Field(protocol.Delete, 1).Bytes()))
	assert.Equal(t, 1, removed)
	assert.False(t, d.Refs().Has(5))
}

func TestDecoder_ReplacedNodeReattached(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(5).
		Switch(5).Field(protocol.Replace, 0).String("ann").Bytes()))
	moved := d.State().Get("host").Record()

	var log []string
	cb := d.Callbacks()
	cb.Listen(moved, "name", func(cur, prev schema.Value) { log = append(log, "name "+cur.Str()) }, false)
	cb.OnRemove(moved, func() { log = append(log, "removed") })

	// host gets a new node, the old one moves to guest in the same message
	assert.Nil(t, d.Decode(testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(6).
		Field(protocol.Replace, 1).Ref(5).Bytes()))

	assert.Empty(t, log)
	assert.Same(t, moved, d.State().Get("guest").Record())
	assert.Equal(t, 1, d.Refs().Count(5))
	assert.Equal(t, 2, cb.Listeners(5))
	assert.Equal(t, 0, cb.Listeners(6))
}

func TestDecoder_NestedPathBeforeParent(t *testing.T) {
	d, _ := newGame()
	var got []string
	d.Callbacks().ListenPath(d.State(), "host.name", func(cur, prev schema.Value) {
		got = append(got, cur.Str())
	}, true)

	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(5).
		Switch(5).Field(protocol.Replace, 0).String("ann")
	assert.Nil(t, d.Decode(patch.Bytes()))
	assert.Equal(t, []string{"ann"}, got)

	assert.Nil(t, d.Decode(testutils.NewPatch().Switch(5).Field(protocol.Replace, 1).Number(3).Bytes()))
	assert.Equal(t, []string{"ann"}, got)
}

func TestDecoder_PolymorphicChild(t *testing.T) {
	d, _ := newGame()
	patch := testutils.NewPatch().
		Field(protocol.Replace, 0).Ref(6, 2).
		Switch(6).Field(protocol.Replace, 2).Number(9000)
	assert.Nil(t, d.Decode(patch.Bytes()))

	host := d.State().Get("host").Record()
	assert.Equal(t, boss, host.Class())
	assert.Equal(t, 9000.0, host.Get("power").Float())

	err := d.Decode(testutils.NewPatch().Field(protocol.Replace, 1).Ref(7, 42).Bytes())
	assert.ErrorIs(t, err, statesync_errors.ErrTypeUnknown)
}

func TestDecoder_ArrayOps(t *testing.T) {
	d, _ := newGame()
	patch := testutils.NewPatch().
		Field(protocol.Replace, 3).Ref(30).
		Switch(30).
		Item(protocol.Add, 0).Number(1).
		Item(protocol.Add, 1).Number(2).
		Item(protocol.Add, 2).Number(-3)
	assert.Nil(t, d.Decode(patch.Bytes()))
	board := d.State().Get("board").Array()

	var changed []int
	d.Callbacks().OnItemChange(board, func(k schema.Key, v schema.Value) { changed = append(changed, k.Int()) })

	assert.Nil(t, d.Decode(testutils.NewPatch().Switch(30).
		Item(protocol.Replace, 1).Number(5).
		Item(protocol.Delete, 0).Bytes()))
	assert.Equal(t, []int{1}, changed)
	assert.Equal(t, []schema.Value{schema.NumberValue(5), schema.NumberValue(-3)}, board.Values())
}

func TestDecoder_SchemaSkew(t *testing.T) {
	patch := testutils.NewPatch().
		Field(protocol.Replace, 9).Raw(0xde, 0xad, 0x01).
		Switch(0).Field(protocol.Replace, 4).Number(3)

	d, out := newGame()
	assert.Nil(t, d.Decode(patch.Bytes()))
	assert.Equal(t, 3.0, d.State().Get("turn").Float())
	assert.Contains(t, out.String(), "skipped unknown field")
	assert.Contains(t, out.String(), "skipped=3")

	strict := false
	d = NewDecoder(game, gameContext(), Options{
		SkipUnknownFields: &strict,
		Logger:            utils.NewDefaultLogger(slog.LevelError),
	})
	assert.ErrorIs(t, d.Decode(patch.Bytes()), statesync_errors.ErrFieldIndex)
}

func TestDecoder_UnknownSwitchIsFatal(t *testing.T) {
	d, _ := newGame()
	err := d.Decode(testutils.NewPatch().Switch(99).Field(protocol.Replace, 4).Number(1).Bytes())
	assert.ErrorIs(t, err, statesync_errors.ErrRefUnknown)
	assert.False(t, d.State().Get("turn").Defined())

	err = d.Decode(testutils.NewPatch().Field(protocol.Replace, 4).Raw(0xcb, 1, 2).Bytes())
	assert.ErrorIs(t, err, protocol.ErrIncomplete)
}

func TestDecoder_LookupAndDump(t *testing.T) {
	d, _ := newGame()
	assert.Nil(t, d.Decode(threePlayers()))

	v, err := Lookup(d.State(), "players.b.name")
	assert.Nil(t, err)
	assert.Equal(t, "bob", v.Str())
	_, err = Lookup(d.State(), "nope")
	assert.ErrorIs(t, err, statesync_errors.ErrNotAField)

	var out bytes.Buffer
	d.DumpState(&out)
	assert.Contains(t, out.String(), "Game#0\n")
	assert.Contains(t, out.String(), "  players: map#10(3)\n")
	assert.Contains(t, out.String(), "    [a]: Player#11\n")
	assert.Contains(t, out.String(), "      name: \"ann\"\n")
}

func TestOptions_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statesync.yaml")
	assert.Nil(t, os.WriteFile(path, []byte("log_level: debug\nskip_unknown_fields: false\nendpoint: ws://localhost:2567\n"), 0o600))

	opts, err := LoadOptions(path)
	assert.Nil(t, err)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.False(t, opts.SkipUnknown())
	assert.Equal(t, 16, opts.HandshakeCacheSize)
	assert.Equal(t, "ws://localhost:2567", opts.Endpoint)
	assert.NotNil(t, opts.Logger)

	var empty Options
	empty.SetDefaults()
	assert.True(t, empty.SkipUnknown())
}
