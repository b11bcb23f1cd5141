package repl

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/journal"
	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/room"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	testutils "github.com/colyseus/colyseus-unity-sdk-sub001/test_utils"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func recorded(t *testing.T) (*REPL, *bytes.Buffer, uuid.UUID) {
	log := utils.NewDefaultLogger(slog.LevelError)
	j, err := journal.Open(t.TempDir(), log)
	assert.Nil(t, err)
	t.Cleanup(func() { _ = j.Close() })

	id := j.NewSession()
	frames := [][]byte{
		testutils.NewPatch().Raw(room.JoinRoom).String("tok").String(room.SchemaSerializer).
			Raw(testutils.Reflection(0, testutils.Kennel...)...).Bytes(),
		testutils.NewPatch().Raw(room.RoomState).
			Field(protocol.Replace, 0).String("rex").
			Field(protocol.Replace, 1).Ref(5).
			Switch(5).Item(protocol.Add, 0).String("tom").Ref(6).
			Switch(6).Field(protocol.Replace, 0).String("cat").Bytes(),
		testutils.NewPatch().Raw(room.RoomStatePatch).
			Field(protocol.Replace, 0).String("max").Bytes(),
	}
	for _, f := range frames {
		assert.Nil(t, j.Append(id, f))
	}

	var out bytes.Buffer
	return &REPL{Journal: j, Options: statesync.Options{Logger: log}, Out: &out}, &out, id
}

func TestREPL_Steps(t *testing.T) {
	repl, out, id := recorded(t)

	assert.ErrorIs(t, repl.Run("show"), ErrNoSession)
	assert.Nil(t, repl.Run("sessions"))
	assert.Contains(t, out.String(), id.String()+"\t3 frames")

	assert.Equal(t, HelpLoad, repl.Run("load nonsense"))
	assert.ErrorIs(t, repl.Run("load "+uuid.NewString()), statesync_errors.ErrNoSession)
	assert.Nil(t, repl.Run("load "+id.String()))
	assert.ErrorIs(t, repl.Run("show"), statesync_errors.ErrNoSerializer)

	out.Reset()
	assert.Nil(t, repl.Run("step 2"))
	assert.Contains(t, out.String(), "#0 join_room")
	assert.Contains(t, out.String(), "#1 room_state")

	out.Reset()
	assert.Nil(t, repl.Run("show pets.tom.kind"))
	assert.Equal(t, "\"cat\"\n", out.String())

	out.Reset()
	assert.Nil(t, repl.Run("step"))
	assert.Contains(t, out.String(), "end of session, 3 frames")
	out.Reset()
	assert.Nil(t, repl.Run("show name"))
	assert.Equal(t, "\"max\"\n", out.String())

	assert.Nil(t, repl.Run("rewind"))
	assert.ErrorIs(t, repl.Run("refs"), statesync_errors.ErrNoSerializer)
	assert.Nil(t, repl.Run("step 1"))
	out.Reset()
	assert.Nil(t, repl.Run("refs"))
	assert.Contains(t, out.String(), "refs=1")

	assert.Equal(t, HelpStep, repl.Run("step -1"))
	assert.Equal(t, io.EOF, repl.Run("quit"))
	assert.Error(t, repl.Run("frobnicate"))
	assert.Nil(t, repl.Run("   "))
}

func TestHandlers(t *testing.T) {
	repl, _, id := recorded(t)
	reg := prometheus.NewRegistry()
	reg.MustRegister(room.Metrics()...)
	srv := httptest.NewServer(NewMux(repl, reg))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		assert.Nil(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, _ := get("/state")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	assert.Nil(t, repl.Run("load "+id.String()))
	assert.Nil(t, repl.Run("step 3"))
	code, body := get("/state?path=name")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "\"max\"\n", body)

	code, _ = get("/state?path=nope")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "statesync_room_frames_received")

	resp, err := http.Post(srv.URL+"/state", "text/plain", nil)
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
