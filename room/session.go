// Package room speaks the room protocol around the state decoder: the
// join handshake, state frames, user messages and leaving.
//
// Session is the transport independent frame processor, Room puts a
// websocket under it.
package room

import (
	"strconv"
	"sync/atomic"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/protocol"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Frame codes, the first byte of every frame.
const (
	JoinRoom       byte = 10
	Error          byte = 11
	LeaveRoom      byte = 12
	RoomData       byte = 13
	RoomState      byte = 14
	RoomStatePatch byte = 15
	RoomDataSchema byte = 16
	RoomDataBytes  byte = 17
)

// SchemaSerializer is the serializer id of the diff-state encoding.
const SchemaSerializer = "schema"

// Wildcard receives messages no specific handler is registered for.
const Wildcard = "*"

func CodeName(code byte) string {
	switch code {
	case JoinRoom:
		return "join_room"
	case Error:
		return "error"
	case LeaveRoom:
		return "leave_room"
	case RoomData:
		return "room_data"
	case RoomState:
		return "room_state"
	case RoomStatePatch:
		return "room_state_patch"
	case RoomDataSchema:
		return "room_data_schema"
	case RoomDataBytes:
		return "room_data_bytes"
	}
	return "unknown"
}

// Recorder stores inbound frames, see package journal.
type Recorder interface {
	Append(session uuid.UUID, frame []byte) error
}

type (
	MessageHandler func(payload []byte)
	SchemaHandler  func(msg *schema.Record)
	ErrorHandler   func(code int, message string)
)

type Config struct {
	Options statesync.Options
	// Handshakes is shared by sessions; a private one is created if nil.
	Handshakes *statesync.HandshakeCache
	// Recorder, when set, gets every inbound frame.
	Recorder Recorder
	// Send delivers outbound frames; nil drops them (replay).
	Send func(frame []byte) error
	// SessionID identifies the recording; a new one is made if zero.
	SessionID uuid.UUID
}

type Session struct {
	ID                uuid.UUID
	ReconnectionToken string
	SerializerID      string

	opts       statesync.Options
	log        utils.Logger
	handshakes *statesync.HandshakeCache
	recorder   Recorder
	send       func([]byte) error

	decoder *statesync.Decoder
	left    atomic.Bool

	messages *xsync.MapOf[string, MessageHandler]
	schemas  *xsync.MapOf[int, SchemaHandler]
	onError  atomic.Pointer[ErrorHandler]
	onJoin   atomic.Pointer[func(*statesync.Decoder)]
	onLeave  atomic.Pointer[func()]
}

func NewSession(cfg Config) (*Session, error) {
	cfg.Options.SetDefaults()
	if cfg.SessionID == uuid.Nil {
		cfg.SessionID = uuid.New()
	}
	if cfg.Handshakes == nil {
		hc, err := statesync.NewHandshakeCache(cfg.Options.HandshakeCacheSize, cfg.Options.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Handshakes = hc
	}
	return &Session{
		ID:         cfg.SessionID,
		opts:       cfg.Options,
		log:        cfg.Options.Logger.With("session", cfg.SessionID.String()),
		handshakes: cfg.Handshakes,
		recorder:   cfg.Recorder,
		send:       cfg.Send,
		messages:   xsync.NewMapOf[string, MessageHandler](),
		schemas:    xsync.NewMapOf[int, SchemaHandler](),
	}, nil
}

// Decoder is nil until the join handshake arrives.
func (s *Session) Decoder() *statesync.Decoder { return s.decoder }

func (s *Session) Left() bool { return s.left.Load() }

// OnMessage registers the handler of a message type; Wildcard catches
// the rest. Numeric types are registered by their decimal string.
func (s *Session) OnMessage(typ string, fn MessageHandler) {
	s.messages.Store(typ, fn)
}

// OnSchemaMessage registers the handler of typed messages of a class id.
func (s *Session) OnSchemaMessage(typeID int, fn SchemaHandler) {
	s.schemas.Store(typeID, fn)
}

func (s *Session) OnError(fn ErrorHandler) { s.onError.Store(&fn) }

// OnJoin runs once the decoder exists, the place to register callbacks.
func (s *Session) OnJoin(fn func(*statesync.Decoder)) { s.onJoin.Store(&fn) }

func (s *Session) OnLeave(fn func()) { s.onLeave.Store(&fn) }

// Process handles one inbound frame.
func (s *Session) Process(frame []byte) error {
	if len(frame) == 0 {
		return statesync_errors.ErrBadFrame
	}
	code := frame[0]
	FramesReceived.WithLabelValues(CodeName(code)).Inc()
	if s.recorder != nil {
		if err := s.recorder.Append(s.ID, frame); err != nil {
			s.log.Warn("room: cannot record frame", "err", err)
		}
	}

	it := protocol.NewIterator(frame, 1)
	switch code {
	case JoinRoom:
		return s.join(frame, it)
	case Error:
		errCode, err := protocol.DecodeInt(it)
		if err != nil {
			return errors.Wrap(statesync_errors.ErrBadFrame, err.Error())
		}
		msg, _ := protocol.DecodeString(it)
		s.log.Error("room: server error", "code", errCode, "message", msg)
		if fn := s.onError.Load(); fn != nil {
			(*fn)(errCode, msg)
		}
	case LeaveRoom:
		s.left.Store(true)
		if fn := s.onLeave.Load(); fn != nil {
			(*fn)()
		}
	case RoomState, RoomStatePatch:
		if s.decoder == nil {
			return statesync_errors.ErrNoSerializer
		}
		return s.decoder.DecodeAt(frame, 1)
	case RoomData, RoomDataBytes:
		typ, err := decodeType(it)
		if err != nil {
			return err
		}
		s.deliver(typ, frame[it.Offset():])
	case RoomDataSchema:
		return s.schemaMessage(frame, it)
	default:
		return errors.Wrapf(statesync_errors.ErrBadFrame, "code %d", code)
	}
	return nil
}

func (s *Session) join(frame []byte, it *protocol.Iterator) error {
	var err error
	if s.ReconnectionToken, err = protocol.DecodeString(it); err != nil {
		return errors.Wrap(statesync_errors.ErrBadFrame, err.Error())
	}
	if s.SerializerID, err = protocol.DecodeString(it); err != nil {
		return errors.Wrap(statesync_errors.ErrBadFrame, err.Error())
	}
	if s.SerializerID == SchemaSerializer && !it.Done() {
		h, err := s.handshakes.Load(frame, it.Offset())
		if err != nil {
			return err
		}
		s.decoder = h.NewDecoder(s.opts)
		s.log.Info("room: joined", "serializer", s.SerializerID, "types", h.Context.Len(), "root", h.Root.Name)
	} else {
		s.log.Info("room: joined", "serializer", s.SerializerID)
	}
	if err := s.write([]byte{JoinRoom}); err != nil {
		return err
	}
	if fn := s.onJoin.Load(); fn != nil && s.decoder != nil {
		(*fn)(s.decoder)
	}
	return nil
}

func (s *Session) schemaMessage(frame []byte, it *protocol.Iterator) error {
	if s.decoder == nil {
		return statesync_errors.ErrNoSerializer
	}
	typeID, err := protocol.DecodeInt(it)
	if err != nil {
		return errors.Wrap(statesync_errors.ErrBadFrame, err.Error())
	}
	ctx := s.decoder.Context()
	cls, err := ctx.Get(typeID)
	if err != nil {
		return err
	}
	msg := statesync.NewDecoder(cls, ctx, s.opts)
	if err := msg.DecodeAt(frame, it.Offset()); err != nil {
		return err
	}
	if fn, ok := s.schemas.Load(typeID); ok {
		fn(msg.State())
	} else {
		s.log.Warn("room: no handler for schema message", "type", cls.Name)
	}
	return nil
}

func (s *Session) deliver(typ string, payload []byte) {
	if fn, ok := s.messages.Load(typ); ok {
		fn(payload)
		return
	}
	if fn, ok := s.messages.Load(Wildcard); ok {
		fn(payload)
		return
	}
	s.log.Debug("room: unhandled message", "type", typ)
}

func (s *Session) write(frame []byte) error {
	if s.send == nil {
		return nil
	}
	FramesSent.WithLabelValues(CodeName(frame[0])).Inc()
	return s.send(frame)
}

// Send sends a user message of a string or integer type.
func (s *Session) Send(typ any, payload []byte) error {
	frame, err := DataFrame(RoomData, typ, payload)
	if err != nil {
		return err
	}
	return s.write(frame)
}

// SendBytes is Send with the raw bytes frame code.
func (s *Session) SendBytes(typ any, payload []byte) error {
	frame, err := DataFrame(RoomDataBytes, typ, payload)
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (s *Session) Leave() error {
	return s.write([]byte{LeaveRoom})
}

// DataFrame builds [code, type, payload...]; the type is a string or an
// integer.
func DataFrame(code byte, typ any, payload []byte) ([]byte, error) {
	frame := []byte{code}
	switch t := typ.(type) {
	case string:
		frame = protocol.AppendString(frame, t)
	case int:
		frame = protocol.AppendNumber(frame, float64(t))
	default:
		return nil, errors.Wrapf(statesync_errors.ErrBadFrame, "message type %T", typ)
	}
	return append(frame, payload...), nil
}

// decodeType reads a message type, a string or a number.
func decodeType(it *protocol.Iterator) (string, error) {
	if protocol.IsString(it) {
		return protocol.DecodeString(it)
	}
	n, err := protocol.DecodeInt(it)
	if err != nil {
		return "", errors.Wrap(statesync_errors.ErrBadFrame, err.Error())
	}
	return strconv.Itoa(n), nil
}
