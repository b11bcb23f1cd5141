package room

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/gorilla/websocket"
)

const (
	outboxSize   = 256
	WriteTimeout = 10 * time.Second
)

// Room is a Session over a websocket. Frames are processed on the read
// goroutine with the room lock held; use Sync to look at the state.
type Room struct {
	*Session

	conn   *websocket.Conn
	log    utils.Logger
	mu     sync.Mutex
	outbox chan []byte
	closed atomic.Bool
	done   chan struct{}
	err    error
}

// Dial connects to a room endpoint. Handlers should be registered on
// the returned room before the join frame arrives; the session starts
// reading when Start is called.
func Dial(ctx context.Context, url string, header http.Header, cfg Config) (*Room, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	r := &Room{
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
	cfg.Send = r.enqueue
	if r.Session, err = NewSession(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	r.log = r.Session.log
	r.log.Info("room: connected", "url", url)
	return r, nil
}

// Start runs the read and write loops until the connection ends.
func (r *Room) Start(ctx context.Context) {
	go func() {
		rerr, werr := r.keep(ctx)
		if rerr != nil {
			r.err = rerr
		} else {
			r.err = werr
		}
		close(r.done)
	}()
}

// Done is closed once the connection is over; Err tells why.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Err() error {
	<-r.done
	return r.err
}

// Sync runs fn under the room lock, between frames.
func (r *Room) Sync(fn func(s *Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.Session)
}

func (r *Room) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.conn.Close()
}

func (r *Room) enqueue(frame []byte) error {
	if r.closed.Load() {
		return statesync_errors.ErrClosed
	}
	select {
	case r.outbox <- frame:
		return nil
	default:
		return errors.New("room: outbox is full")
	}
}

func (r *Room) keep(ctx context.Context) (rerr, werr error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() { writeErr <- r.keepWrite(ctx) }()

	rerr = r.keepRead(ctx)
	if r.closed.Load() || websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		rerr = nil
	}
	cancel()
	r.Close()
	werr = <-writeErr
	return
}

func (r *Room) keepRead(ctx context.Context) error {
	for ctx.Err() == nil {
		kind, frame, err := r.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.BinaryMessage || len(frame) == 0 {
			continue
		}
		r.mu.Lock()
		err = r.Process(frame)
		left := r.Left()
		r.mu.Unlock()
		if err != nil {
			FrameErrors.Inc()
			r.log.Error("room: frame failed", "code", CodeName(frame[0]), "err", err)
		}
		if left {
			return nil
		}
	}
	return ctx.Err()
}

func (r *Room) keepWrite(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-r.outbox:
			r.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := r.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				if r.closed.Load() {
					return nil
				}
				return err
			}
		}
	}
}
