// Package journal records inbound room frames in a pebble store, so a
// session can be replayed through a fresh decoder later.
//
// Keys are 'J' | session uuid | seq, the sequence big-endian so frames
// iterate in arrival order.
package journal

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const prefix = 'J'

const keyLen = 1 + 16 + 8

var WriteOptions = pebble.WriteOptions{Sync: false}

var AppendedFrames = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "journal",
	Name:      "frames",
})

func Metrics() []prometheus.Collector {
	return []prometheus.Collector{AppendedFrames}
}

type Journal struct {
	db  *pebble.DB
	dir string
	log utils.Logger

	// guards db; readers hold it for the life of their iterator
	mu   sync.RWMutex
	next map[uuid.UUID]uint64
}

func Open(dir string, log utils.Logger) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", dir)
	}
	log.Debug("journal: open", "dir", dir)
	return &Journal{
		db:   db,
		dir:  dir,
		log:  log,
		next: make(map[uuid.UUID]uint64),
	}, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func sessionPrefix(session uuid.UUID) []byte {
	key := make([]byte, 0, keyLen)
	key = append(key, prefix)
	return append(key, session[:]...)
}

func frameKey(session uuid.UUID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(sessionPrefix(session), seq)
}

// upperBound is the first key after every key starting with p.
func upperBound(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// iterLocked opens an iterator over keys starting with lower; the
// caller holds mu.
func (j *Journal) iterLocked(lower []byte) (*pebble.Iterator, error) {
	if j.db == nil {
		return nil, statesync_errors.ErrClosed
	}
	return j.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upperBound(lower),
	})
}

// NewSession allocates a session id for a new recording.
func (j *Journal) NewSession() uuid.UUID {
	return uuid.New()
}

// Append stores the next frame of a session. A session reopened after
// a restart continues after its last stored frame.
func (j *Journal) Append(session uuid.UUID, frame []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return statesync_errors.ErrClosed
	}
	seq, ok := j.next[session]
	if !ok {
		last, found, err := j.last(session)
		if err != nil {
			return err
		}
		if found {
			seq = last + 1
		}
	}
	if err := j.db.Set(frameKey(session, seq), frame, &WriteOptions); err != nil {
		return err
	}
	j.next[session] = seq + 1
	AppendedFrames.Inc()
	return nil
}

func (j *Journal) last(session uuid.UUID) (seq uint64, found bool, err error) {
	it, err := j.iterLocked(sessionPrefix(session))
	if err != nil {
		return 0, false, err
	}
	defer it.Close()
	if !it.Last() {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(it.Key()[17:]), true, nil
}

// Sessions lists the recorded sessions in key order.
func (j *Journal) Sessions() (ids []uuid.UUID, err error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	it, err := j.iterLocked([]byte{prefix})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for valid := it.First(); valid; {
		key := it.Key()
		if len(key) != keyLen {
			valid = it.Next()
			continue
		}
		id, _ := uuid.FromBytes(key[1:17])
		ids = append(ids, id)
		valid = it.SeekGE(upperBound(key[:17]))
	}
	return ids, nil
}

// Replay calls fn with every frame of a session in order; fn must copy
// the frame to keep it and must not Append to or Close the journal.
func (j *Journal) Replay(session uuid.UUID, fn func(seq uint64, frame []byte) error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	it, err := j.iterLocked(sessionPrefix(session))
	if err != nil {
		return err
	}
	defer it.Close()
	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		seq := binary.BigEndian.Uint64(it.Key()[17:])
		if err := fn(seq, it.Value()); err != nil {
			return errors.Wrapf(err, "frame %d", seq)
		}
		n++
	}
	if n == 0 {
		return errors.Wrap(statesync_errors.ErrNoSession, session.String())
	}
	return nil
}

// Frames loads a whole session.
func (j *Journal) Frames(session uuid.UUID) (frames [][]byte, err error) {
	err = j.Replay(session, func(_ uint64, frame []byte) error {
		frames = append(frames, append([]byte(nil), frame...))
		return nil
	})
	return
}

func (j *Journal) Dump(writer io.Writer) {
	ids, err := j.Sessions()
	if err != nil {
		fmt.Fprintf(writer, "journal %s: %s\n", j.dir, err)
		return
	}
	fmt.Fprintf(writer, "journal %s: %d sessions\n", j.dir, len(ids))
	for _, id := range ids {
		n, size := 0, 0
		_ = j.Replay(id, func(_ uint64, frame []byte) error {
			n++
			size += len(frame)
			return nil
		})
		fmt.Fprintf(writer, "%s\t%d frames\t%d bytes\n", id, n, size)
	}
}

// Collector exports the store's own metrics; a closed journal reports
// none.
func (j *Journal) Collector() prometheus.Collector {
	return newPebbleCollector(j)
}

func (j *Journal) metrics() *pebble.Metrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.db == nil {
		return nil
	}
	return j.db.Metrics()
}
