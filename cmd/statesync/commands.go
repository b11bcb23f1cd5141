package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/journal"
	"github.com/colyseus/colyseus-unity-sdk-sub001/repl"
	"github.com/colyseus/colyseus-unity-sdk-sub001/room"
	"github.com/colyseus/colyseus-unity-sdk-sub001/schema"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	joinCmd = &cobra.Command{
		Use:   "join [url]",
		Short: "Connect to a room endpoint and keep its state in sync",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runJoin,
	}
	replayCmd = &cobra.Command{
		Use:   "replay [session]",
		Short: "Decode a journaled session and print the final state",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List journaled sessions",
		RunE:  runSessions,
	}
	replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Step through journaled sessions interactively",
		RunE:  runREPL,
	}
)

const leaveTimeout = 2 * time.Second

func openJournal() (*journal.Journal, error) {
	if options.JournalDir == "" {
		return nil, errors.New("no journal directory, use --journal or journal_dir")
	}
	return journal.Open(options.JournalDir, options.Logger)
}

func runJoin(cmd *cobra.Command, args []string) error {
	url := options.Endpoint
	if len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		return errors.New("no endpoint, pass a url or set endpoint")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := room.Config{Options: options}
	var j *journal.Journal
	if options.JournalDir != "" {
		var err error
		if j, err = openJournal(); err != nil {
			return err
		}
		defer j.Close()
		cfg.Recorder = j
		cfg.SessionID = j.NewSession()
	}

	r, err := room.Dial(ctx, url, nil, cfg)
	if err != nil {
		return err
	}
	defer r.Close()
	r.OnError(func(code int, message string) {
		fmt.Fprintf(os.Stderr, "room error %d: %s\n", code, message)
	})
	r.OnJoin(func(d *statesync.Decoder) {
		logChanges(d)
	})
	r.OnLeave(func() {
		options.Logger.Info("left the room", "session", r.ID.String())
	})

	if httpAddr != "" || options.Metrics {
		addr := httpAddr
		if addr == "" {
			addr = ":9090"
		}
		reg := metricsRegistry(j)
		srv := &http.Server{Addr: addr, Handler: repl.NewMux(r, reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				options.Logger.Error("http: serve failed", "addr", addr, "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	r.Start(cmd.Context())
	select {
	case <-r.Done():
	case <-ctx.Done():
		_ = r.Leave()
		select {
		case <-r.Done():
		case <-time.After(leaveTimeout):
			_ = r.Close()
			<-r.Done()
		}
	}
	r.Sync(func(s *room.Session) {
		if d := s.Decoder(); d != nil {
			d.DumpState(os.Stdout)
		}
	})
	return r.Err()
}

// metricsRegistry gathers the decoder and room metrics, and those of the
// journal when one is recording.
func metricsRegistry(j *journal.Journal) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(statesync.Metrics()...)
	reg.MustRegister(room.Metrics()...)
	if j != nil {
		reg.MustRegister(journal.Metrics()...)
		reg.MustRegister(j.Collector())
	}
	return reg
}

// logChanges reports every change of a root field.
func logChanges(d *statesync.Decoder) {
	state := d.State()
	for _, f := range state.Class().Fields() {
		if f == nil {
			continue
		}
		name := f.Name
		d.Callbacks().Listen(state, name, func(cur, prev schema.Value) {
			options.Logger.Info("state: change", "field", name, "value", cur.String(), "previous", prev.String())
		}, false)
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()
	s, err := room.NewSession(room.Config{Options: options, SessionID: id})
	if err != nil {
		return err
	}
	err = j.Replay(id, func(seq uint64, frame []byte) error {
		return s.Process(frame)
	})
	if d := s.Decoder(); d != nil {
		d.DumpAll(os.Stdout)
	}
	return err
}

func runSessions(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()
	j.Dump(os.Stdout)
	return nil
}

func runREPL(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()
	r := &repl.REPL{Journal: j, Options: options}
	if err := r.Open(); err != nil {
		return err
	}
	defer r.Close()
	return r.Loop()
}
