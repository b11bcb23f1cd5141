package repl

import (
	"errors"
	"fmt"
	"strconv"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/room"
	"github.com/colyseus/colyseus-unity-sdk-sub001/statesync_errors"
	"github.com/google/uuid"
)

var HelpText = `sessions          list recorded sessions
load <id>         load a session, positioned before its first frame
step [n]          process the next n frames (default 1)
rewind            back to the first frame
show [path]       print the state, or the node at a dotted path
refs              print tracked refIds with refcounts
dump              print state and refs
exit              leave`

var HelpLoad = errors.New("load <session uuid>")
var HelpStep = errors.New("step [n]")

func (repl *REPL) CommandHelp(arg string) error {
	_, _ = fmt.Fprintln(repl.out(), HelpText)
	return nil
}

func (repl *REPL) CommandSessions(arg string) error {
	if repl.Journal == nil {
		return statesync_errors.ErrClosed
	}
	repl.Journal.Dump(repl.out())
	return nil
}

func (repl *REPL) CommandLoad(arg string) error {
	id, err := uuid.Parse(arg)
	if err != nil {
		return HelpLoad
	}
	if repl.Journal == nil {
		return statesync_errors.ErrClosed
	}
	frames, err := repl.Journal.Frames(id)
	if err != nil {
		return err
	}
	repl.id = id
	repl.frames = frames
	if err := repl.reset(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.out(), "session %s: %d frames\n", id, len(frames))
	return nil
}

func (repl *REPL) reset() (err error) {
	repl.pos = 0
	repl.session, err = room.NewSession(room.Config{Options: repl.Options, SessionID: repl.id})
	return
}

func (repl *REPL) CommandRewind(arg string) error {
	if repl.session == nil {
		return ErrNoSession
	}
	return repl.reset()
}

func (repl *REPL) CommandStep(arg string) error {
	if repl.session == nil {
		return ErrNoSession
	}
	n := 1
	if arg != "" {
		var err error
		if n, err = strconv.Atoi(arg); err != nil || n < 1 {
			return HelpStep
		}
	}
	for ; n > 0 && repl.pos < len(repl.frames); n-- {
		frame := repl.frames[repl.pos]
		repl.pos++
		err := repl.session.Process(frame)
		if err != nil {
			_, _ = fmt.Fprintf(repl.out(), "#%d %s: %s\n", repl.pos-1, room.CodeName(frame[0]), err)
			return err
		}
		_, _ = fmt.Fprintf(repl.out(), "#%d %s %d bytes\n", repl.pos-1, room.CodeName(frame[0]), len(frame))
	}
	if repl.pos == len(repl.frames) {
		_, _ = fmt.Fprintf(repl.out(), "end of session, %d frames\n", len(repl.frames))
	}
	return nil
}

func (repl *REPL) decoder() (*statesync.Decoder, error) {
	if repl.session == nil {
		return nil, ErrNoSession
	}
	if d := repl.session.Decoder(); d != nil {
		return d, nil
	}
	return nil, statesync_errors.ErrNoSerializer
}

func (repl *REPL) CommandShow(arg string) error {
	d, err := repl.decoder()
	if err != nil {
		return err
	}
	v, err := statesync.Lookup(d.State(), arg)
	if err != nil {
		return err
	}
	if v.IsRef() {
		statesync.DumpNode(repl.out(), v.Ref())
	} else {
		_, _ = fmt.Fprintln(repl.out(), v.String())
	}
	return nil
}

func (repl *REPL) CommandRefs(arg string) error {
	d, err := repl.decoder()
	if err != nil {
		return err
	}
	d.DumpRefs(repl.out())
	return nil
}

func (repl *REPL) CommandDump(arg string) error {
	d, err := repl.decoder()
	if err != nil {
		return err
	}
	d.DumpAll(repl.out())
	return nil
}
