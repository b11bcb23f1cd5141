// Package repl is an interactive inspector of journaled room sessions:
// load a recording, step through its frames and look at the decoded
// state between them.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/colyseus/colyseus-unity-sdk-sub001/journal"
	"github.com/colyseus/colyseus-unity-sdk-sub001/room"
	"github.com/ergochat/readline"
	"github.com/google/uuid"
)

type REPL struct {
	Journal *journal.Journal
	Options statesync.Options
	Out     io.Writer

	rl *readline.Instance

	mu      sync.Mutex
	id      uuid.UUID
	session *room.Session
	frames  [][]byte
	pos     int
}

var ErrNoSession = errors.New("no session loaded, try: sessions, load <id>")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("sessions"),
	readline.PcItem("load"),
	readline.PcItem("step"),
	readline.PcItem("rewind"),
	readline.PcItem("show"),
	readline.PcItem("refs"),
	readline.PcItem("dump"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".statesync_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) out() io.Writer {
	if repl.Out == nil {
		return os.Stdout
	}
	return repl.Out
}

// Loop reads and runs commands until exit or EOF.
func (repl *REPL) Loop() error {
	for {
		line, err := repl.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) != 0 {
				continue
			}
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		err = repl.Run(line)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(repl.out(), "%s\n", err.Error())
		}
	}
}

// Run executes one command line; exit returns io.EOF.
func (repl *REPL) Run(line string) error {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	repl.mu.Lock()
	defer repl.mu.Unlock()
	switch cmd {
	case "help":
		return repl.CommandHelp(arg)
	case "sessions":
		return repl.CommandSessions(arg)
	case "load":
		return repl.CommandLoad(arg)
	case "step":
		return repl.CommandStep(arg)
	case "rewind":
		return repl.CommandRewind(arg)
	case "show", "cat":
		return repl.CommandShow(arg)
	case "refs":
		return repl.CommandRefs(arg)
	case "dump":
		return repl.CommandDump(arg)
	case "exit", "quit":
		return io.EOF
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
}
