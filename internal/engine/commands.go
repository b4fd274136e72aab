package engine

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"vshark/internal/models"
)

// ErrUnknownCommand is returned for commands a remote client may not send.
var ErrUnknownCommand = errors.New("unknown command")

// CommandKind enumerates user commands.
type CommandKind int

const (
	Quit CommandKind = iota
	ToggleSearch
	Clear
	MoveUp
	MoveDown
	AppendChar
	Backspace
	Confirm
	Cancel
)

var commandNames = map[CommandKind]string{
	Quit:         "quit",
	ToggleSearch: "toggle_search",
	Clear:        "clear",
	MoveUp:       "move_up",
	MoveDown:     "move_down",
	AppendChar:   "append",
	Backspace:    "backspace",
	Confirm:      "confirm",
	Cancel:       "cancel",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one discrete user input.
type Command struct {
	Kind CommandKind
	Char rune // AppendChar only
}

// Append returns the command that types r into the search query.
func Append(r rune) Command {
	return Command{Kind: AppendChar, Char: r}
}

// ParseCommand converts a remote command request. Remote clients cannot
// quit the process.
func ParseCommand(req models.CommandRequest) (Command, error) {
	for kind, name := range commandNames {
		if name != req.Command || kind == Quit {
			continue
		}
		if kind != AppendChar {
			return Command{Kind: kind}, nil
		}
		r, size := utf8.DecodeRuneInString(req.Char)
		if size == 0 || r == utf8.RuneError || size != len(req.Char) {
			return Command{}, fmt.Errorf("append needs exactly one character, got %q", req.Char)
		}
		return Append(r), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
}
