// Package tui is the terminal renderer: a bubbletea program that drives the
// engine's foreground steps on a refresh tick and maps keys to commands.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"vshark/internal/engine"
	"vshark/internal/models"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
)

type tickMsg time.Time

// Options configures the terminal UI.
type Options struct {
	Refresh time.Duration
	Source  string // shown in the header
	Clock   func() time.Time
}

// Model is the bubbletea model. All engine foreground calls happen inside
// Update, which bubbletea runs on a single goroutine.
type Model struct {
	eng    *engine.Engine
	opts   Options
	keys   keyMap
	help   help.Model
	styles styles

	snap     models.Snapshot
	width    int
	height   int
	quitting bool
}

// New creates the model for a started engine.
func New(eng *engine.Engine, opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = 50 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return Model{
		eng:    eng,
		opts:   opts,
		keys:   defaultKeyMap(),
		help:   help.New(),
		styles: defaultStyles(),
		snap:   eng.Snapshot(),
	}
}

// Run shows the UI until the user quits or ctx ends. The engine is stopped
// before Run returns.
func Run(ctx context.Context, eng *engine.Engine, opts Options) error {
	defer eng.Stop()
	p := tea.NewProgram(New(eng, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh tick.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.eng.Drain()
		m.eng.Advance(m.opts.Clock())
		m.snap = m.eng.Snapshot()
		return m, m.tick()

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			return m.quit()
		}
		for _, cmd := range m.commands(msg) {
			if m.eng.Handle(cmd) {
				return m.quit()
			}
		}
		m.snap = m.eng.Snapshot()
		return m, nil
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.eng.Stop()
	return m, tea.Quit
}

// commands maps a key press to engine commands. Pasted text yields one
// command per rune.
func (m Model) commands(msg tea.KeyMsg) []engine.Command {
	if m.snap.Searching {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			return []engine.Command{{Kind: engine.Confirm}}
		case key.Matches(msg, m.keys.Cancel):
			return []engine.Command{{Kind: engine.Cancel}}
		case key.Matches(msg, m.keys.Backspace):
			return []engine.Command{{Kind: engine.Backspace}}
		case msg.Type == tea.KeySpace:
			return []engine.Command{engine.Append(' ')}
		case msg.Type == tea.KeyRunes && !msg.Alt:
			cmds := make([]engine.Command, len(msg.Runes))
			for i, r := range msg.Runes {
				cmds[i] = engine.Append(r)
			}
			return cmds
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return []engine.Command{{Kind: engine.Quit}}
	case key.Matches(msg, m.keys.Search):
		return []engine.Command{{Kind: engine.ToggleSearch}}
	case key.Matches(msg, m.keys.Clear):
		return []engine.Command{{Kind: engine.Clear}}
	case key.Matches(msg, m.keys.Up):
		return []engine.Command{{Kind: engine.MoveUp}}
	case key.Matches(msg, m.keys.Down):
		return []engine.Command{{Kind: engine.MoveDown}}
	}
	return nil
}
