package engine

import (
	"slices"
	"strings"
	"time"

	"vshark/internal/activity"
	"vshark/internal/flow"
	"vshark/internal/history"
	"vshark/internal/models"
	"vshark/internal/parser"
)

// InspectorPlaceholder is shown when no conversation is selected.
const InspectorPlaceholder = "Select a conversation to inspect its latest packet."

// StateOptions sizes the application state.
type StateOptions struct {
	HistoryCapacity  int
	ActivityInterval time.Duration
	ActivityWindow   int
}

// State is the whole application state. It is owned by the foreground loop
// and never touched by the capture worker.
type State struct {
	conversations *flow.Tracker
	history       *history.Buffer
	activity      *activity.Counter
	selection     Selection

	inspector    string
	inspectedNum uint64

	total      uint64
	feedClosed bool
	framer     models.FramerStats
}

// NewState creates an empty state whose activity buckets start at now.
func NewState(opts StateOptions, now time.Time) *State {
	return &State{
		conversations: flow.NewTracker(),
		history:       history.New(opts.HistoryCapacity),
		activity:      activity.NewCounter(opts.ActivityInterval, opts.ActivityWindow, now),
		inspector:     InspectorPlaceholder,
	}
}

// Apply folds one record into the conversations, history and activity.
// It returns the record's new conversation count.
func (s *State) Apply(rec models.PacketRecord) uint64 {
	count := s.conversations.Track(rec)
	s.history.Push(rec)
	s.activity.Observe(1)
	s.total++
	return count
}

// Advance closes elapsed activity buckets and refreshes the inspector.
func (s *State) Advance(now time.Time) {
	s.activity.Advance(now)
	s.refreshInspector()
}

// refreshInspector re-renders the hex dump only when the newest record of
// the selected conversation changed.
func (s *State) refreshInspector() {
	key, ok := s.selection.Selected()
	if !ok {
		s.inspector, s.inspectedNum = InspectorPlaceholder, 0
		return
	}
	rec, ok := s.history.Latest(history.InFlow(key))
	if !ok {
		s.inspector, s.inspectedNum = "No packets of "+key.String()+" in history.", 0
		return
	}
	if rec.Number == s.inspectedNum {
		return
	}
	s.inspectedNum = rec.Number
	s.inspector = rec.Summary + "\n\n" + parser.FormatHex(rec.Raw)
}

// Handle applies a user command and reports whether the user asked to quit.
func (s *State) Handle(cmd Command) (quit bool) {
	if s.selection.Mode() == Searching {
		switch cmd.Kind {
		case AppendChar:
			s.selection.Type(cmd.Char)
		case Backspace:
			s.selection.Backspace()
		case Confirm:
			s.selection.Confirm()
		case Cancel:
			s.selection.Cancel()
		}
		return false
	}

	switch cmd.Kind {
	case Quit:
		return true
	case ToggleSearch:
		s.selection.StartSearch()
	case Clear:
		s.Clear()
	case MoveUp:
		s.selection.Move(s.visibleKeys(), -1)
	case MoveDown:
		s.selection.Move(s.visibleKeys(), 1)
	}
	return false
}

// Clear resets conversations, history and selection together.
func (s *State) Clear() {
	s.conversations.Reset()
	s.history.Reset()
	s.selection.ClearSelection()
	s.inspector, s.inspectedNum = InspectorPlaceholder, 0
}

// visible returns the sorted conversation listing filtered by the search
// query.
func (s *State) visible() []flow.Conversation {
	list := s.conversations.List()
	q := strings.ToLower(s.selection.Query())
	if q == "" {
		return list
	}
	return slices.DeleteFunc(list, func(c flow.Conversation) bool {
		return !strings.Contains(strings.ToLower(c.Name()), q)
	})
}

func (s *State) visibleKeys() []flow.Key {
	list := s.visible()
	keys := make([]flow.Key, len(list))
	for i, c := range list {
		keys[i] = c.Key
	}
	return keys
}

// feedFilter picks the history view: the selected conversation wins over
// the search text.
func (s *State) feedFilter() history.Predicate {
	if key, ok := s.selection.Selected(); ok {
		return history.InFlow(key)
	}
	if q := s.selection.Query(); q != "" {
		return history.MatchesText(q)
	}
	return nil
}

// Snapshot returns a copy of everything a renderer needs.
func (s *State) Snapshot() models.Snapshot {
	list := s.visible()
	snap := models.Snapshot{
		Conversations: make([]models.ConversationEntry, len(list)),
		SelectedIndex: -1,
		Feed:          slices.Collect(s.history.Filtered(s.feedFilter())),
		Inspector:     s.inspector,
		Activity:      s.activity.Series(),
		Searching:     s.selection.Mode() == Searching,
		Query:         s.selection.Query(),
		FeedClosed:    s.feedClosed,
		TotalPackets:  s.total,
		Framer:        s.framer,
	}
	selected, hasSelected := s.selection.Selected()
	if hasSelected {
		snap.Selected = selected.String()
	}
	for i, c := range list {
		entry := models.ConversationEntry{Key: c.Name(), Packets: c.Packets, Bytes: c.Bytes}
		if hasSelected && c.Key == selected {
			entry.Selected = true
			snap.SelectedIndex = i
		}
		snap.Conversations[i] = entry
	}
	return snap
}

// Conversations exposes the aggregator for read-only queries.
func (s *State) Conversations() *flow.Tracker { return s.conversations }

// Selection returns a copy of the selection state.
func (s *State) Selection() Selection { return s.selection }

// MarkFeedClosed records that the capture feed ended.
func (s *State) MarkFeedClosed() { s.feedClosed = true }

// SetFramerStats stores the latest framer counters for snapshots.
func (s *State) SetFramerStats(st models.FramerStats) { s.framer = st }
