package engine

import (
	"unicode"

	"vshark/internal/flow"
)

// Mode is the input mode of the selection state machine.
type Mode int

const (
	Browsing Mode = iota
	Searching
)

func (m Mode) String() string {
	if m == Searching {
		return "searching"
	}
	return "browsing"
}

// Selection tracks the focused conversation by identity and the search
// query.
type Selection struct {
	mode     Mode
	query    []rune
	selected flow.Key
	has      bool
}

// Mode returns the current mode.
func (s *Selection) Mode() Mode { return s.mode }

// Query returns the search text.
func (s *Selection) Query() string { return string(s.query) }

// Selected returns the selected key, if any.
func (s *Selection) Selected() (flow.Key, bool) { return s.selected, s.has }

// Resolve returns the position of the selected key in list, -1 when
// nothing is selected or the key is not listed.
func (s *Selection) Resolve(list []flow.Key) int {
	if !s.has {
		return -1
	}
	for i, k := range list {
		if k == s.selected {
			return i
		}
	}
	return -1
}

// Move shifts the selection by delta over list with wraparound. With no
// resolvable selection, moving down picks the first entry and moving up
// the last.
func (s *Selection) Move(list []flow.Key, delta int) {
	if len(list) == 0 {
		return
	}
	i := s.Resolve(list)
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = len(list) - 1
	default:
		i = ((i+delta)%len(list) + len(list)) % len(list)
	}
	s.selected, s.has = list[i], true
}

// ClearSelection drops the selected key.
func (s *Selection) ClearSelection() {
	s.selected, s.has = flow.Key{}, false
}

// StartSearch enters Searching with an empty query.
func (s *Selection) StartSearch() {
	s.mode = Searching
	s.query = s.query[:0]
}

// Type appends r to the query. Non-printable runes are ignored.
func (s *Selection) Type(r rune) {
	if unicode.IsPrint(r) {
		s.query = append(s.query, r)
	}
}

// Backspace removes the last rune of the query.
func (s *Selection) Backspace() {
	if len(s.query) > 0 {
		s.query = s.query[:len(s.query)-1]
	}
}

// Confirm returns to Browsing and keeps the query as a filter.
func (s *Selection) Confirm() {
	s.mode = Browsing
}

// Cancel returns to Browsing and drops both query and selection.
func (s *Selection) Cancel() {
	s.mode = Browsing
	s.query = s.query[:0]
	s.ClearSelection()
}
