package engine

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vshark/internal/flow"
	"vshark/internal/models"
	"vshark/internal/parser"
	"vshark/internal/parser/frametest"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestState() *State {
	return NewState(StateOptions{
		HistoryCapacity:  10,
		ActivityInterval: 200 * time.Millisecond,
		ActivityWindow:   5,
	}, t0)
}

var seq uint64

func mkRecord(src, dst string) models.PacketRecord {
	seq++
	return models.PacketRecord{
		Number:  seq,
		SrcAddr: netip.MustParseAddr(src),
		DstAddr: netip.MustParseAddr(dst),
		Length:  60,
		Summary: src + " -> " + dst + " TCP len=60",
		Raw:     []byte{0x45, byte(seq)},
	}
}

func key(a, b string) string {
	return flow.MakeKey(netip.MustParseAddr(a), netip.MustParseAddr(b)).String()
}

func TestStateSingleHTTPSFrame(t *testing.T) {
	frame := frametest.TCP(t, "192.168.1.5", "8.8.8.8", 51000, 443, nil)
	res := parser.NewIPv4Decoder(true).Decode(frame)
	require.Equal(t, parser.Complete, res.Status)

	s := newTestState()
	assert.Equal(t, uint64(1), s.Apply(*res.Record))

	snap := s.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "8.8.8.8 <-> 192.168.1.5", snap.Conversations[0].Key)
	assert.Equal(t, uint64(1), snap.Conversations[0].Packets)
	assert.Equal(t, uint64(1), s.Conversations().Count(flow.KeyOf(*res.Record)))
	require.Len(t, snap.Feed, 1)
	assert.Equal(t, "HTTPS", snap.Feed[0].Protocol)
	assert.Equal(t, -1, snap.SelectedIndex)
	assert.Equal(t, InspectorPlaceholder, snap.Inspector)
}

func TestSelectionWrapsAround(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Apply(mkRecord("10.0.0.3", "10.0.0.4"))
	s.Apply(mkRecord("10.0.0.5", "10.0.0.6"))

	s.Handle(Command{Kind: MoveDown})
	assert.Equal(t, 0, s.Snapshot().SelectedIndex)
	s.Handle(Command{Kind: MoveDown})
	s.Handle(Command{Kind: MoveDown})
	assert.Equal(t, 2, s.Snapshot().SelectedIndex)
	s.Handle(Command{Kind: MoveDown})
	assert.Equal(t, 0, s.Snapshot().SelectedIndex)
	s.Handle(Command{Kind: MoveUp})
	assert.Equal(t, 2, s.Snapshot().SelectedIndex)
	assert.Equal(t, key("10.0.0.5", "10.0.0.6"), s.Snapshot().Selected)
}

func TestSelectionUpFromNothingPicksLast(t *testing.T) {
	s := newTestState()
	s.Handle(Command{Kind: MoveUp})
	assert.Equal(t, -1, s.Snapshot().SelectedIndex)

	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Apply(mkRecord("10.0.0.3", "10.0.0.4"))
	s.Handle(Command{Kind: MoveUp})
	assert.Equal(t, 1, s.Snapshot().SelectedIndex)
}

func TestSelectionStableAcrossNewFlows(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("192.168.1.5", "8.8.8.8"))
	s.Handle(Command{Kind: MoveDown})
	before := s.Snapshot()
	require.Equal(t, 0, before.SelectedIndex)
	want := before.Selected

	// both sort ahead of "8.8.8.8 <-> 192.168.1.5"
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Apply(mkRecord("1.1.1.1", "172.16.0.1"))

	after := s.Snapshot()
	assert.Equal(t, want, after.Selected)
	assert.Equal(t, 2, after.SelectedIndex)
	assert.True(t, after.Conversations[2].Selected)
	assert.Equal(t, want, after.Conversations[after.SelectedIndex].Key)
}

func TestFeedFollowsSelectionBeforeQuery(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Apply(mkRecord("10.0.0.3", "10.0.0.4"))
	s.Apply(mkRecord("10.0.0.2", "10.0.0.1"))

	assert.Len(t, s.Snapshot().Feed, 3)

	s.Handle(Command{Kind: ToggleSearch})
	for _, r := range "0.0.3" {
		s.Handle(Append(r))
	}
	snap := s.Snapshot()
	assert.True(t, snap.Searching)
	assert.Equal(t, "0.0.3", snap.Query)
	require.Len(t, snap.Conversations, 1)
	require.Len(t, snap.Feed, 1)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), snap.Feed[0].SrcAddr)

	s.Handle(Command{Kind: Confirm})
	s.Handle(Command{Kind: MoveDown})
	snap = s.Snapshot()
	assert.False(t, snap.Searching)
	assert.Equal(t, "0.0.3", snap.Query)
	assert.Equal(t, key("10.0.0.3", "10.0.0.4"), snap.Selected)
	assert.Len(t, snap.Feed, 1)
}

func TestSearchEditing(t *testing.T) {
	s := newTestState()
	s.Handle(Command{Kind: ToggleSearch})
	for _, r := range "ab\x01c" {
		s.Handle(Append(r))
	}
	s.Handle(Command{Kind: Backspace})
	assert.Equal(t, "ab", s.Snapshot().Query)

	// navigation and quit are ignored while searching
	assert.False(t, s.Handle(Command{Kind: Quit}))
	s.Handle(Command{Kind: MoveDown})
	sel := s.Selection()
	assert.Equal(t, Searching, sel.Mode())

	s.Handle(Command{Kind: Confirm})
	s.Handle(Command{Kind: ToggleSearch})
	assert.Empty(t, s.Snapshot().Query, "toggling search starts a fresh query")
}

func TestSearchCancelResetsSelectionAndQuery(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Handle(Command{Kind: MoveDown})
	s.Handle(Command{Kind: ToggleSearch})
	s.Handle(Append('x'))
	s.Handle(Command{Kind: Cancel})

	snap := s.Snapshot()
	assert.False(t, snap.Searching)
	assert.Empty(t, snap.Query)
	assert.Empty(t, snap.Selected)
	assert.Equal(t, -1, snap.SelectedIndex)
}

func TestFilteredOutSelectionKeepsIdentity(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Apply(mkRecord("172.16.0.1", "172.16.0.2"))
	s.Handle(Command{Kind: MoveDown})
	s.Handle(Command{Kind: ToggleSearch})
	s.Handle(Append('7'))

	snap := s.Snapshot()
	assert.Equal(t, key("10.0.0.1", "10.0.0.2"), snap.Selected)
	assert.Equal(t, -1, snap.SelectedIndex)
	require.Len(t, snap.Conversations, 1)
}

func TestClearResetsConversationsHistoryAndSelection(t *testing.T) {
	s := newTestState()
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Handle(Command{Kind: MoveDown})
	s.Advance(t0.Add(200 * time.Millisecond))
	require.NotEqual(t, InspectorPlaceholder, s.Snapshot().Inspector)

	s.Handle(Command{Kind: Clear})

	snap := s.Snapshot()
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Feed)
	assert.Empty(t, snap.Selected)
	assert.Equal(t, InspectorPlaceholder, snap.Inspector)
	assert.Equal(t, uint64(1), snap.TotalPackets)
	assert.Equal(t, uint64(1), snap.Activity[len(snap.Activity)-1])
}

func TestQuitWhileBrowsing(t *testing.T) {
	s := newTestState()
	assert.True(t, s.Handle(Command{Kind: Quit}))
}

func TestInspectorTracksLatestRecordOfSelection(t *testing.T) {
	s := newTestState()
	first := mkRecord("10.0.0.1", "10.0.0.2")
	s.Apply(first)
	s.Handle(Command{Kind: MoveDown})
	s.Advance(t0)

	snap := s.Snapshot()
	assert.True(t, strings.HasPrefix(snap.Inspector, first.Summary))
	assert.Contains(t, snap.Inspector, parser.FormatHex(first.Raw))
	assert.Equal(t, first.Number, s.inspectedNum)

	s.Apply(mkRecord("10.0.0.3", "10.0.0.4"))
	s.Advance(t0)
	assert.Equal(t, first.Number, s.inspectedNum)

	second := mkRecord("10.0.0.2", "10.0.0.1")
	s.Apply(second)
	s.Advance(t0)
	assert.Equal(t, second.Number, s.inspectedNum)
	assert.Contains(t, s.Snapshot().Inspector, parser.FormatHex(second.Raw))
}

func TestActivityCountsAppliedRecords(t *testing.T) {
	s := newTestState()
	for i := 0; i < 4; i++ {
		s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	}
	s.Advance(t0.Add(200 * time.Millisecond))
	s.Apply(mkRecord("10.0.0.1", "10.0.0.2"))
	s.Advance(t0.Add(400 * time.Millisecond))

	assert.Equal(t, []uint64{0, 0, 0, 4, 1}, s.Snapshot().Activity)
}

func TestHistoryBoundInSnapshot(t *testing.T) {
	s := newTestState()
	var last uint64
	for i := 0; i < 15; i++ {
		rec := mkRecord("10.0.0.1", "10.0.0.2")
		last = rec.Number
		s.Apply(rec)
	}
	feed := s.Snapshot().Feed
	require.Len(t, feed, 10)
	assert.Equal(t, last, feed[9].Number)
	assert.Equal(t, last-9, feed[0].Number)
	assert.Equal(t, uint64(15), s.Snapshot().Conversations[0].Packets)
}
