package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vshark/internal/models"
)

const (
	sidebarPercent = 30
	minPanelWidth  = 20
	activityHeight = 3
)

var sparkBars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// tagColors colors feed lines by protocol tag.
var tagColors = map[string]lipgloss.Color{
	"HTTPS": lipgloss.Color("5"),
	"DNS":   lipgloss.Color("4"),
	"SSH":   lipgloss.Color("2"),
}

var otherColor = lipgloss.Color("8")

type styles struct {
	header   lipgloss.Style
	panel    lipgloss.Style
	title    lipgloss.Style
	selected lipgloss.Style
	search   lipgloss.Style
	closed   lipgloss.Style
	spark    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1),
		panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")),
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		search:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		closed:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		spark:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// tagColor returns the feed color for a protocol tag.
func tagColor(tag string) lipgloss.Color {
	if c, ok := tagColors[tag]; ok {
		return c
	}
	return otherColor
}

// View renders the current snapshot.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	w, h := m.width, m.height
	if w <= 0 || h <= 0 {
		w, h = defaultWidth, defaultHeight
	}

	bodyH := max(h-2, 3*activityHeight)
	sideW := max(w*sidebarPercent/100, minPanelWidth)
	mainW := max(w-sideW, minPanelWidth)

	rest := bodyH - activityHeight
	feedH := max(rest/2, 3)
	inspH := max(rest-feedH, 3)

	right := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.box("Packets", feedLines(m.snap.Feed, feedH-3), mainW, feedH),
		m.styles.box("Inspector", strings.Split(strings.TrimRight(m.snap.Inspector, "\n"), "\n"), mainW, inspH),
		m.styles.box("", []string{m.styles.spark.Render(Sparkline(m.snap.Activity, mainW-2))}, mainW, activityHeight),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.box("Conversations", m.styles.sidebarLines(m.snap, bodyH-3), sideW, bodyH),
		right,
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(w), body, m.footerView())
}

func (m Model) headerView(width int) string {
	parts := []string{"vshark"}
	if m.opts.Source != "" {
		parts = append(parts, m.opts.Source)
	}
	parts = append(parts,
		fmt.Sprintf("%d packets", m.snap.TotalPackets),
		fmt.Sprintf("%d conversations", len(m.snap.Conversations)),
	)
	if st := m.snap.Framer; st.Noise > 0 || st.Resyncs > 0 || st.Evicted > 0 {
		parts = append(parts, fmt.Sprintf("noise %d resync %d evicted %d", st.Noise, st.Resyncs, st.Evicted))
	}
	line := m.styles.header.MaxWidth(width).Render(strings.Join(parts, " | "))
	if m.snap.FeedClosed {
		line += " " + m.styles.closed.Render("feed closed")
	}
	return line
}

func (m Model) footerView() string {
	if m.snap.Searching {
		return m.styles.search.Render("/" + m.snap.Query + "█")
	}
	if m.snap.Query != "" {
		return m.styles.search.Render("filter: "+m.snap.Query) + "  " + m.help.View(m.keys)
	}
	return m.help.View(m.keys)
}

// box draws a bordered panel of the given outer size. Lines beyond the
// height are cut, long lines are truncated.
func (s styles) box(title string, lines []string, width, height int) string {
	innerW, innerH := max(width-2, 1), max(height-2, 1)
	body := make([]string, 0, innerH)
	if title != "" {
		body = append(body, s.title.Render(title))
	}
	for _, l := range lines {
		if len(body) == innerH {
			break
		}
		body = append(body, l)
	}
	clip := lipgloss.NewStyle().MaxWidth(innerW)
	for i := range body {
		body[i] = clip.Render(body[i])
	}
	return s.panel.Width(innerW).Height(innerH).Render(strings.Join(body, "\n"))
}

// sidebarLines lists conversations as "[count] key", scrolled so that the
// selected entry stays visible.
func (s styles) sidebarLines(snap models.Snapshot, rows int) []string {
	entries := snap.Conversations
	start := 0
	if rows > 0 && snap.SelectedIndex >= rows {
		start = snap.SelectedIndex - rows + 1
	}
	lines := make([]string, 0, len(entries)-start)
	for _, e := range entries[start:] {
		text := fmt.Sprintf("[%d] %s", e.Packets, e.Key)
		if e.Selected {
			lines = append(lines, s.selected.Render(">> "+text))
		} else {
			lines = append(lines, "   "+text)
		}
	}
	return lines
}

// feedLines renders the newest rows records of the feed, oldest first.
func feedLines(feed []models.PacketRecord, rows int) []string {
	if rows <= 0 {
		return nil
	}
	if len(feed) > rows {
		feed = feed[len(feed)-rows:]
	}
	lines := make([]string, len(feed))
	for i, rec := range feed {
		line := fmt.Sprintf("%6d %s %s", rec.Number, rec.Timestamp.Format("15:04:05.000"), rec.Summary)
		lines[i] = lipgloss.NewStyle().Foreground(tagColor(rec.Protocol)).Render(line)
	}
	return lines
}

// Sparkline renders the newest width values of series as block characters
// scaled to the largest of them. Empty buckets are blank.
func Sparkline(series []uint64, width int) string {
	if width <= 0 || len(series) == 0 {
		return ""
	}
	if len(series) > width {
		series = series[len(series)-width:]
	}
	var peak uint64
	for _, v := range series {
		peak = max(peak, v)
	}
	var sb strings.Builder
	for _, v := range series {
		if v == 0 {
			sb.WriteRune(' ')
			continue
		}
		level := (v*uint64(len(sparkBars)) + peak - 1) / peak
		sb.WriteRune(sparkBars[level-1])
	}
	return sb.String()
}
