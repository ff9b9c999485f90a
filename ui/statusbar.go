package ui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

// tierStatsView summarizes one tier, e.g. "asset 12 · 3.4 MB/256 MB · 87%".
func tierStatsView(label string, s cache.TierStats) string {
	return fmt.Sprintf("%s %d · %s/%s · %.0f%%",
		label,
		s.ItemCount,
		humanize.Bytes(uint64(max(s.Size, 0))), //nolint:gosec
		cache.FormatCapacity(s.Capacity),
		s.HitRate*100,
	)
}

func statsView(s cache.ManagerStats) string {
	return " " + tierStatsView("asset", s.Asset) + " │ " + tierStatsView("fast", s.FastPath) + " "
}

func (m model) statusBarView(b *strings.Builder) {
	showStatusMessage := m.statusMessage != ""

	logo := logoView()
	stats := statusBarStatsStyle(statsView(m.stats))
	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	switch {
	case showStatusMessage:
		note = m.statusMessage
	case m.searching:
		note = m.spinner.View() + " Searching…"
	default:
		note = humanize.Comma(int64(len(m.visible))) + " " + plural(len(m.visible), "image")
		if m.filterApplied() {
			note += " matching " + fmt.Sprintf("%q", m.filterInput.Value())
		}
	}

	// Stats give way to the note on narrow terminals.
	avail := m.common.width - ansi.PrintableRuneWidth(logo) - ansi.PrintableRuneWidth(helpNote)
	if avail-ansi.PrintableRuneWidth(stats) < 20 {
		stats = ""
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, avail-ansi.PrintableRuneWidth(stats))), ellipsis) //nolint:gosec
	if showStatusMessage {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(stats)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		stats,
		helpNote,
	)
}

func (m model) helpView() string {
	keys := [][2]string{
		{"←↑↓→", "move"},
		{"pgup/pgdn", "page"},
		{"/", "filter"},
		{"enter", "info"},
		{"y", "copy path"},
		{"c", "clear cache"},
		{"r", "reload"},
		{"q", "quit"},
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, helpKeyStyle(k[0])+" "+helpDescStyle(k[1]))
	}
	return truncate.StringWithTail(" "+strings.Join(parts, dimStyle(" • ")), uint(max(m.common.width, 0)), ellipsis) //nolint:gosec
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
