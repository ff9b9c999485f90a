package ui

import (
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

const (
	upperHalfBlock = "▀"
	cellGap        = 2
	nameRows       = 1
)

// gridLayout describes how thumbnails are arranged on screen.
type gridLayout struct {
	thumbWidth int // columns taken by a thumbnail
	thumbRows  int // terminal rows taken by a thumbnail
	columns    int
	rows       int
}

func newGridLayout(thumbWidth, thumbHeight, width, height int) gridLayout {
	g := gridLayout{
		thumbWidth: max(thumbWidth, 1),
		thumbRows:  max((thumbHeight+1)/2, 1),
	}
	g.columns = max(width/g.cellWidth(), 1)
	g.rows = max(height/g.cellHeight(), 1)
	return g
}

func (g gridLayout) cellWidth() int  { return g.thumbWidth + cellGap }
func (g gridLayout) cellHeight() int { return g.thumbRows + nameRows + 1 }
func (g gridLayout) perPage() int    { return g.columns * g.rows }

// renderThumbnail draws img using upper half blocks so each terminal cell
// carries two vertically stacked pixels. The result always has exactly rows
// lines, each width columns wide.
func renderThumbnail(p termenv.Profile, img image.Image, width, rows int) []string {
	if img == nil {
		return blankCell(width, rows)
	}
	lines := make([]string, rows)

	b := img.Bounds()
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		sb.Reset()
		y0 := b.Min.Y + 2*r
		y1 := y0 + 1
		for x := 0; x < width; x++ {
			px := b.Min.X + x
			if px >= b.Max.X || y0 >= b.Max.Y {
				sb.WriteByte(' ')
				continue
			}

			s := p.String(upperHalfBlock).Foreground(pixelColor(p, img, px, y0))
			if y1 < b.Max.Y {
				s = s.Background(pixelColor(p, img, px, y1))
			}
			sb.WriteString(s.String())
		}
		lines[r] = sb.String()
	}
	return lines
}

func pixelColor(p termenv.Profile, img image.Image, x, y int) termenv.Color {
	c := img.At(x, y)
	if _, _, _, a := c.RGBA(); a == 0 {
		return nil
	}
	return p.FromColor(c)
}

func blankCell(width, rows int) []string {
	lines := make([]string, rows)
	for i := range lines {
		lines[i] = strings.Repeat(" ", width)
	}
	return lines
}

// placeholderCell is shown while a thumbnail is loading or failed to load.
func placeholderCell(label string, width, rows int) []string {
	lines := blankCell(width, rows)
	if rows == 0 {
		return lines
	}
	label = runewidth.Truncate(label, width, ellipsis)
	lines[rows/2] = placeholderStyle(runewidth.FillRight(label, width))
	return lines
}

// cellView joins a thumbnail with its caption.
func cellView(thumb []string, name string, selected bool, width int) string {
	name = truncate.StringWithTail(name, uint(max(width, 0)), ellipsis) //nolint:gosec
	name = runewidth.FillRight(name, width)
	if selected {
		name = selectedNameStyle(name)
	} else {
		name = nameStyle(name)
	}

	lines := append(append([]string{}, thumb...), name)
	return strings.Join(lines, "\n")
}

// gridView lays out cells row by row.
func gridView(cells []string, g gridLayout) string {
	if len(cells) == 0 {
		return ""
	}

	gap := strings.Repeat(" ", cellGap)
	var rows []string
	for start := 0; start < len(cells); start += g.columns {
		end := min(start+g.columns, len(cells))
		row := make([]string, 0, 2*(end-start))
		for i, c := range cells[start:end] {
			if i > 0 {
				row = append(row, gap)
			}
			row = append(row, c)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n\n")
}
