package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar.
type Header struct {
	width       int
	specialists int
	version     string
	tokens      int64
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{width: 80}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetInfo sets the version and team size shown on the right.
func (h *Header) SetInfo(version string, specialists int) {
	h.version = version
	h.specialists = specialists
}

// SetTokens sets the total token count shown on the right.
func (h *Header) SetTokens(tokens int64) {
	h.tokens = tokens
}

// View renders the header.
func (h *Header) View() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ECDC4")).
		Bold(true).
		Render("finsight")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render(" financial research team")

	info := ""
	if h.version != "" || h.specialists > 0 {
		text := fmt.Sprintf("%d specialists  v%s", h.specialists, h.version)
		if h.tokens > 0 {
			text = formatTokens(h.tokens) + " tokens  " + text
		}
		info = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render(text)
	}

	left := title + subtitle
	gap := h.width - lipgloss.Width(left) - lipgloss.Width(info) - 2
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Width(h.width).
		Padding(0, 1).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(lipgloss.Color("240")).
		Render(left + lipgloss.NewStyle().Width(gap).Render("") + info)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 2 // title + bottom border
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
