package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const filterAll = "all"

// ActivityEntry is a single line in the activity panel.
type ActivityEntry struct {
	Timestamp time.Time
	Kind      string
	Agent     string // empty for orchestrator-level entries
	Message   string
	Duration  time.Duration
}

// ActivityPanel shows what the team is doing, newest at the bottom.
type ActivityPanel struct {
	entries       []ActivityEntry
	filter        string
	filterOptions []string
	filterIndex   int
	scrollOffset  int
	autoScroll    bool
	width         int
	height        int
	focused       bool
	maxEntries    int

	titleStyle  lipgloss.Style
	filterStyle lipgloss.Style
	timeStyle   lipgloss.Style
	agentStyle  lipgloss.Style
	doneStyle   lipgloss.Style
	warnStyle   lipgloss.Style
	textStyle   lipgloss.Style
}

// NewActivityPanel creates an empty panel.
func NewActivityPanel() *ActivityPanel {
	return &ActivityPanel{
		filter:        filterAll,
		filterOptions: []string{filterAll},
		autoScroll:    true,
		maxEntries:    500,
		width:         40,
		height:        10,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),
		filterStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		timeStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		agentStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		doneStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		warnStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		textStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
}

// Add appends an entry, trimming the oldest beyond the limit.
func (p *ActivityPanel) Add(entry ActivityEntry) {
	p.entries = append(p.entries, entry)
	if len(p.entries) > p.maxEntries {
		p.entries = p.entries[len(p.entries)-p.maxEntries:]
	}
	if entry.Agent != "" {
		p.addFilterOption(entry.Agent)
	}
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// AddEvent records an orchestrator event.
func (p *ActivityPanel) AddEvent(ev OrchestratorEventMsg) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	p.Add(ActivityEntry{
		Timestamp: ts,
		Kind:      ev.Type,
		Agent:     ev.Agent,
		Message:   describeEvent(ev),
		Duration:  ev.Duration,
	})
}

func describeEvent(ev OrchestratorEventMsg) string {
	switch ev.Type {
	case "turn_started":
		return "planning"
	case "plan_parsed":
		return "plan: " + ev.Message
	case "dispatch_started":
		return "working"
	case "dispatch_completed":
		return fmt.Sprintf("done in %s", ev.Duration.Round(time.Millisecond))
	case "agent_not_found":
		return ev.Message
	case "tool_invoked":
		return "tool called"
	case "turn_completed":
		return fmt.Sprintf("answered in %s", ev.Duration.Round(time.Millisecond))
	default:
		return ev.Message
	}
}

func (p *ActivityPanel) addFilterOption(agent string) {
	for _, opt := range p.filterOptions {
		if opt == agent {
			return
		}
	}
	p.filterOptions = append(p.filterOptions, agent)
}

// SetSize updates the panel dimensions.
func (p *ActivityPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// SetFocused sets whether this panel has keyboard focus.
func (p *ActivityPanel) SetFocused(focused bool) {
	p.focused = focused
}

// Update handles navigation keys while focused.
func (p *ActivityPanel) Update(msg tea.Msg) (*ActivityPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	switch key.String() {
	case "up", "k":
		if p.scrollOffset > 0 {
			p.scrollOffset--
			p.autoScroll = false
		}
	case "down", "j":
		if p.scrollOffset < len(p.filtered())-p.visibleLines() {
			p.scrollOffset++
		}
	case "f":
		p.filterIndex = (p.filterIndex + 1) % len(p.filterOptions)
		p.filter = p.filterOptions[p.filterIndex]
		p.scrollToBottom()
	case "G":
		p.autoScroll = true
		p.scrollToBottom()
	}
	return p, nil
}

func (p *ActivityPanel) visibleLines() int {
	lines := p.height - 3 // title and borders
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (p *ActivityPanel) scrollToBottom() {
	p.scrollOffset = len(p.filtered()) - p.visibleLines()
	if p.scrollOffset < 0 {
		p.scrollOffset = 0
	}
}

func (p *ActivityPanel) filtered() []ActivityEntry {
	if p.filter == filterAll {
		return p.entries
	}
	out := make([]ActivityEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.Agent == p.filter {
			out = append(out, e)
		}
	}
	return out
}

// View renders the panel.
func (p *ActivityPanel) View() string {
	var b strings.Builder

	title := "Activity"
	if p.focused {
		title = "[Activity]"
	}
	b.WriteString(p.titleStyle.Render(title))
	b.WriteString(p.filterStyle.Render(fmt.Sprintf("[%s]", p.filter)))
	b.WriteString("\n")

	entries := p.filtered()
	if len(entries) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Render("  Nothing yet"))
	} else {
		end := p.scrollOffset + p.visibleLines()
		if end > len(entries) {
			end = len(entries)
		}
		for i := p.scrollOffset; i < end; i++ {
			b.WriteString(p.renderLine(entries[i]))
			b.WriteString("\n")
		}
	}

	borderColor := lipgloss.Color("240")
	if p.focused {
		borderColor = lipgloss.Color("63")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Width(p.width - 2).
		Height(p.height - 2).
		Render(b.String())
}

func (p *ActivityPanel) renderLine(e ActivityEntry) string {
	parts := []string{p.timeStyle.Render(e.Timestamp.Format("15:04:05"))}
	if e.Agent != "" && p.filter == filterAll {
		parts = append(parts, p.agentStyle.Render("["+e.Agent+"]"))
	}

	style := p.textStyle
	switch e.Kind {
	case "dispatch_completed", "turn_completed":
		style = p.doneStyle
	case "agent_not_found":
		style = p.warnStyle
	}

	maxLen := p.width - 30
	if maxLen < 20 {
		maxLen = 20
	}
	msg := []rune(strings.ReplaceAll(e.Message, "\n", " "))
	if len(msg) > maxLen {
		msg = append(msg[:maxLen-3], []rune("...")...)
	}
	parts = append(parts, style.Render(string(msg)))
	return strings.Join(parts, " ")
}

// Len returns the number of stored entries.
func (p *ActivityPanel) Len() int {
	return len(p.entries)
}

// CurrentFilter returns the active agent filter.
func (p *ActivityPanel) CurrentFilter() string {
	return p.filter
}
