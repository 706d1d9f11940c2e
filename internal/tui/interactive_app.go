package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AskFunc answers one question. It runs off the UI goroutine.
type AskFunc func(question string) string

type exchange struct {
	question string
	answer   string
	pending  bool
}

// InteractiveApp is the main model for interactive mode.
type InteractiveApp struct {
	header     *Header
	transcript viewport.Model
	activity   *ActivityPanel
	inputField *InputField
	spinner    spinner.Model

	exchanges []exchange
	busy      bool
	width     int
	height    int
	quitting  bool

	// inputFocused tracks whether the input field has focus (vs the activity panel)
	inputFocused bool

	onAsk AskFunc

	questionStyle lipgloss.Style
	answerStyle   lipgloss.Style
	dimStyle      lipgloss.Style
}

// NewInteractiveApp creates a new InteractiveApp.
func NewInteractiveApp() *InteractiveApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))

	return &InteractiveApp{
		header:       NewHeader(),
		transcript:   viewport.New(80, 20),
		activity:     NewActivityPanel(),
		inputField:   NewInputField(),
		spinner:      sp,
		inputFocused: true,

		questionStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		answerStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		dimStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
	}
}

// SetAskHandler sets the function that answers submitted questions.
func (a *InteractiveApp) SetAskHandler(handler AskFunc) {
	a.onAsk = handler
}

// SetInfo sets the version and team size shown in the header.
func (a *InteractiveApp) SetInfo(version string, specialists int) {
	a.header.SetInfo(version, specialists)
}

// Busy reports whether a question is being answered.
func (a *InteractiveApp) Busy() bool {
	return a.busy
}

// Init implements tea.Model.
func (a *InteractiveApp) Init() tea.Cmd {
	return tea.Batch(a.inputField.Focus(), a.spinner.Tick)
}

// Update implements tea.Model.
func (a *InteractiveApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateSizes()
		return a, nil

	case QuestionSubmittedMsg:
		return a, a.ask(msg.Question)

	case AnswerMsg:
		a.busy = false
		for i := len(a.exchanges) - 1; i >= 0; i-- {
			if a.exchanges[i].pending {
				a.exchanges[i].answer = msg.Answer
				a.exchanges[i].pending = false
				break
			}
		}
		a.refreshTranscript()
		return a, nil

	case OrchestratorEventMsg:
		a.activity.AddEvent(msg)
		return a, nil

	case UsageMsg:
		a.header.SetTokens(msg.InputTokens + msg.OutputTokens)
		return a, nil

	case DebugLogMsg:
		a.activity.Add(ActivityEntry{Timestamp: time.Now(), Message: msg.Message})
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.busy {
			a.refreshTranscript()
		}
		return a, cmd
	}

	return a, nil
}

func (a *InteractiveApp) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		a.quitting = true
		return a, tea.Quit

	case "tab", "shift+tab":
		a.inputFocused = !a.inputFocused
		a.activity.SetFocused(!a.inputFocused)
		if a.inputFocused {
			return a, a.inputField.Focus()
		}
		a.inputField.Blur()
		return a, nil

	case "esc":
		if !a.inputFocused {
			a.inputFocused = true
			a.activity.SetFocused(false)
			return a, a.inputField.Focus()
		}
		return a, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.transcript, cmd = a.transcript.Update(msg)
		return a, cmd
	}

	if a.inputFocused {
		var cmd tea.Cmd
		a.inputField, cmd = a.inputField.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.activity, cmd = a.activity.Update(msg)
	return a, cmd
}

// ask starts answering question unless a turn is already running.
func (a *InteractiveApp) ask(question string) tea.Cmd {
	if a.busy {
		a.activity.Add(ActivityEntry{Timestamp: time.Now(), Message: "still working on the previous question"})
		return nil
	}
	if a.onAsk == nil {
		a.activity.Add(ActivityEntry{Timestamp: time.Now(), Message: "no answer handler configured"})
		return nil
	}

	a.busy = true
	a.exchanges = append(a.exchanges, exchange{question: question, pending: true})
	a.refreshTranscript()

	handler := a.onAsk
	return func() tea.Msg {
		start := time.Now()
		answer := handler(question)
		return AnswerMsg{Question: question, Answer: answer, Duration: time.Since(start)}
	}
}

func (a *InteractiveApp) refreshTranscript() {
	var b strings.Builder
	if len(a.exchanges) == 0 {
		b.WriteString(a.dimStyle.Render("Ask something like \"How is AAPL doing?\""))
	}
	wrap := lipgloss.NewStyle().Width(max(a.transcript.Width-2, 20))
	for i, ex := range a.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(a.questionStyle.Render("You: "))
		b.WriteString(ex.question)
		b.WriteString("\n")
		if ex.pending {
			b.WriteString(a.spinner.View() + a.dimStyle.Render(" the team is researching..."))
			continue
		}
		b.WriteString(wrap.Render(a.answerStyle.Render(ex.answer)))
	}
	a.transcript.SetContent(b.String())
	a.transcript.GotoBottom()
}

// updateSizes lays out header, transcript, activity and input.
func (a *InteractiveApp) updateSizes() {
	const inputHeight = 3

	a.header.SetWidth(a.width)
	a.inputField.SetWidth(a.width)

	body := a.height - a.header.Height() - inputHeight
	if body < 4 {
		body = 4
	}

	activityWidth := a.width / 3
	if activityWidth < 30 {
		activityWidth = 30
	}
	transcriptWidth := a.width - activityWidth
	if transcriptWidth < 20 {
		transcriptWidth = 20
	}

	a.transcript.Width = transcriptWidth
	a.transcript.Height = body
	a.activity.SetSize(activityWidth, body)
	a.refreshTranscript()
}

// View implements tea.Model.
func (a *InteractiveApp) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, a.transcript.View(), a.activity.View())
	return lipgloss.JoinVertical(lipgloss.Left, a.header.View(), body, a.inputField.View())
}

// NewInteractiveProgram creates a new Bubbletea program for interactive mode.
func NewInteractiveProgram() (*tea.Program, *InteractiveApp) {
	app := NewInteractiveApp()
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
