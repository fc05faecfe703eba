package cli

import (
	"context"
	"fmt"
	"time"

	"image/color"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	lipgloss "charm.land/lipgloss/v2"

	"github.com/marcus-pm/lenny-cli/internal/costs"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Accent     color.Color
	Success    color.Color
	Error      color.Color
	Hint       color.Color
	FastBorder color.Color
	DeepBorder color.Color
}

var defaultTheme = Theme{
	Accent:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	FastBorder: lipgloss.Color("#00AFAF"), // cyan
	DeepBorder: lipgloss.Color("#5F87FF"), // blue
}

func (t Theme) accentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint)
}

// queryResult delivers the finished query to the progress model.
type queryResult struct {
	answer string
	cost   costs.QueryCost
	err    error
}

// statusMsg updates the progress line, e.g. during rate-limit waits.
type statusMsg string

// queryModel shows a spinner with elapsed time while a query runs. The
// query executes in a tea command; Ctrl+C cancels its context and the
// model waits for the query to unwind so no partial state escapes.
type queryModel struct {
	spin     spinner.Model
	status   string
	start    time.Time
	cancel   context.CancelFunc
	run      func() queryResult
	theme    Theme
	result   *queryResult
	canceled bool
}

func newQueryModel(status string, cancel context.CancelFunc, run func() queryResult) queryModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = defaultTheme.accentStyle()
	return queryModel{
		spin:   sp,
		status: status,
		start:  time.Now(),
		cancel: cancel,
		run:    run,
		theme:  defaultTheme,
	}
}

func (m queryModel) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		func() tea.Msg { return m.run() },
	)
}

func (m queryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			// Cancel and keep spinning until the query goroutine
			// delivers its (canceled) result.
			m.canceled = true
			m.status = "Interrupting..."
			m.cancel()
			return m, nil
		}

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case queryResult:
		m.result = &msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m queryModel) View() tea.View {
	if m.result != nil {
		return tea.NewView("")
	}
	elapsed := time.Since(m.start).Round(time.Second)
	line := fmt.Sprintf("%s %s %s",
		m.spin.View(),
		m.status,
		m.theme.hintStyle().Render(fmt.Sprintf("(%s · Ctrl+C to interrupt)", elapsed)),
	)
	return tea.NewView(line)
}

// runWithProgress executes run under a spinner display. The returned
// error is context.Canceled when the user interrupted. sendStatus
// receives a function that retargets the status line from other
// goroutines; it may be ignored.
func runWithProgress(
	ctx context.Context,
	status string,
	query func(ctx context.Context) (string, costs.QueryCost, error),
	sendStatus func(update func(string)),
) (string, costs.QueryCost, error) {
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newQueryModel(status, cancel, func() queryResult {
		answer, cost, err := query(qctx)
		return queryResult{answer: answer, cost: cost, err: err}
	})
	p := tea.NewProgram(model)
	if sendStatus != nil {
		sendStatus(func(s string) { p.Send(statusMsg(s)) })
	}

	final, err := p.Run()
	if err != nil {
		return "", costs.QueryCost{}, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := final.(queryModel)
	if !ok || m.result == nil {
		return "", costs.QueryCost{}, context.Canceled
	}
	if m.canceled {
		return "", costs.QueryCost{}, context.Canceled
	}
	return m.result.answer, m.result.cost, m.result.err
}
