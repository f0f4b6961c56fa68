package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#50FA7B")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

const maxMessages = 5

type (
	phaseMsg    string
	progressMsg float64
	logMsg      string
	benchDone   struct {
		result benchResult
		err    error
	}
)

// benchModel draws the bench run: a spinner and progress bar while it runs,
// the result box once it is done.
type benchModel struct {
	spinner  spinner.Model
	progress progress.Model
	cancel   func()

	phase    string
	percent  float64
	messages []string
	result   *benchResult
	err      error
}

func newBenchModel(cancel func()) benchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	return benchModel{
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		cancel:   cancel,
		phase:    "Preparing",
	}
}

func (m benchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m benchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = max(msg.Width-10, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case phaseMsg:
		m.phase = string(msg)
		m.percent = 0
		return m, m.progress.SetPercent(0)

	case progressMsg:
		m.percent = float64(msg)
		return m, m.progress.SetPercent(m.percent)

	case logMsg:
		m.messages = append(m.messages, string(msg))
		if len(m.messages) > maxMessages {
			m.messages = m.messages[1:]
		}
		return m, nil

	case benchDone:
		if msg.err != nil {
			m.err = msg.err
		} else {
			r := msg.result
			m.result = &r
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m benchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Porto climate map: viewport bench"))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
		return b.String()
	case m.result != nil:
		b.WriteString(renderBenchResult(*m.result))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(subtitleStyle.Render(m.phase))
	b.WriteString("\n\n")
	b.WriteString(m.spinner.View() + " " + m.phase + "...\n\n")
	b.WriteString(m.progress.ViewAs(m.percent))
	if len(m.messages) > 0 {
		b.WriteString("\n\n")
		for _, msg := range m.messages {
			b.WriteString(dimStyle.Render("• " + msg))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Press 'q' to quit"))
	return b.String()
}

func renderBenchResult(r benchResult) string {
	content := fmt.Sprintf(
		"✓ Sensors indexed: %s in %s\n"+
			"✓ Total queries: %s\n"+
			"✓ Total time: %s\n"+
			"✓ Queries per second: %s\n"+
			"✓ Average query time: %s\n"+
			"✓ Average sensors per viewport: %s",
		statStyle.Render(fmt.Sprintf("%d", r.Sensors)),
		statStyle.Render(r.LoadTime.Round(time.Microsecond).String()),
		statStyle.Render(fmt.Sprintf("%d", r.Queries)),
		statStyle.Render(r.Elapsed.Round(time.Microsecond).String()),
		statStyle.Render(fmt.Sprintf("%.0f", r.QueriesPerSecond())),
		statStyle.Render(r.AverageQuery().String()),
		statStyle.Render(fmt.Sprintf("%.1f", r.PerViewport())),
	)
	return boxStyle.Render(successStyle.Render("Viewport Benchmark Results") + "\n\n" + content)
}

// renderSceneSummary counts what a snapshot put on the map.
func renderSceneSummary(scene canvas.Scene) string {
	var markers, polygons, heat int
	for _, o := range scene.Overlays {
		switch o.Kind {
		case canvas.KindMarkers:
			markers += len(o.Markers)
		case canvas.KindPolygons:
			polygons += len(o.Polygons)
		case canvas.KindHeat:
			if o.Heat != nil {
				heat += len(o.Heat.Points)
			}
		}
	}
	content := fmt.Sprintf(
		"Sensors: %s\nGreen zones: %s\nHeat points: %s\nWidgets: %s",
		statStyle.Render(fmt.Sprintf("%d", markers)),
		statStyle.Render(fmt.Sprintf("%d", polygons)),
		statStyle.Render(fmt.Sprintf("%d", heat)),
		statStyle.Render(fmt.Sprintf("%d", len(scene.Widgets))),
	)
	return boxStyle.Render(subtitleStyle.Render("Snapshot") + "\n\n" + content)
}
