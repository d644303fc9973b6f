package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorLime   = lipgloss.Color("#A6E22E")
	colorSubtle = lipgloss.Color("240")
	stageLabels = []string{"Sample", "Train", "Assign", "Shuffle", "Publish"}
)

// TUIReporter drives a bubbletea program showing the five ingestion
// stages, a spinner, and a progress bar — trimmed from the teacher's
// indexing TUI down to the stage/progress/current-item sections.
type TUIReporter struct {
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUIReporter starts a bubbletea program writing to out.
func NewTUIReporter(out io.Writer) *TUIReporter {
	model := newStageModel()

	var opts []tea.ProgramOption
	if f, ok := out.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r := &TUIReporter{
		program: tea.NewProgram(model, opts...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return r
}

func (r *TUIReporter) Update(event Event) {
	r.program.Send(event)
}

func (r *TUIReporter) Complete(stats CompletionStats) {
	r.program.Send(stats)
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
}

type stageModel struct {
	spinner  spinner.Model
	bar      progress.Model
	stage    Stage
	current  int
	total    int
	message  string
	complete bool
	stats    CompletionStats
}

func newStageModel() *stageModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorLime)

	bar := progress.New(progress.WithSolidFill(string(colorLime)), progress.WithWidth(40))

	return &stageModel{spinner: s, bar: bar}
}

func (m *stageModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *stageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case Event:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.message = msg.Message
		return m, nil
	case CompletionStats:
		m.complete = true
		m.stats = msg
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *stageModel) View() string {
	if m.complete {
		return fmt.Sprintf("Complete: ts=%d vectors=%d partitions=%d in %s\n",
			m.stats.GroupTimestamp, m.stats.VectorCount, m.stats.PartitionCount,
			m.stats.Duration.Round(100*time.Millisecond))
	}

	var stages []string
	for i, label := range stageLabels {
		style := lipgloss.NewStyle().Foreground(colorSubtle)
		if Stage(i) == m.stage {
			style = lipgloss.NewStyle().Foreground(colorLime).Bold(true)
		}
		stages = append(stages, style.Render(label))
	}

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.current) / float64(m.total)
	}

	return strings.Join([]string{
		m.spinner.View() + " " + strings.Join(stages, " → "),
		m.bar.ViewAs(frac),
		fmt.Sprintf("%d/%d %s", m.current, m.total, m.message),
	}, "\n") + "\n"
}
