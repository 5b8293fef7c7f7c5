// Package ui renders a live view of the scheduler's tasks in the terminal.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"trampoline/internal/trampoline"
)

// ErrInterrupted is returned by Run when the user quits the monitor.
var ErrInterrupted = errors.New("monitor interrupted")

// keep this many finished tasks on screen
const finishedTail = 5

type monitorModel struct {
	title       string
	status      <-chan trampoline.Status
	snapshot    func() trampoline.Snapshot
	spinner     spinner.Model
	gauge       progress.Model
	items       []taskItem
	finished    []taskItem
	round       uint64
	width       int
	done        bool
	interrupted bool
}

type taskItem struct {
	id      trampoline.TaskID
	name    string
	status  string
	depth   int
	resumes uint64
}

type statusMsg trampoline.Status
type doneMsg struct{}

// NewMonitorModel returns a Bubble Tea model fed by the scheduler's status
// channel. snapshot is consulted on every round notification.
func NewMonitorModel(title string, status <-chan trampoline.Status, snapshot func() trampoline.Snapshot) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	gauge := progress.New(progress.WithDefaultGradient())
	gauge.Width = 76

	return &monitorModel{
		title:    title,
		status:   status,
		snapshot: snapshot,
		spinner:  sp,
		gauge:    gauge,
		width:    80,
	}
}

// Run shows the monitor until status is closed, ctx is cancelled or the
// user quits.
func Run(ctx context.Context, out io.Writer, title string, status <-chan trampoline.Status, snapshot func() trampoline.Snapshot) error {
	model := NewMonitorModel(title, status, snapshot)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(out))
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if m, ok := final.(*monitorModel); ok && m.interrupted {
		return ErrInterrupted
	}
	return nil
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForStatus())
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		cmd := m.applyStatus(trampoline.Status(msg))
		return m, tea.Batch(cmd, m.listenForStatus())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.gauge.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		gaugeModel, cmd := m.gauge.Update(msg)
		m.gauge = gaugeModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (round %d, %d live)", m.title, m.round, len(m.items))
	if m.done {
		header = "stopped: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-16, 20)

	for _, item := range slices.Concat(m.items, m.finished) {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		fmt.Fprintf(&b, "  %s %s", status, truncate(item.name, nameWidth))
		if item.status != "finished" {
			fmt.Fprintf(&b, "  depth=%d resumes=%d", item.depth, item.resumes)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.gauge.ViewAs(0))
	} else {
		b.WriteString(m.gauge.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *monitorModel) listenForStatus() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.status
		if !ok {
			return doneMsg{}
		}
		return statusMsg(st)
	}
}

func (m *monitorModel) applyStatus(st trampoline.Status) tea.Cmd {
	switch st.Kind {
	case trampoline.StatusSpawned:
		if m.indexOf(st.TaskID) < 0 {
			m.items = append(m.items, taskItem{id: st.TaskID, name: st.Task, status: "ready", depth: 1})
		}
	case trampoline.StatusFired:
		if i := m.indexOf(st.TaskID); i >= 0 {
			m.items[i].status = "fired"
		}
	case trampoline.StatusFinished:
		if i := m.indexOf(st.TaskID); i >= 0 {
			item := m.items[i]
			m.items = slices.Delete(m.items, i, i+1)
			m.retire(item)
		} else {
			m.retire(taskItem{id: st.TaskID, name: st.Task})
		}
	case trampoline.StatusRound:
		m.round = st.Round
		m.refresh()
		if st.Live > 0 {
			return m.gauge.SetPercent(min(float64(st.Resumed)/float64(st.Live), 1))
		}
		return m.gauge.SetPercent(0)
	}
	return nil
}

// refresh replaces the live task list with the latest snapshot.
func (m *monitorModel) refresh() {
	if m.snapshot == nil {
		return
	}
	snap := m.snapshot()
	items := make([]taskItem, 0, len(snap.Tasks))
	for _, ts := range snap.Tasks {
		status := fmt.Sprintf("waiting(%d)", ts.Waits)
		if ts.Pending {
			status = "ready"
		}
		items = append(items, taskItem{
			id:      ts.ID,
			name:    ts.Name,
			status:  status,
			depth:   ts.Depth,
			resumes: ts.Resumes,
		})
	}
	m.items = items
}

func (m *monitorModel) retire(item taskItem) {
	item.status = "finished"
	m.finished = append(m.finished, item)
	if len(m.finished) > finishedTail {
		m.finished = slices.Delete(m.finished, 0, len(m.finished)-finishedTail)
	}
}

func (m *monitorModel) indexOf(id trampoline.TaskID) int {
	return slices.IndexFunc(m.items, func(it taskItem) bool { return it.id == id })
}

func styleStatus(status string) lipgloss.Style {
	switch {
	case status == "finished":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case status == "ready" || status == "fired":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	case strings.HasPrefix(status, "waiting"):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
