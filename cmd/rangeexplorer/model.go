package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
)

const defaultRefreshInterval = 3 * time.Second

type refreshMsg struct {
	ranges []rangeDirInfo
	err    error
}

// model is the explorer's bubbletea Model: a table of discovered range
// directories, refreshed on a timer.
type model struct {
	dataDir  string
	interval time.Duration

	tbl     table.Model
	ranges  []rangeDirInfo
	err     error
	width   int
	height  int
}

func newModel(dataDir string, interval time.Duration) model {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	columns := []table.Column{
		{Title: "Range Directory", Width: 50},
		{Title: "Files", Width: 8},
		{Title: "Bytes", Width: 12},
		{Title: "Last Touched", Width: 20},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	return model{dataDir: dataDir, interval: interval, tbl: tbl}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.dataDir), tickCmd(m.interval))
}

func refreshCmd(dataDir string) tea.Cmd {
	return func() tea.Msg {
		ranges, err := scanRangeDirs(dataDir)
		return refreshMsg{ranges: ranges, err: err}
	}
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.tbl.SetHeight(msg.Height - 6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, refreshCmd(m.dataDir)
		}

	case tickMsg:
		return m, tea.Batch(refreshCmd(m.dataDir), tickCmd(m.interval))

	case refreshMsg:
		m.err = msg.err
		m.ranges = msg.ranges
		m.tbl.SetRows(rowsFor(msg.ranges))
		return m, nil
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

func rowsFor(ranges []rangeDirInfo) []table.Row {
	rows := make([]table.Row, 0, len(ranges))
	for _, r := range ranges {
		touched := "never"
		if !r.ModTime.IsZero() {
			touched = r.ModTime.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, table.Row{
			r.Path,
			fmt.Sprintf("%d", r.Files),
			fmt.Sprintf("%d", r.Bytes),
			touched,
		})
	}
	return rows
}
