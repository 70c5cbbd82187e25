// Package admin renders the instance overview: row counters and the
// delivery retry backlog.
package admin

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/ui/common"
)

var (
	labelStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Width(20).
			Foreground(lipgloss.Color(common.COLOR_GREY))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(common.COLOR_GREEN))

	backlogStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(common.COLOR_RED))
)

type Model struct {
	source  common.Source
	Stats   domain.Stats
	Pending int
	Loaded  bool
	Error   string
	Width   int
	Height  int
}

func InitialModel(source common.Source, width, height int) Model {
	return Model{source: source, Width: width, Height: height}
}

func (m Model) Init() tea.Cmd {
	return loadStats(m.source)
}

type statsLoadedMsg struct {
	stats   domain.Stats
	pending int
	err     error
}

func loadStats(source common.Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := common.QueryContext()
		defer cancel()

		stats, err := source.Stats(ctx)
		if err != nil {
			log.Errorf("Monitor: Failed to load stats: %v", err)
			return statsLoadedMsg{err: err}
		}
		pending, err := source.CountPendingDeliveries(ctx)
		if err != nil {
			log.Errorf("Monitor: Failed to count pending deliveries: %v", err)
			return statsLoadedMsg{err: err}
		}
		return statsLoadedMsg{stats: *stats, pending: pending}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statsLoadedMsg:
		if msg.err != nil {
			m.Error = msg.err.Error()
			return m, nil
		}
		m.Stats = msg.stats
		m.Pending = msg.pending
		m.Loaded = true
		m.Error = ""
	case common.RefreshMsg:
		return m, loadStats(m.source)
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render("instance overview"))
	s.WriteString("\n")

	if !m.Loaded && m.Error == "" {
		s.WriteString(common.EmptyStyle.Render("loading..."))
		return s.String()
	}

	rows := []struct {
		label string
		value int
	}{
		{"local users", m.Stats.LocalUsers},
		{"remote actors", m.Stats.RemoteUsers},
		{"blogs", m.Stats.Blogs},
		{"posts", m.Stats.Posts},
		{"comments", m.Stats.Comments},
		{"follows", m.Stats.Follows},
		{"likes", m.Stats.Likes},
		{"reshares", m.Stats.Reshares},
	}
	for _, r := range rows {
		s.WriteString(labelStyle.Render(r.label))
		s.WriteString(valueStyle.Render(fmt.Sprintf("%d", r.value)))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("pending deliveries"))
	if m.Pending > 0 {
		s.WriteString(backlogStyle.Render(fmt.Sprintf("%d", m.Pending)))
	} else {
		s.WriteString(valueStyle.Render("0"))
	}
	s.WriteString("\n")

	if m.Error != "" {
		s.WriteString("\n")
		s.WriteString(common.ErrorStyle.Render(m.Error))
		s.WriteString("\n")
	}

	return s.String()
}
