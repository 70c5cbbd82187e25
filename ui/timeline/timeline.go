// Package timeline shows the latest notifications raised by inbound
// federated activities.
package timeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/ui/common"
	"github.com/deemkeen/quill/util"
)

const (
	notificationLimit = 50
	maxActorLength    = 80
)

type Model struct {
	source        common.Source
	Table         table.Model
	Notifications []domain.NotificationView
	Error         string
	Width         int
	Height        int
}

func InitialModel(source common.Source, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(max(height-6, 3)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(common.COLOR_GREY)).
		BorderBottom(true).
		Bold(false)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color(common.COLOR_GREEN)).
		Bold(true)
	t.SetStyles(styles)

	return Model{source: source, Table: t, Width: width, Height: height}
}

func columns(width int) []table.Column {
	actorWidth := max(width-12-10-10-8, 20)
	return []table.Column{
		{Title: "when", Width: 10},
		{Title: "kind", Width: 10},
		{Title: "user", Width: 12},
		{Title: "from", Width: actorWidth},
	}
}

// Rows converts notifications into table rows, unread ones marked with "*".
func Rows(views []domain.NotificationView) []table.Row {
	rows := make([]table.Row, 0, len(views))
	for _, v := range views {
		kind := string(v.Kind)
		if !v.Read {
			kind = "*" + kind
		}
		from := v.ActorURL
		if from == "" {
			from = "-"
		}
		rows = append(rows, table.Row{
			common.FormatTimeAgo(v.CreatedAt),
			kind,
			"@" + v.Recipient,
			common.Truncate(util.NormalizeInput(from), maxActorLength),
		})
	}
	return rows
}

func (m Model) Init() tea.Cmd {
	return loadNotifications(m.source)
}

type notificationsLoadedMsg struct {
	views []domain.NotificationView
	err   error
}

func loadNotifications(source common.Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := common.QueryContext()
		defer cancel()

		views, err := source.RecentNotifications(ctx, notificationLimit)
		if err != nil {
			log.Errorf("Monitor: Failed to load notifications: %v", err)
		}
		return notificationsLoadedMsg{views: views, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case notificationsLoadedMsg:
		if msg.err != nil {
			m.Error = msg.err.Error()
			return m, nil
		}
		m.Error = ""
		m.Notifications = msg.views
		m.Table.SetRows(Rows(msg.views))
		return m, nil
	case common.RefreshMsg:
		return m, loadNotifications(m.source)
	case tea.WindowSizeMsg:
		width := common.DefaultWindowWidth(msg.Width)
		m.Width = width
		m.Height = common.DefaultWindowHeight(msg.Height)
		m.Table.SetColumns(columns(width))
		m.Table.SetHeight(max(m.Height-6, 3))
		return m, nil
	case tea.KeyMsg:
		var cmd tea.Cmd
		m.Table, cmd = m.Table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("notifications (%d)", len(m.Notifications))))
	s.WriteString("\n")

	if m.Error != "" {
		s.WriteString(common.ErrorStyle.Render(m.Error))
		s.WriteString("\n")
	}

	if len(m.Notifications) == 0 {
		s.WriteString(common.EmptyStyle.Render("No federated interactions yet."))
		return s.String()
	}

	s.WriteString(m.Table.View())
	return s.String()
}
