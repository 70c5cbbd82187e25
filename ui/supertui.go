package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/quill/ui/admin"
	"github.com/deemkeen/quill/ui/common"
	"github.com/deemkeen/quill/ui/header"
	"github.com/deemkeen/quill/ui/localusers"
	"github.com/deemkeen/quill/ui/timeline"
)

var (
	modelStyle = lipgloss.NewStyle().
			Align(lipgloss.Top, lipgloss.Top).
			BorderStyle(lipgloss.HiddenBorder()).MarginLeft(1)
	focusedModelStyle = lipgloss.NewStyle().
				Align(lipgloss.Top, lipgloss.Top).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color(common.COLOR_LIGHTBLUE)).MarginLeft(1)
)

// MainModel is the admin monitor: instance counters on the left, the
// notification table or the local user list on the right.
type MainModel struct {
	width           int
	height          int
	state           common.SessionState
	panel           common.SessionState
	headerModel     header.Model
	overviewModel   admin.Model
	timelineModel   timeline.Model
	localUsersModel localusers.Model
}

func NewModel(source common.Source, adminName string, domainName string, width int, height int) MainModel {
	width = common.DefaultWindowWidth(width)
	height = common.DefaultWindowHeight(height)

	return MainModel{
		width:           width,
		height:          height,
		state:           common.NotificationsView,
		panel:           common.NotificationsView,
		headerModel:     header.Model{Width: width, Admin: adminName, Domain: domainName},
		overviewModel:   admin.InitialModel(source, width/3, height),
		timelineModel:   timeline.InitialModel(source, width-width/3-6, height),
		localUsersModel: localusers.InitialModel(source, width-width/3-6, height),
	}
}

func (m MainModel) Init() tea.Cmd {
	return tea.Batch(
		m.overviewModel.Init(),
		m.timelineModel.Init(),
		m.localUsersModel.Init(),
		common.Tick(),
	)
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = common.DefaultWindowWidth(msg.Width)
		m.height = common.DefaultWindowHeight(msg.Height)
		m.headerModel.Width = m.width

	case common.RefreshMsg:
		// keep ticking; panels reload below
		cmds = append(cmds, common.Tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.state = next(m.state)
			if m.state != common.OverviewView {
				m.panel = m.state
			}
			return m, nil
		case "shift+tab":
			m.state = prev(m.state)
			if m.state != common.OverviewView {
				m.panel = m.state
			}
			return m, nil
		}
	}

	if _, isKeyMsg := msg.(tea.KeyMsg); !isKeyMsg {
		m.overviewModel, cmd = m.overviewModel.Update(msg)
		cmds = append(cmds, cmd)
		m.timelineModel, cmd = m.timelineModel.Update(msg)
		cmds = append(cmds, cmd)
		m.localUsersModel, cmd = m.localUsersModel.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	switch m.state {
	case common.OverviewView:
		m.overviewModel, cmd = m.overviewModel.Update(msg)
	case common.NotificationsView:
		m.timelineModel, cmd = m.timelineModel.Update(msg)
	case common.LocalUsersView:
		m.localUsersModel, cmd = m.localUsersModel.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func next(s common.SessionState) common.SessionState {
	switch s {
	case common.OverviewView:
		return common.NotificationsView
	case common.NotificationsView:
		return common.LocalUsersView
	default:
		return common.OverviewView
	}
}

func prev(s common.SessionState) common.SessionState {
	switch s {
	case common.OverviewView:
		return common.LocalUsersView
	case common.NotificationsView:
		return common.OverviewView
	default:
		return common.NotificationsView
	}
}

func (m MainModel) View() string {
	availableHeight := m.height - 10
	leftPanelWidth := m.width / 3
	rightPanelWidth := m.width - leftPanelWidth - 6

	left := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(leftPanelWidth).
		MaxWidth(leftPanelWidth).
		Render(m.overviewModel.View())

	var rightView string
	if m.panel == common.LocalUsersView {
		rightView = m.localUsersModel.View()
	} else {
		rightView = m.timelineModel.View()
	}
	right := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(rightPanelWidth).
		MaxWidth(rightPanelWidth).
		Margin(1).
		Render(rightView)

	s := m.headerModel.View() + "\n"
	if m.state == common.OverviewView {
		s += lipgloss.JoinHorizontal(lipgloss.Top, focusedModelStyle.Render(left), modelStyle.Render(right))
	} else {
		s += lipgloss.JoinHorizontal(lipgloss.Top, modelStyle.Render(left), focusedModelStyle.Render(right))
	}

	var viewCommands string
	switch m.state {
	case common.NotificationsView:
		viewCommands = "↑/↓: scroll"
	case common.LocalUsersView:
		viewCommands = "↑/↓: select • r: mark read"
	default:
		viewCommands = "refresh every " + common.RefreshInterval.String()
	}

	s += common.HelpStyle.Render(fmt.Sprintf(
		"focused > %s\t\tkeys > tab: next • shift+tab: prev • %s • q: exit",
		m.currentFocusedModel(), viewCommands))
	return s
}

func (m MainModel) currentFocusedModel() string {
	switch m.state {
	case common.OverviewView:
		return "overview"
	case common.NotificationsView:
		return "notifications"
	default:
		return "local users"
	}
}
