package header

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/quill/ui/common"
	"github.com/deemkeen/quill/util"
)

type Model struct {
	Width  int
	Admin  string
	Domain string
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	return GetHeaderStyle(m.Admin, m.Domain, m.Width)
}

func GetHeaderStyle(admin string, domainName string, width int) string {
	// each box carries padding(1) and a top/bottom border: 4 chars over its content
	overhead := 16
	availableWidth := max(width-overhead, 40)

	adminWidth := availableWidth / 6
	atWidth := 1
	versionWidth := availableWidth / 2
	domainWidth := availableWidth - adminWidth - atWidth - versionWidth

	box := lipgloss.NewStyle().
		Padding(1).
		Height(2).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA))

	adminBox := box.
		SetString(admin).
		Align(lipgloss.Left).
		Background(lipgloss.Color(common.COLOR_PURPLE)).
		Width(adminWidth).
		String()

	at := box.
		SetString("@").
		Foreground(lipgloss.Color(common.COLOR_MAGENTA)).
		Width(atWidth).
		String()

	version := box.
		SetString(util.GetNameAndVersion()).
		Background(lipgloss.Color(common.COLOR_GREY)).
		Width(versionWidth).
		String()

	instance := box.
		SetString("instance: "+domainName).
		Align(lipgloss.Left).
		Background(lipgloss.Color(common.COLOR_MAGENTA)).
		Width(domainWidth).
		String()

	return lipgloss.JoinHorizontal(lipgloss.Left, adminBox, at, version, instance)
}
