package localusers

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/ui/common"
	"github.com/deemkeen/quill/util"
)

var (
	userStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(lipgloss.Color(common.COLOR_GREEN)).
			Bold(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(common.COLOR_GREY))
)

type Model struct {
	source    common.Source
	Users     []domain.User
	Followers map[string]int
	Selected  int
	Width     int
	Height    int
	Status    string
	Error     string
}

func InitialModel(source common.Source, width, height int) Model {
	return Model{
		source:    source,
		Followers: make(map[string]int),
		Width:     width,
		Height:    height,
	}
}

func (m Model) Init() tea.Cmd {
	return loadLocalUsers(m.source)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case usersLoadedMsg:
		if msg.err != nil {
			m.Error = msg.err.Error()
			return m, nil
		}
		m.Users = msg.users
		m.Followers = msg.followers
		if m.Selected >= len(m.Users) {
			m.Selected = max(0, len(m.Users)-1)
		}
		return m, nil

	case markedReadMsg:
		if msg.err != nil {
			m.Error = fmt.Sprintf("Could not mark notifications of @%s read", msg.username)
			m.Status = ""
		} else {
			m.Status = fmt.Sprintf("Notifications of @%s marked read", msg.username)
			m.Error = ""
		}
		return m, common.ClearStatusAfter(2 * time.Second)

	case common.ClearStatusMsg:
		m.Status = ""
		m.Error = ""
		return m, nil

	case common.RefreshMsg:
		return m, loadLocalUsers(m.source)

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Selected > 0 {
				m.Selected--
			}
		case "down", "j":
			if m.Selected < len(m.Users)-1 {
				m.Selected++
			}
		case "r", "enter":
			if len(m.Users) > 0 {
				return m, markRead(m.source, m.Users[m.Selected])
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("local users (%d)", len(m.Users))))
	s.WriteString("\n")

	if len(m.Users) == 0 {
		s.WriteString(common.EmptyStyle.Render("No local users yet. Create one with `quill useradd`."))
		s.WriteString("\n")
	}

	for i, user := range m.Users {
		followers := countStyle.Render(fmt.Sprintf(" %d followers, since %s",
			m.Followers[user.Username], user.CreatedAt.Format(util.DateTimeFormat())))
		text := "@" + user.Username
		if user.DisplayName != "" && user.DisplayName != user.Username {
			text += " (" + user.DisplayName + ")"
		}
		if i == m.Selected {
			s.WriteString("→ " + selectedStyle.Render(text) + followers)
		} else {
			s.WriteString("  " + userStyle.Render(text) + followers)
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if m.Status != "" {
		s.WriteString(common.StatusStyle.Render(m.Status))
		s.WriteString("\n")
	}
	if m.Error != "" {
		s.WriteString(common.ErrorStyle.Render(m.Error))
		s.WriteString("\n")
	}

	return s.String()
}

type usersLoadedMsg struct {
	users     []domain.User
	followers map[string]int
	err       error
}

type markedReadMsg struct {
	username string
	err      error
}

func loadLocalUsers(source common.Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := common.QueryContext()
		defer cancel()

		users, err := source.LocalUsers(ctx)
		if err != nil {
			log.Errorf("Monitor: Failed to load local users: %v", err)
			return usersLoadedMsg{err: err}
		}

		followers := make(map[string]int, len(users))
		for _, u := range users {
			n, err := source.CountFollowers(ctx, u.Id)
			if err != nil {
				log.Warnf("Monitor: Failed to count followers of %s: %v", u.Username, err)
				continue
			}
			followers[u.Username] = n
		}
		return usersLoadedMsg{users: users, followers: followers}
	}
}

func markRead(source common.Source, user domain.User) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := common.QueryContext()
		defer cancel()

		err := source.MarkNotificationsRead(ctx, user.Id)
		if err != nil {
			log.Errorf("Monitor: Failed to mark notifications read for %s: %v", user.Username, err)
		}
		return markedReadMsg{username: user.Username, err: err}
	}
}
