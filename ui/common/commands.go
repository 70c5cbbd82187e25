package common

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

type SessionState uint

const (
	OverviewView SessionState = iota
	NotificationsView
	LocalUsersView
)

// RefreshInterval is how often the monitor reloads its panels.
const RefreshInterval = 5 * time.Second

// Source is the read side of the database the monitor renders.
type Source interface {
	Stats(ctx context.Context) (*domain.Stats, error)
	CountPendingDeliveries(ctx context.Context) (int, error)
	RecentNotifications(ctx context.Context, limit int) ([]domain.NotificationView, error)
	LocalUsers(ctx context.Context) ([]domain.User, error)
	CountFollowers(ctx context.Context, followingId uuid.UUID) (int, error)
	MarkNotificationsRead(ctx context.Context, userId uuid.UUID) error
}

// RefreshMsg asks every panel to reload.
type RefreshMsg time.Time

// ClearStatusMsg is sent after a delay to clear status/error messages.
type ClearStatusMsg struct{}

func Tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return RefreshMsg(t)
	})
}

func ClearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// QueryTimeout bounds each monitor query.
const QueryTimeout = 3 * time.Second

func QueryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), QueryTimeout)
}
