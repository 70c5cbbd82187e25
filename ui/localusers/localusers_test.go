package localusers

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

type fakeSource struct {
	users  []domain.User
	marked []uuid.UUID
}

func (f *fakeSource) Stats(context.Context) (*domain.Stats, error) { return &domain.Stats{}, nil }

func (f *fakeSource) CountPendingDeliveries(context.Context) (int, error) { return 0, nil }

func (f *fakeSource) RecentNotifications(context.Context, int) ([]domain.NotificationView, error) {
	return nil, nil
}

func (f *fakeSource) LocalUsers(context.Context) ([]domain.User, error) { return f.users, nil }

func (f *fakeSource) CountFollowers(_ context.Context, id uuid.UUID) (int, error) {
	if id == f.users[0].Id {
		return 3, nil
	}
	return 0, nil
}

func (f *fakeSource) MarkNotificationsRead(_ context.Context, id uuid.UUID) error {
	f.marked = append(f.marked, id)
	return nil
}

func TestLocalUsersMarkRead(t *testing.T) {
	source := &fakeSource{users: []domain.User{
		{Id: uuid.New(), Username: "alice", DisplayName: "Alice"},
		{Id: uuid.New(), Username: "bob"},
	}}
	m := InitialModel(source, 80, 20)

	m, _ = m.Update(m.Init()())

	if len(m.Users) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(m.Users))
	}
	view := m.View()
	if !strings.Contains(view, "@alice (Alice)") || !strings.Contains(view, "3 followers") {
		t.Errorf("Unexpected view:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.Selected != 1 {
		t.Fatalf("Expected bob selected, got %d", m.Selected)
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.Selected != 1 {
		t.Errorf("Expected selection to stop at the last user, got %d", m.Selected)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("Expected a mark-read command")
	}
	m, _ = m.Update(cmd())

	if len(source.marked) != 1 || source.marked[0] != source.users[1].Id {
		t.Errorf("Expected bob's notifications marked read, got %v", source.marked)
	}
	if !strings.Contains(m.Status, "@bob") {
		t.Errorf("Unexpected status: %q", m.Status)
	}
}
