package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUserToString(t *testing.T) {
	id := uuid.New()
	u := &User{
		Id:        id,
		Username:  "testuser",
		ApURL:     "https://example.com/@/testuser/",
		Local:     true,
		CreatedAt: time.Now(),
	}

	result := u.ToString()

	if !strings.Contains(result, "testuser") {
		t.Errorf("ToString() should contain username, got: %s", result)
	}
	if !strings.Contains(result, id.String()) {
		t.Errorf("ToString() should contain ID, got: %s", result)
	}
}

func TestUserRecipient(t *testing.T) {
	u := &User{
		Inbox:       "https://remote.example/@/bob/inbox",
		SharedInbox: "https://remote.example/inbox",
	}

	if u.IsLocal() {
		t.Error("Remote user should not be local")
	}
	if u.InboxURL() != "https://remote.example/@/bob/inbox" {
		t.Errorf("Unexpected inbox %s", u.InboxURL())
	}
	if u.SharedInboxURL() != "https://remote.example/inbox" {
		t.Errorf("Unexpected shared inbox %s", u.SharedInboxURL())
	}
}

func TestFqn(t *testing.T) {
	u := &User{Username: "alice", Domain: "example.com"}
	if u.Fqn() != "alice@example.com" {
		t.Errorf("Expected alice@example.com, got %s", u.Fqn())
	}

	b := &Blog{Name: "tech", Domain: "example.com", Local: true}
	if b.Fqn() != "tech@example.com" {
		t.Errorf("Expected tech@example.com, got %s", b.Fqn())
	}
	if !b.IsLocal() {
		t.Error("Blog should be local")
	}
}
