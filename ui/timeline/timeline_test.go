package timeline

import (
	"testing"
	"time"

	"github.com/deemkeen/quill/domain"
)

func TestRows(t *testing.T) {
	views := []domain.NotificationView{
		{
			Notification: domain.Notification{Kind: domain.NotificationLike, CreatedAt: time.Now()},
			Recipient:    "alice",
			ActorURL:     "https://remote.example/users/bob",
		},
		{
			Notification: domain.Notification{Kind: domain.NotificationFollow, Read: true, CreatedAt: time.Now().Add(-2 * time.Hour)},
			Recipient:    "alice",
		},
	}

	rows := Rows(views)

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "just now" || rows[0][1] != "*like" || rows[0][2] != "@alice" {
		t.Errorf("Unexpected unread row: %v", rows[0])
	}
	if rows[0][3] != "https://remote.example/users/bob" {
		t.Errorf("Unexpected actor column: %q", rows[0][3])
	}
	if rows[1][0] != "2h ago" || rows[1][1] != "follow" || rows[1][3] != "-" {
		t.Errorf("Unexpected read row: %v", rows[1])
	}
}
