package db

import (
	"context"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertNotification    = `INSERT INTO notifications(id, user_id, kind, object_id, actor_id, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNotifications   = `SELECT n.id, n.user_id, n.kind, n.object_id, n.actor_id, n.is_read, n.created_at, u.username, COALESCE(a.ap_url, '')
		FROM notifications n
		INNER JOIN users u ON u.id = n.user_id
		LEFT JOIN users a ON a.id = n.actor_id
		ORDER BY n.created_at DESC LIMIT ?`
	sqlMarkNotificationsRead = `UPDATE notifications SET is_read = ? WHERE user_id = ?`
)

func (q *queries) InsertNotification(ctx context.Context, n *domain.Notification) error {
	return q.exec(ctx, sqlInsertNotification, n.Id, n.UserId, string(n.Kind), n.ObjectId, n.ActorId, n.Read, n.CreatedAt.UTC())
}

// RecentNotifications lists the newest notifications across all local users.
func (q *queries) RecentNotifications(ctx context.Context, limit int) ([]domain.NotificationView, error) {
	rows, err := q.query(ctx, sqlSelectNotifications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.NotificationView
	for rows.Next() {
		var v domain.NotificationView
		var kind string
		if err := rows.Scan(&v.Id, &v.UserId, &kind, &v.ObjectId, &v.ActorId, &v.Read, &v.CreatedAt, &v.Recipient, &v.ActorURL); err != nil {
			return nil, err
		}
		v.Kind = domain.NotificationKind(kind)
		views = append(views, v)
	}
	return views, rows.Err()
}

func (q *queries) MarkNotificationsRead(ctx context.Context, userId uuid.UUID) error {
	return q.exec(ctx, sqlMarkNotificationsRead, true, userId)
}

// Stats counts the rows the admin monitor shows.
func (q *queries) Stats(ctx context.Context) (*domain.Stats, error) {
	var s domain.Stats
	counters := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&s.LocalUsers, `SELECT COUNT(*) FROM users WHERE is_local = ?`, []any{true}},
		{&s.RemoteUsers, `SELECT COUNT(*) FROM users WHERE is_local = ?`, []any{false}},
		{&s.Blogs, `SELECT COUNT(*) FROM blogs`, nil},
		{&s.Posts, `SELECT COUNT(*) FROM posts`, nil},
		{&s.Comments, `SELECT COUNT(*) FROM comments`, nil},
		{&s.Follows, `SELECT COUNT(*) FROM follows`, nil},
		{&s.Likes, `SELECT COUNT(*) FROM likes`, nil},
		{&s.Reshares, `SELECT COUNT(*) FROM reshares`, nil},
	}
	for _, c := range counters {
		if err := q.queryRow(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, mapErr(err)
		}
	}
	return &s, nil
}
