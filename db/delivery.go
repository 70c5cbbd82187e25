package db

import (
	"context"
	"time"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertDelivery        = `INSERT INTO delivery_queue(id, inbox, key_id, activity, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlPendingDeliveries     = `SELECT id, inbox, key_id, activity, attempts, next_retry_at, created_at FROM delivery_queue
		WHERE next_retry_at <= ? ORDER BY next_retry_at LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
)

// EnqueueDelivery stores a failed delivery for the retry worker.
func (q *queries) EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error {
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return q.exec(ctx, sqlInsertDelivery, item.Id, item.Inbox, item.KeyID, item.Activity, item.Attempts,
		item.NextRetryAt.UTC(), item.CreatedAt.UTC())
}

// PendingDeliveries returns the items due for another attempt.
func (q *queries) PendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := q.query(ctx, sqlPendingDeliveries, time.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		if err := rows.Scan(&item.Id, &item.Inbox, &item.KeyID, &item.Activity, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *queries) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return q.execAffected(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetryAt.UTC(), id)
}

func (q *queries) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	return q.exec(ctx, `DELETE FROM delivery_queue WHERE id = ?`, id)
}

func (q *queries) CountPendingDeliveries(ctx context.Context) (int, error) {
	var n int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM delivery_queue`).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}
