package db

import (
	"context"
	"strings"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertApiToken        = `INSERT INTO api_tokens(id, value, scopes, user_id, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectApiTokenByValue = `SELECT id, value, scopes, user_id, created_at FROM api_tokens WHERE value = ?`
)

// Scopes are stored space separated.
func (q *queries) InsertApiToken(ctx context.Context, t *domain.ApiToken) error {
	return q.exec(ctx, sqlInsertApiToken, t.Id, t.Value, strings.Join(t.Scopes, " "), t.UserId, t.CreatedAt.UTC())
}

func (q *queries) ApiTokenByValue(ctx context.Context, value string) (*domain.ApiToken, error) {
	var t domain.ApiToken
	var scopes string
	err := q.queryRow(ctx, sqlSelectApiTokenByValue, value).Scan(&t.Id, &t.Value, &scopes, &t.UserId, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Scopes = strings.Fields(scopes)
	return &t, nil
}

func (q *queries) DeleteApiToken(ctx context.Context, id uuid.UUID) error {
	return q.execAffected(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
}
