package db

import (
	"context"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	commentColumns = `id, content, in_response_to_id, post_id, author_id, ap_url, sensitive, spoiler_text, public_visibility, audience, created_at`

	sqlInsertComment        = `INSERT INTO comments(` + commentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCommentByApURL = `SELECT ` + commentColumns + ` FROM comments WHERE ap_url = ?`
	sqlSelectCommentById    = `SELECT ` + commentColumns + ` FROM comments WHERE id = ?`
	sqlSelectPostComments   = `SELECT ` + commentColumns + ` FROM comments WHERE post_id = ? ORDER BY created_at`
)

func scanComment(row scanner) (*domain.Comment, error) {
	var c domain.Comment
	var parent uuid.NullUUID
	var audience string
	err := row.Scan(&c.Id, &c.Content, &parent, &c.PostId, &c.AuthorId, &c.ApURL, &c.Sensitive, &c.SpoilerText,
		&c.PublicVisibility, &audience, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if parent.Valid {
		c.InResponseToId = &parent.UUID
	}
	c.Audience = decodeAudience(audience)
	return &c, nil
}

func (q *queries) InsertComment(ctx context.Context, c *domain.Comment) error {
	return q.exec(ctx, sqlInsertComment, c.Id, c.Content, nullUUID(c.InResponseToId), c.PostId, c.AuthorId, c.ApURL,
		c.Sensitive, c.SpoilerText, c.PublicVisibility, encodeAudience(c.Audience), c.CreatedAt.UTC())
}

func (q *queries) CommentByApURL(ctx context.Context, apURL string) (*domain.Comment, error) {
	return scanComment(q.queryRow(ctx, sqlSelectCommentByApURL, apURL))
}

func (q *queries) CommentById(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	return scanComment(q.queryRow(ctx, sqlSelectCommentById, id))
}

func (q *queries) PostComments(ctx context.Context, postId uuid.UUID) ([]domain.Comment, error) {
	rows, err := q.query(ctx, sqlSelectPostComments, postId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// DeleteComment removes a comment. Its replies move up to the deleted
// comment's parent so threads stay connected.
func (q *queries) DeleteComment(ctx context.Context, id uuid.UUID) error {
	c, err := q.CommentById(ctx, id)
	if err != nil {
		return err
	}
	if err := q.exec(ctx, `UPDATE comments SET in_response_to_id = ? WHERE in_response_to_id = ?`,
		nullUUID(c.InResponseToId), id); err != nil {
		return err
	}
	if err := q.exec(ctx, `DELETE FROM notifications WHERE object_id = ?`, id); err != nil {
		return err
	}
	return q.execAffected(ctx, `DELETE FROM comments WHERE id = ?`, id)
}
