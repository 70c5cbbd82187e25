package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	postColumns = `id, blog_id, slug, title, subtitle, content, source, license, published, ap_url, cover_id, public_visibility, audience, created_at, edited_at`

	sqlInsertPost = `INSERT INTO posts(` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdatePost = `UPDATE posts SET title = ?, subtitle = ?, content = ?, source = ?, license = ?, published = ?,
		cover_id = ?, public_visibility = ?, audience = ?, edited_at = ? WHERE id = ?`
	sqlSelectPostByApURL = `SELECT ` + postColumns + ` FROM posts WHERE ap_url = ?`
	sqlSelectPostById    = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	sqlSelectPostBySlug  = `SELECT ` + postColumns + ` FROM posts WHERE blog_id = ? AND slug = ?`
	sqlSelectBlogPosts   = `SELECT ` + postColumns + ` FROM posts WHERE blog_id = ? AND published = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountBlogPosts    = `SELECT COUNT(*) FROM posts WHERE blog_id = ? AND published = ?`

	sqlInsertPostAuthor  = `INSERT INTO post_authors(post_id, author_id) VALUES (?, ?)`
	sqlSelectPostAuthors = `SELECT ` + userColumns + ` FROM users WHERE id IN (SELECT author_id FROM post_authors WHERE post_id = ?) ORDER BY username`

	sqlInsertTag      = `INSERT INTO tags(id, tag, is_hashtag, post_id) VALUES (?, ?, ?, ?)`
	sqlSelectPostTags = `SELECT id, tag, is_hashtag, post_id FROM tags WHERE post_id = ? ORDER BY tag`

	sqlInsertMedia     = `INSERT INTO medias(id, remote_url, alt_text, sensitive, content_warning, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectMediaById = `SELECT id, remote_url, alt_text, sensitive, content_warning, owner_id, created_at FROM medias WHERE id = ?`
)

func scanPost(row scanner) (*domain.Post, error) {
	var p domain.Post
	var cover uuid.NullUUID
	var audience string
	var edited sql.NullTime
	err := row.Scan(&p.Id, &p.BlogId, &p.Slug, &p.Title, &p.Subtitle, &p.Content, &p.Source, &p.License, &p.Published,
		&p.ApURL, &cover, &p.PublicVisibility, &audience, &p.CreatedAt, &edited)
	if err != nil {
		return nil, mapErr(err)
	}
	if cover.Valid {
		p.CoverId = &cover.UUID
	}
	if edited.Valid {
		p.EditedAt = &edited.Time
	}
	p.Audience = decodeAudience(audience)
	return &p, nil
}

func (q *queries) InsertPost(ctx context.Context, p *domain.Post) error {
	return q.exec(ctx, sqlInsertPost, p.Id, p.BlogId, p.Slug, p.Title, p.Subtitle, p.Content, p.Source, p.License, p.Published,
		p.ApURL, nullUUID(p.CoverId), p.PublicVisibility, encodeAudience(p.Audience), p.CreatedAt.UTC(), nullTime(p.EditedAt))
}

func (q *queries) UpdatePost(ctx context.Context, p *domain.Post) error {
	return q.execAffected(ctx, sqlUpdatePost, p.Title, p.Subtitle, p.Content, p.Source, p.License, p.Published,
		nullUUID(p.CoverId), p.PublicVisibility, encodeAudience(p.Audience), nullTime(p.EditedAt), p.Id)
}

func (q *queries) PostByApURL(ctx context.Context, apURL string) (*domain.Post, error) {
	return scanPost(q.queryRow(ctx, sqlSelectPostByApURL, apURL))
}

func (q *queries) PostById(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	return scanPost(q.queryRow(ctx, sqlSelectPostById, id))
}

func (q *queries) PostBySlug(ctx context.Context, blogId uuid.UUID, slug string) (*domain.Post, error) {
	return scanPost(q.queryRow(ctx, sqlSelectPostBySlug, blogId, slug))
}

// BlogPosts returns published posts of a blog, newest first.
func (q *queries) BlogPosts(ctx context.Context, blogId uuid.UUID, limit int, offset int) ([]domain.Post, error) {
	rows, err := q.query(ctx, sqlSelectBlogPosts, blogId, true, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (q *queries) CountBlogPosts(ctx context.Context, blogId uuid.UUID) (int, error) {
	var n int
	if err := q.queryRow(ctx, sqlCountBlogPosts, blogId, true).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// DeletePost removes a post with its comments, interactions, tags and authorship.
func (q *queries) DeletePost(ctx context.Context, id uuid.UUID) error {
	for _, stmt := range []string{
		`DELETE FROM comments WHERE post_id = ?`,
		`DELETE FROM likes WHERE post_id = ?`,
		`DELETE FROM reshares WHERE post_id = ?`,
		`DELETE FROM tags WHERE post_id = ?`,
		`DELETE FROM post_authors WHERE post_id = ?`,
		`DELETE FROM notifications WHERE object_id = ?`,
	} {
		if err := q.exec(ctx, stmt, id); err != nil {
			return err
		}
	}
	return q.execAffected(ctx, `DELETE FROM posts WHERE id = ?`, id)
}

func (q *queries) AddPostAuthor(ctx context.Context, postId uuid.UUID, userId uuid.UUID) error {
	return q.exec(ctx, sqlInsertPostAuthor, postId, userId)
}

func (q *queries) PostAuthors(ctx context.Context, postId uuid.UUID) ([]domain.User, error) {
	return q.users(ctx, sqlSelectPostAuthors, postId)
}

// ReplaceTags swaps the tags of a post for the given set.
func (q *queries) ReplaceTags(ctx context.Context, postId uuid.UUID, tags []domain.Tag) error {
	if err := q.exec(ctx, `DELETE FROM tags WHERE post_id = ?`, postId); err != nil {
		return err
	}
	for _, t := range tags {
		if err := q.exec(ctx, sqlInsertTag, t.Id, t.Tag, t.IsHashtag, postId); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) PostTags(ctx context.Context, postId uuid.UUID) ([]domain.Tag, error) {
	rows, err := q.query(ctx, sqlSelectPostTags, postId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.Id, &t.Tag, &t.IsHashtag, &t.PostId); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (q *queries) InsertMedia(ctx context.Context, m *domain.Media) error {
	return q.exec(ctx, sqlInsertMedia, m.Id, m.RemoteURL, m.AltText, m.Sensitive, m.ContentWarning, m.OwnerId, m.CreatedAt.UTC())
}

func (q *queries) MediaById(ctx context.Context, id uuid.UUID) (*domain.Media, error) {
	var m domain.Media
	err := q.queryRow(ctx, sqlSelectMediaById, id).Scan(&m.Id, &m.RemoteURL, &m.AltText, &m.Sensitive, &m.ContentWarning, &m.OwnerId, &m.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func encodeAudience(audience []string) string {
	if len(audience) == 0 {
		return "[]"
	}
	b, err := json.Marshal(audience)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeAudience(s string) []string {
	var audience []string
	if err := json.Unmarshal([]byte(s), &audience); err != nil || len(audience) == 0 {
		return nil
	}
	return audience
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
