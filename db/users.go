package db

import (
	"context"
	"time"

	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/util"
	"github.com/google/uuid"
)

const (
	userColumns = `id, username, display_name, summary, domain, ap_url, inbox, shared_inbox, outbox, followers_url, public_key, private_key, is_local, last_fetched_at, created_at`

	sqlInsertUser = `INSERT INTO users(` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateUser = `UPDATE users SET username = ?, display_name = ?, summary = ?, domain = ?, inbox = ?, shared_inbox = ?,
		outbox = ?, followers_url = ?, public_key = ?, last_fetched_at = ? WHERE id = ?`
	sqlSelectUserByApURL     = `SELECT ` + userColumns + ` FROM users WHERE ap_url = ?`
	sqlSelectUserById        = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	sqlSelectLocalUserByName = `SELECT ` + userColumns + ` FROM users WHERE username = ? AND is_local = ?`
	sqlSelectLocalUsers      = `SELECT ` + userColumns + ` FROM users WHERE is_local = ? ORDER BY username`

	sqlInsertBlog = `INSERT INTO blogs(id, name, title, summary, domain, ap_url, inbox, shared_inbox, outbox, followers_url, public_key, private_key, is_local, last_fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateBlog = `UPDATE blogs SET name = ?, title = ?, summary = ?, domain = ?, inbox = ?, shared_inbox = ?,
		outbox = ?, followers_url = ?, public_key = ?, last_fetched_at = ? WHERE id = ?`
	blogColumns              = `id, name, title, summary, domain, ap_url, inbox, shared_inbox, outbox, followers_url, public_key, private_key, is_local, last_fetched_at, created_at`
	sqlSelectBlogByApURL     = `SELECT ` + blogColumns + ` FROM blogs WHERE ap_url = ?`
	sqlSelectBlogById        = `SELECT ` + blogColumns + ` FROM blogs WHERE id = ?`
	sqlSelectLocalBlogByName = `SELECT ` + blogColumns + ` FROM blogs WHERE name = ? AND is_local = ?`

	sqlInsertBlogAuthor  = `INSERT INTO blog_authors(blog_id, author_id, is_owner) VALUES (?, ?, ?)`
	sqlSelectBlogAuthor  = `SELECT COUNT(*) FROM blog_authors WHERE blog_id = ? AND author_id = ?`
	sqlSelectBlogAuthors = `SELECT ` + userColumns + ` FROM users WHERE id IN (SELECT author_id FROM blog_authors WHERE blog_id = ?) ORDER BY username`
)

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.Id, &u.Username, &u.DisplayName, &u.Summary, &u.Domain, &u.ApURL, &u.Inbox, &u.SharedInbox,
		&u.Outbox, &u.FollowersURL, &u.PublicKey, &u.PrivateKey, &u.Local, &u.LastFetchedAt, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func scanBlog(row scanner) (*domain.Blog, error) {
	var b domain.Blog
	err := row.Scan(&b.Id, &b.Name, &b.Title, &b.Summary, &b.Domain, &b.ApURL, &b.Inbox, &b.SharedInbox,
		&b.Outbox, &b.FollowersURL, &b.PublicKey, &b.PrivateKey, &b.Local, &b.LastFetchedAt, &b.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (q *queries) InsertUser(ctx context.Context, u *domain.User) error {
	return q.exec(ctx, sqlInsertUser, u.Id, u.Username, u.DisplayName, u.Summary, u.Domain, u.ApURL, u.Inbox, u.SharedInbox,
		u.Outbox, u.FollowersURL, u.PublicKey, u.PrivateKey, u.Local, u.LastFetchedAt.UTC(), u.CreatedAt.UTC())
}

// UpdateUser refreshes the federated profile of a user. Keys of local users never change here.
func (q *queries) UpdateUser(ctx context.Context, u *domain.User) error {
	return q.execAffected(ctx, sqlUpdateUser, u.Username, u.DisplayName, u.Summary, u.Domain, u.Inbox, u.SharedInbox,
		u.Outbox, u.FollowersURL, u.PublicKey, u.LastFetchedAt.UTC(), u.Id)
}

func (q *queries) UserByApURL(ctx context.Context, apURL string) (*domain.User, error) {
	return scanUser(q.queryRow(ctx, sqlSelectUserByApURL, apURL))
}

func (q *queries) UserById(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(q.queryRow(ctx, sqlSelectUserById, id))
}

func (q *queries) LocalUserByName(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(q.queryRow(ctx, sqlSelectLocalUserByName, username, true))
}

func (q *queries) LocalUsers(ctx context.Context) ([]domain.User, error) {
	return q.users(ctx, sqlSelectLocalUsers, true)
}

func (q *queries) users(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user and everything it authored or took part in.
func (q *queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	rows, err := q.query(ctx, `SELECT id FROM comments WHERE author_id = ?`, id)
	if err != nil {
		return err
	}
	var comments []uuid.UUID
	for rows.Next() {
		var cid uuid.UUID
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return err
		}
		comments = append(comments, cid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, cid := range comments {
		if err := q.DeleteComment(ctx, cid); err != nil {
			return err
		}
	}

	for _, stmt := range []string{
		`DELETE FROM follows WHERE follower_id = ? OR following_id = ?`,
		`DELETE FROM notifications WHERE user_id = ? OR actor_id = ?`,
	} {
		if err := q.exec(ctx, stmt, id, id); err != nil {
			return err
		}
	}
	for _, stmt := range []string{
		`DELETE FROM likes WHERE user_id = ?`,
		`DELETE FROM reshares WHERE user_id = ?`,
		`DELETE FROM post_authors WHERE author_id = ?`,
		`DELETE FROM blog_authors WHERE author_id = ?`,
		`DELETE FROM api_tokens WHERE user_id = ?`,
	} {
		if err := q.exec(ctx, stmt, id); err != nil {
			return err
		}
	}
	return q.execAffected(ctx, `DELETE FROM users WHERE id = ?`, id)
}

func (q *queries) InsertBlog(ctx context.Context, b *domain.Blog) error {
	return q.exec(ctx, sqlInsertBlog, b.Id, b.Name, b.Title, b.Summary, b.Domain, b.ApURL, b.Inbox, b.SharedInbox,
		b.Outbox, b.FollowersURL, b.PublicKey, b.PrivateKey, b.Local, b.LastFetchedAt.UTC(), b.CreatedAt.UTC())
}

func (q *queries) UpdateBlog(ctx context.Context, b *domain.Blog) error {
	return q.execAffected(ctx, sqlUpdateBlog, b.Name, b.Title, b.Summary, b.Domain, b.Inbox, b.SharedInbox,
		b.Outbox, b.FollowersURL, b.PublicKey, b.LastFetchedAt.UTC(), b.Id)
}

func (q *queries) BlogByApURL(ctx context.Context, apURL string) (*domain.Blog, error) {
	return scanBlog(q.queryRow(ctx, sqlSelectBlogByApURL, apURL))
}

func (q *queries) BlogById(ctx context.Context, id uuid.UUID) (*domain.Blog, error) {
	return scanBlog(q.queryRow(ctx, sqlSelectBlogById, id))
}

func (q *queries) LocalBlogByName(ctx context.Context, name string) (*domain.Blog, error) {
	return scanBlog(q.queryRow(ctx, sqlSelectLocalBlogByName, name, true))
}

func (q *queries) AddBlogAuthor(ctx context.Context, blogId uuid.UUID, authorId uuid.UUID, owner bool) error {
	return q.exec(ctx, sqlInsertBlogAuthor, blogId, authorId, owner)
}

func (q *queries) IsBlogAuthor(ctx context.Context, blogId uuid.UUID, authorId uuid.UUID) (bool, error) {
	var n int
	if err := q.queryRow(ctx, sqlSelectBlogAuthor, blogId, authorId).Scan(&n); err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (q *queries) BlogAuthors(ctx context.Context, blogId uuid.UUID) ([]domain.User, error) {
	return q.users(ctx, sqlSelectBlogAuthors, blogId)
}

// CreateLocalUser stores a new local user owning keys.
func (db *DB) CreateLocalUser(ctx context.Context, domainName string, username string, displayName string, keys *activitypub.Keypair) (*domain.User, error) {
	apURL := util.UserURL(domainName, username)
	now := time.Now()
	u := &domain.User{
		Id:            uuid.New(),
		Username:      username,
		DisplayName:   displayName,
		Domain:        domainName,
		ApURL:         apURL,
		Inbox:         util.InboxURL(apURL),
		SharedInbox:   util.SharedInboxURL(domainName),
		Outbox:        util.OutboxURL(apURL),
		FollowersURL:  util.FollowersURL(apURL),
		PublicKey:     keys.PublicPEM,
		PrivateKey:    keys.PrivatePEM,
		Local:         true,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	if err := db.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateLocalBlog stores a new local blog owned by owner.
func (db *DB) CreateLocalBlog(ctx context.Context, domainName string, name string, title string, owner *domain.User, keys *activitypub.Keypair) (*domain.Blog, error) {
	apURL := util.BlogURL(domainName, name)
	now := time.Now()
	b := &domain.Blog{
		Id:            uuid.New(),
		Name:          name,
		Title:         title,
		Domain:        domainName,
		ApURL:         apURL,
		Inbox:         util.InboxURL(apURL),
		SharedInbox:   util.SharedInboxURL(domainName),
		Outbox:        util.OutboxURL(apURL),
		FollowersURL:  util.FollowersURL(apURL),
		PublicKey:     keys.PublicPEM,
		PrivateKey:    keys.PrivatePEM,
		Local:         true,
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertBlog(ctx, b); err != nil {
			return err
		}
		return tx.AddBlogAuthor(ctx, b.Id, owner.Id, true)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
