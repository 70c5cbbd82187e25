package db

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Schema shared by sqlite and postgres. Ids are uuid strings, optional
// references are NULL, text columns default to ''.
const (
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		inbox TEXT NOT NULL,
		shared_inbox TEXT NOT NULL DEFAULT '',
		outbox TEXT NOT NULL DEFAULT '',
		followers_url TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL,
		private_key TEXT NOT NULL DEFAULT '',
		is_local BOOLEAN NOT NULL DEFAULT FALSE,
		last_fetched_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(username, domain)
	)`

	sqlCreateBlogsTable = `CREATE TABLE IF NOT EXISTS blogs (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		inbox TEXT NOT NULL,
		shared_inbox TEXT NOT NULL DEFAULT '',
		outbox TEXT NOT NULL DEFAULT '',
		followers_url TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL,
		private_key TEXT NOT NULL DEFAULT '',
		is_local BOOLEAN NOT NULL DEFAULT FALSE,
		last_fetched_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(name, domain)
	)`

	sqlCreateBlogAuthorsTable = `CREATE TABLE IF NOT EXISTS blog_authors (
		blog_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		is_owner BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY(blog_id, author_id)
	)`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		blog_id TEXT NOT NULL,
		slug TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		subtitle TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		license TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT TRUE,
		ap_url TEXT UNIQUE NOT NULL,
		cover_id TEXT,
		public_visibility BOOLEAN NOT NULL DEFAULT TRUE,
		audience TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		edited_at TIMESTAMP,
		UNIQUE(blog_id, slug)
	)`

	sqlCreatePostAuthorsTable = `CREATE TABLE IF NOT EXISTS post_authors (
		post_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		PRIMARY KEY(post_id, author_id)
	)`

	sqlCreateTagsTable = `CREATE TABLE IF NOT EXISTS tags (
		id TEXT NOT NULL PRIMARY KEY,
		tag TEXT NOT NULL,
		is_hashtag BOOLEAN NOT NULL DEFAULT FALSE,
		post_id TEXT NOT NULL
	)`

	sqlCreateMediasTable = `CREATE TABLE IF NOT EXISTS medias (
		id TEXT NOT NULL PRIMARY KEY,
		remote_url TEXT NOT NULL,
		alt_text TEXT NOT NULL DEFAULT '',
		sensitive BOOLEAN NOT NULL DEFAULT FALSE,
		content_warning TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		content TEXT NOT NULL DEFAULT '',
		in_response_to_id TEXT,
		post_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		sensitive BOOLEAN NOT NULL DEFAULT FALSE,
		spoiler_text TEXT NOT NULL DEFAULT '',
		public_visibility BOOLEAN NOT NULL DEFAULT TRUE,
		audience TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	)`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		follower_id TEXT NOT NULL,
		following_id TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		accepted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(follower_id, following_id)
	)`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, post_id)
	)`

	sqlCreateResharesTable = `CREATE TABLE IF NOT EXISTS reshares (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		ap_url TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, post_id)
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		object_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`

	sqlCreateApiTokensTable = `CREATE TABLE IF NOT EXISTS api_tokens (
		id TEXT NOT NULL PRIMARY KEY,
		value TEXT UNIQUE NOT NULL,
		scopes TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox TEXT NOT NULL,
		key_id TEXT NOT NULL,
		activity TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`
)

var tables = []struct {
	name   string
	create string
}{
	{"users", sqlCreateUsersTable},
	{"blogs", sqlCreateBlogsTable},
	{"blog_authors", sqlCreateBlogAuthorsTable},
	{"posts", sqlCreatePostsTable},
	{"post_authors", sqlCreatePostAuthorsTable},
	{"tags", sqlCreateTagsTable},
	{"medias", sqlCreateMediasTable},
	{"comments", sqlCreateCommentsTable},
	{"follows", sqlCreateFollowsTable},
	{"likes", sqlCreateLikesTable},
	{"reshares", sqlCreateResharesTable},
	{"notifications", sqlCreateNotificationsTable},
	{"api_tokens", sqlCreateApiTokensTable},
	{"delivery_queue", sqlCreateDeliveryQueueTable},
}

var indices = []string{
	`CREATE INDEX IF NOT EXISTS idx_posts_blog_id ON posts(blog_id)`,
	`CREATE INDEX IF NOT EXISTS idx_post_authors_author_id ON post_authors(author_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_post_id ON tags(post_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_in_response_to_id ON comments(in_response_to_id)`,
	`CREATE INDEX IF NOT EXISTS idx_follows_following_id ON follows(following_id)`,
	`CREATE INDEX IF NOT EXISTS idx_likes_post_id ON likes(post_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reshares_post_id ON reshares(post_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_once ON notifications(user_id, kind, object_id)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at)`,
}

// RunMigrations creates all tables and indices
func (db *DB) RunMigrations() error {
	log.Debug("Running migrations...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return db.WithTx(ctx, func(tx *Tx) error {
		for _, t := range tables {
			if err := tx.exec(ctx, t.create); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.name, err)
			}
		}
		for _, idx := range indices {
			if err := tx.exec(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
		return nil
	})
}
