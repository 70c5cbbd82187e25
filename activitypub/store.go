package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

// Store runs fn in a single transaction. fn's error rolls it back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence surface the federation engine needs. Lookups
// return domain.ErrNotFound when nothing matches; inserts return
// domain.ErrDuplicate on unique violations.
type Tx interface {
	UserByApURL(ctx context.Context, apURL string) (*domain.User, error)
	UserById(ctx context.Context, id uuid.UUID) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	BlogByApURL(ctx context.Context, apURL string) (*domain.Blog, error)
	BlogById(ctx context.Context, id uuid.UUID) (*domain.Blog, error)
	InsertBlog(ctx context.Context, b *domain.Blog) error
	UpdateBlog(ctx context.Context, b *domain.Blog) error

	PostByApURL(ctx context.Context, apURL string) (*domain.Post, error)
	PostById(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	PostBySlug(ctx context.Context, blogId uuid.UUID, slug string) (*domain.Post, error)
	InsertPost(ctx context.Context, p *domain.Post) error
	UpdatePost(ctx context.Context, p *domain.Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	AddPostAuthor(ctx context.Context, postId uuid.UUID, userId uuid.UUID) error
	PostAuthors(ctx context.Context, postId uuid.UUID) ([]domain.User, error)
	ReplaceTags(ctx context.Context, postId uuid.UUID, tags []domain.Tag) error
	PostTags(ctx context.Context, postId uuid.UUID) ([]domain.Tag, error)
	InsertMedia(ctx context.Context, m *domain.Media) error
	MediaById(ctx context.Context, id uuid.UUID) (*domain.Media, error)

	CommentByApURL(ctx context.Context, apURL string) (*domain.Comment, error)
	CommentById(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	InsertComment(ctx context.Context, c *domain.Comment) error
	DeleteComment(ctx context.Context, id uuid.UUID) error

	FollowByApURL(ctx context.Context, apURL string) (*domain.Follow, error)
	FollowBetween(ctx context.Context, followerId uuid.UUID, followingId uuid.UUID) (*domain.Follow, error)
	InsertFollow(ctx context.Context, f *domain.Follow) error
	AcceptFollow(ctx context.Context, id uuid.UUID) error
	DeleteFollow(ctx context.Context, id uuid.UUID) error
	// Followers returns the users following any of the given users or blogs.
	Followers(ctx context.Context, followingIds ...uuid.UUID) ([]domain.User, error)

	LikeByApURL(ctx context.Context, apURL string) (*domain.Like, error)
	LikeByUserOnPost(ctx context.Context, userId uuid.UUID, postId uuid.UUID) (*domain.Like, error)
	InsertLike(ctx context.Context, l *domain.Like) error
	DeleteLike(ctx context.Context, id uuid.UUID) error

	ReshareByApURL(ctx context.Context, apURL string) (*domain.Reshare, error)
	ReshareByUserOnPost(ctx context.Context, userId uuid.UUID, postId uuid.UUID) (*domain.Reshare, error)
	InsertReshare(ctx context.Context, r *domain.Reshare) error
	DeleteReshare(ctx context.Context, id uuid.UUID) error
}

// lookup turns domain.ErrNotFound into found == false.
func lookup[T any](v *T, err error) (*T, bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
