package db

import (
	"context"

	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

const (
	followColumns = `id, follower_id, following_id, ap_url, accepted, created_at`

	sqlInsertFollow        = `INSERT INTO follows(` + followColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowByApURL = `SELECT ` + followColumns + ` FROM follows WHERE ap_url = ?`
	sqlSelectFollowBetween = `SELECT ` + followColumns + ` FROM follows WHERE follower_id = ? AND following_id = ?`
	sqlAcceptFollow        = `UPDATE follows SET accepted = ? WHERE id = ?`
	sqlDeleteFollow        = `DELETE FROM follows WHERE id = ?`
	sqlCountFollowers      = `SELECT COUNT(*) FROM follows WHERE accepted = ? AND following_id = ?`

	interactionColumns = `id, user_id, post_id, ap_url, created_at`

	sqlInsertLike              = `INSERT INTO likes(` + interactionColumns + `) VALUES (?, ?, ?, ?, ?)`
	sqlSelectLikeByApURL       = `SELECT ` + interactionColumns + ` FROM likes WHERE ap_url = ?`
	sqlSelectLikeByUserPost    = `SELECT ` + interactionColumns + ` FROM likes WHERE user_id = ? AND post_id = ?`
	sqlInsertReshare           = `INSERT INTO reshares(` + interactionColumns + `) VALUES (?, ?, ?, ?, ?)`
	sqlSelectReshareByApURL    = `SELECT ` + interactionColumns + ` FROM reshares WHERE ap_url = ?`
	sqlSelectReshareByUserPost = `SELECT ` + interactionColumns + ` FROM reshares WHERE user_id = ? AND post_id = ?`
)

func scanFollow(row scanner) (*domain.Follow, error) {
	var f domain.Follow
	if err := row.Scan(&f.Id, &f.FollowerId, &f.FollowingId, &f.ApURL, &f.Accepted, &f.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (q *queries) InsertFollow(ctx context.Context, f *domain.Follow) error {
	return q.exec(ctx, sqlInsertFollow, f.Id, f.FollowerId, f.FollowingId, f.ApURL, f.Accepted, f.CreatedAt.UTC())
}

func (q *queries) FollowByApURL(ctx context.Context, apURL string) (*domain.Follow, error) {
	return scanFollow(q.queryRow(ctx, sqlSelectFollowByApURL, apURL))
}

func (q *queries) FollowBetween(ctx context.Context, followerId uuid.UUID, followingId uuid.UUID) (*domain.Follow, error) {
	return scanFollow(q.queryRow(ctx, sqlSelectFollowBetween, followerId, followingId))
}

func (q *queries) AcceptFollow(ctx context.Context, id uuid.UUID) error {
	return q.execAffected(ctx, sqlAcceptFollow, true, id)
}

func (q *queries) DeleteFollow(ctx context.Context, id uuid.UUID) error {
	return q.execAffected(ctx, sqlDeleteFollow, id)
}

// Followers returns the distinct users with an accepted follow on any of
// followingIds.
func (q *queries) Followers(ctx context.Context, followingIds ...uuid.UUID) ([]domain.User, error) {
	if len(followingIds) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(followingIds)+1)
	args = append(args, true)
	for _, id := range followingIds {
		args = append(args, id)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (SELECT follower_id FROM follows WHERE accepted = ? AND following_id IN (` +
		placeholders(len(followingIds)) + `)) ORDER BY username`
	return q.users(ctx, query, args...)
}

// Following returns the users a user follows, accepted or not.
func (q *queries) Following(ctx context.Context, followerId uuid.UUID) ([]domain.User, error) {
	return q.users(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (SELECT following_id FROM follows WHERE follower_id = ?) ORDER BY username`, followerId)
}

func (q *queries) CountFollowers(ctx context.Context, followingId uuid.UUID) (int, error) {
	var n int
	if err := q.queryRow(ctx, sqlCountFollowers, true, followingId).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func scanLike(row scanner) (*domain.Like, error) {
	var l domain.Like
	if err := row.Scan(&l.Id, &l.UserId, &l.PostId, &l.ApURL, &l.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (q *queries) InsertLike(ctx context.Context, l *domain.Like) error {
	return q.exec(ctx, sqlInsertLike, l.Id, l.UserId, l.PostId, l.ApURL, l.CreatedAt.UTC())
}

func (q *queries) LikeByApURL(ctx context.Context, apURL string) (*domain.Like, error) {
	return scanLike(q.queryRow(ctx, sqlSelectLikeByApURL, apURL))
}

func (q *queries) LikeByUserOnPost(ctx context.Context, userId uuid.UUID, postId uuid.UUID) (*domain.Like, error) {
	return scanLike(q.queryRow(ctx, sqlSelectLikeByUserPost, userId, postId))
}

func (q *queries) DeleteLike(ctx context.Context, id uuid.UUID) error {
	if err := q.exec(ctx, `DELETE FROM notifications WHERE object_id = ?`, id); err != nil {
		return err
	}
	return q.execAffected(ctx, `DELETE FROM likes WHERE id = ?`, id)
}

func scanReshare(row scanner) (*domain.Reshare, error) {
	var r domain.Reshare
	if err := row.Scan(&r.Id, &r.UserId, &r.PostId, &r.ApURL, &r.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (q *queries) InsertReshare(ctx context.Context, r *domain.Reshare) error {
	return q.exec(ctx, sqlInsertReshare, r.Id, r.UserId, r.PostId, r.ApURL, r.CreatedAt.UTC())
}

func (q *queries) ReshareByApURL(ctx context.Context, apURL string) (*domain.Reshare, error) {
	return scanReshare(q.queryRow(ctx, sqlSelectReshareByApURL, apURL))
}

func (q *queries) ReshareByUserOnPost(ctx context.Context, userId uuid.UUID, postId uuid.UUID) (*domain.Reshare, error) {
	return scanReshare(q.queryRow(ctx, sqlSelectReshareByUserPost, userId, postId))
}

func (q *queries) DeleteReshare(ctx context.Context, id uuid.UUID) error {
	if err := q.exec(ctx, `DELETE FROM notifications WHERE object_id = ?`, id); err != nil {
		return err
	}
	return q.execAffected(ctx, `DELETE FROM reshares WHERE id = ?`, id)
}
