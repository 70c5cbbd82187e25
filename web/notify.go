package web

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/db"
	"github.com/deemkeen/quill/domain"
	"github.com/google/uuid"
)

// notify stores the notifications caused by an inbox result. Failures are
// logged only; the activity itself is already committed. A redelivered
// activity maps to notifications that already exist and are skipped.
func (s *Server) notify(ctx context.Context, result activitypub.InboxResult) {
	var notes []domain.Notification
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		notes, err = notificationsFor(ctx, tx, result)
		return err
	})
	if err != nil {
		log.Warnf("Notifications: Could not resolve recipients for %s: %v", activitypub.ResultName(result), err)
		return
	}
	for idx := range notes {
		err := s.db.InsertNotification(ctx, &notes[idx])
		if err != nil && !errors.Is(err, domain.ErrDuplicate) {
			log.Warnf("Notifications: Could not store %s for %s: %v", notes[idx].Kind, notes[idx].UserId, err)
		}
	}
}

// notificationsFor lists one notification per local user affected by result.
// Nobody is notified about their own actions.
func notificationsFor(ctx context.Context, tx *db.Tx, result activitypub.InboxResult) ([]domain.Notification, error) {
	var (
		kind       domain.NotificationKind
		objectId   uuid.UUID
		actorId    uuid.UUID
		recipients []domain.User
		err        error
	)

	switch r := result.(type) {
	case activitypub.Followed:
		kind, objectId, actorId = domain.NotificationFollow, r.Follow.Id, r.Follow.FollowerId
		recipients, err = followTargets(ctx, tx, r.Follow.FollowingId)
	case activitypub.Liked:
		kind, objectId, actorId = domain.NotificationLike, r.Like.Id, r.Like.UserId
		recipients, err = tx.PostAuthors(ctx, r.Like.PostId)
	case activitypub.Reshared:
		kind, objectId, actorId = domain.NotificationReshare, r.Reshare.Id, r.Reshare.UserId
		recipients, err = tx.PostAuthors(ctx, r.Reshare.PostId)
	case activitypub.Commented:
		kind, objectId, actorId = domain.NotificationComment, r.Comment.Id, r.Comment.AuthorId
		recipients, err = commentTargets(ctx, tx, r.Comment)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var notes []domain.Notification
	for _, u := range recipients {
		if !u.Local || u.Id == actorId || seen[u.Id] {
			continue
		}
		seen[u.Id] = true
		notes = append(notes, domain.Notification{
			Id:        uuid.New(),
			UserId:    u.Id,
			Kind:      kind,
			ObjectId:  objectId,
			ActorId:   actorId,
			CreatedAt: time.Now(),
		})
	}
	return notes, nil
}

// followTargets is the followed user, or the authors of a followed blog.
func followTargets(ctx context.Context, tx *db.Tx, followingId uuid.UUID) ([]domain.User, error) {
	u, err := tx.UserById(ctx, followingId)
	if err == nil {
		return []domain.User{*u}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return tx.BlogAuthors(ctx, followingId)
}

// commentTargets is the post's authors plus the author of the replied-to comment.
func commentTargets(ctx context.Context, tx *db.Tx, c *domain.Comment) ([]domain.User, error) {
	users, err := tx.PostAuthors(ctx, c.PostId)
	if err != nil {
		return nil, err
	}
	if c.InResponseToId == nil {
		return users, nil
	}
	parent, err := tx.CommentById(ctx, *c.InResponseToId)
	if err != nil {
		return nil, err
	}
	author, err := tx.UserById(ctx, parent.AuthorId)
	if err != nil {
		return nil, err
	}
	return append(users, *author), nil
}
