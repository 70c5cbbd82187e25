package activitypub

import (
	"context"

	"github.com/deemkeen/quill/domain"
)

// UserDocument renders a local user as a Person.
func UserDocument(u *domain.User) *ActorObject {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return &ActorObject{
		Context:           Context(),
		ID:                Id(u.ApURL),
		Type:              ObjectPerson,
		PreferredUsername: u.Username,
		Name:              name,
		Summary:           u.Summary,
		URL:               u.ApURL,
		Inbox:             u.Inbox,
		Outbox:            u.Outbox,
		Followers:         u.FollowersURL,
		Endpoints:         &Endpoints{SharedInbox: u.SharedInbox},
		PublicKey: PublicKey{
			ID:           KeyIDFor(u.ApURL),
			Owner:        u.ApURL,
			PublicKeyPem: u.PublicKey,
		},
	}
}

// BlogDocument renders a local blog as a Group.
func BlogDocument(b *domain.Blog) *ActorObject {
	name := b.Title
	if name == "" {
		name = b.Name
	}
	return &ActorObject{
		Context:           Context(),
		ID:                Id(b.ApURL),
		Type:              ObjectGroup,
		PreferredUsername: b.Name,
		Name:              name,
		Summary:           b.Summary,
		URL:               b.ApURL,
		Inbox:             b.Inbox,
		Outbox:            b.Outbox,
		Followers:         b.FollowersURL,
		Endpoints:         &Endpoints{SharedInbox: b.SharedInbox},
		PublicKey: PublicKey{
			ID:           KeyIDFor(b.ApURL),
			Owner:        b.ApURL,
			PublicKeyPem: b.PublicKey,
		},
	}
}

// Article renders a stored post the same way it was federated.
func (o *Outbox) Article(ctx context.Context, post *domain.Post) (*Article, error) {
	var article *Article
	err := o.store.WithTx(ctx, func(tx Tx) error {
		a, _, err := o.article(ctx, tx, post)
		article = a
		return err
	})
	if err != nil {
		return nil, err
	}
	article.Context = Context()
	return article, nil
}
