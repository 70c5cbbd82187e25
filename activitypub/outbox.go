package activitypub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/util"
	"github.com/google/uuid"
)

// PostDraft is the author supplied content of a new or edited post.
type PostDraft struct {
	Title    string
	Subtitle string
	Content  string
	Source   string
	License  string
	Tags     []string
	CoverURL string
	CoverAlt string
}

// Outbox applies local mutations and broadcasts the matching activities
// once they are committed.
type Outbox struct {
	store      Store
	resolver   *Resolver
	dispatcher *Dispatcher
	domain     string
}

func NewOutbox(store Store, resolver *Resolver, dispatcher *Dispatcher, localDomain string) *Outbox {
	return &Outbox{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		domain:     localDomain,
	}
}

// PublishPost creates a post by author in blog and sends a Create(Article).
func (o *Outbox) PublishPost(ctx context.Context, author *domain.User, blog *domain.Blog, draft PostDraft) (*domain.Post, error) {
	signer, err := SignerFromPEM(author.ApURL, author.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("author cannot sign: %w", err)
	}

	var post *domain.Post
	var article *Article
	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		slug, err := uniqueSlug(ctx, tx, blog.Id, draft.Title)
		if err != nil {
			return err
		}
		post = &domain.Post{
			Id:               uuid.New(),
			BlogId:           blog.Id,
			Slug:             slug,
			Published:        true,
			ApURL:            util.PostURL(o.domain, blog.Name, slug),
			PublicVisibility: true,
			CreatedAt:        time.Now(),
		}
		applyDraft(post, draft)
		if err := o.setCover(ctx, tx, post, author, draft); err != nil {
			return err
		}
		if err := tx.InsertPost(ctx, post); err != nil {
			return err
		}
		if err := tx.AddPostAuthor(ctx, post.Id, author.Id); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, post.Id, draftTags(draft.Tags, post.Id)); err != nil {
			return err
		}
		article, recipients, err = o.article(ctx, tx, post)
		return err
	})
	if err != nil {
		return nil, err
	}

	create := Activity{
		ID:        Id(post.ApURL + "activity"),
		Type:      KindCreate,
		Actor:     Id(author.ApURL),
		Object:    mustMarshal(article),
		To:        article.To,
		CC:        article.CC,
		Published: article.Published,
	}
	o.broadcast(ctx, signer, create, recipients)
	return post, nil
}

// UpdatePost edits a post of author and sends an Update(Article).
func (o *Outbox) UpdatePost(ctx context.Context, author *domain.User, post *domain.Post, draft PostDraft) (*domain.Post, error) {
	signer, err := SignerFromPEM(author.ApURL, author.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("author cannot sign: %w", err)
	}

	var article *Article
	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		if err := o.requireAuthor(ctx, tx, post, author); err != nil {
			return err
		}
		edited := time.Now()
		applyDraft(post, draft)
		post.EditedAt = &edited
		if err := o.setCover(ctx, tx, post, author, draft); err != nil {
			return err
		}
		if err := tx.UpdatePost(ctx, post); err != nil {
			return err
		}
		if err := tx.ReplaceTags(ctx, post.Id, draftTags(draft.Tags, post.Id)); err != nil {
			return err
		}
		article, recipients, err = o.article(ctx, tx, post)
		return err
	})
	if err != nil {
		return nil, err
	}

	article.Updated = post.EditedAt.UTC().Format(time.RFC3339)
	update := Activity{
		ID:     Id(fmt.Sprintf("%supdate-%d", post.ApURL, post.EditedAt.Unix())),
		Type:   KindUpdate,
		Actor:  Id(author.ApURL),
		Object: mustMarshal(article),
		To:     article.To,
		CC:     article.CC,
	}
	o.broadcast(ctx, signer, update, recipients)
	return post, nil
}

// DeletePost removes a post of author and sends a Delete(Tombstone).
func (o *Outbox) DeletePost(ctx context.Context, author *domain.User, post *domain.Post) error {
	signer, err := SignerFromPEM(author.ApURL, author.PrivateKey)
	if err != nil {
		return fmt.Errorf("author cannot sign: %w", err)
	}

	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		if err := o.requireAuthor(ctx, tx, post, author); err != nil {
			return err
		}
		recipients, err = o.postAudience(ctx, tx, post)
		if err != nil {
			return err
		}
		return tx.DeletePost(ctx, post.Id)
	})
	if err != nil {
		return err
	}

	del := Activity{
		ID:     Id(post.ApURL + "#delete"),
		Type:   KindDelete,
		Actor:  Id(author.ApURL),
		Object: mustMarshal(Tombstone{ID: Id(post.ApURL), Type: ObjectTombstone}),
		To:     Audience{PublicVisibility},
	}
	o.broadcast(ctx, signer, del, recipients)
	return nil
}

// Like records that user likes post and sends a Like. Liking twice is a no-op.
func (o *Outbox) Like(ctx context.Context, user *domain.User, post *domain.Post) (*domain.Like, error) {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("user cannot sign: %w", err)
	}

	var like *domain.Like
	var recipients []Recipient
	fresh := false
	err = o.store.WithTx(ctx, func(tx Tx) error {
		existing, found, err := lookup(tx.LikeByUserOnPost(ctx, user.Id, post.Id))
		if err != nil || found {
			like = existing
			return err
		}
		like = &domain.Like{
			Id:        uuid.New(),
			UserId:    user.Id,
			PostId:    post.Id,
			ApURL:     util.ActivityURL(user.ApURL, "like"),
			CreatedAt: time.Now(),
		}
		if err := tx.InsertLike(ctx, like); err != nil {
			return err
		}
		fresh = true
		recipients, err = o.interactionAudience(ctx, tx, post)
		return err
	})
	if err != nil || !fresh {
		return like, err
	}

	o.broadcast(ctx, signer, likeActivity(like, user, post), recipients)
	return like, nil
}

// Unlike removes user's like of post and sends Undo(Like).
func (o *Outbox) Unlike(ctx context.Context, user *domain.User, post *domain.Post) error {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return fmt.Errorf("user cannot sign: %w", err)
	}

	var like *domain.Like
	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		like, err = tx.LikeByUserOnPost(ctx, user.Id, post.Id)
		if err != nil {
			return err
		}
		if err := tx.DeleteLike(ctx, like.Id); err != nil {
			return err
		}
		recipients, err = o.interactionAudience(ctx, tx, post)
		return err
	})
	if err != nil {
		return err
	}

	o.broadcast(ctx, signer, undo(likeActivity(like, user, post), user), recipients)
	return nil
}

// Reshare records that user reshares post and sends an Announce.
func (o *Outbox) Reshare(ctx context.Context, user *domain.User, post *domain.Post) (*domain.Reshare, error) {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("user cannot sign: %w", err)
	}

	var reshare *domain.Reshare
	var recipients []Recipient
	fresh := false
	err = o.store.WithTx(ctx, func(tx Tx) error {
		existing, found, err := lookup(tx.ReshareByUserOnPost(ctx, user.Id, post.Id))
		if err != nil || found {
			reshare = existing
			return err
		}
		reshare = &domain.Reshare{
			Id:        uuid.New(),
			UserId:    user.Id,
			PostId:    post.Id,
			ApURL:     util.ActivityURL(user.ApURL, "reshare"),
			CreatedAt: time.Now(),
		}
		if err := tx.InsertReshare(ctx, reshare); err != nil {
			return err
		}
		fresh = true
		recipients, err = o.interactionAudience(ctx, tx, post)
		return err
	})
	if err != nil || !fresh {
		return reshare, err
	}

	o.broadcast(ctx, signer, announceActivity(reshare, user, post), recipients)
	return reshare, nil
}

// Unreshare removes user's reshare of post and sends Undo(Announce).
func (o *Outbox) Unreshare(ctx context.Context, user *domain.User, post *domain.Post) error {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return fmt.Errorf("user cannot sign: %w", err)
	}

	var reshare *domain.Reshare
	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		reshare, err = tx.ReshareByUserOnPost(ctx, user.Id, post.Id)
		if err != nil {
			return err
		}
		if err := tx.DeleteReshare(ctx, reshare.Id); err != nil {
			return err
		}
		recipients, err = o.interactionAudience(ctx, tx, post)
		return err
	})
	if err != nil {
		return err
	}

	o.broadcast(ctx, signer, undo(announceActivity(reshare, user, post), user), recipients)
	return nil
}

// Comment answers post, or parent when given, and sends a Create(Note).
func (o *Outbox) Comment(ctx context.Context, user *domain.User, post *domain.Post, parent *domain.Comment, content string, spoiler string) (*domain.Comment, error) {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("user cannot sign: %w", err)
	}

	var comment *domain.Comment
	var note *Note
	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		id := uuid.New()
		comment = &domain.Comment{
			Id:               id,
			Content:          content,
			PostId:           post.Id,
			AuthorId:         user.Id,
			ApURL:            util.CommentURL(post.ApURL, id),
			Sensitive:        spoiler != "",
			SpoilerText:      spoiler,
			PublicVisibility: true,
			CreatedAt:        time.Now(),
		}
		inReplyTo := post.ApURL
		if parent != nil {
			comment.InResponseToId = &parent.Id
			inReplyTo = parent.ApURL
		}
		if err := tx.InsertComment(ctx, comment); err != nil {
			return err
		}

		recipients, err = o.interactionAudience(ctx, tx, post)
		if err != nil {
			return err
		}
		if parent != nil {
			parentAuthor, err := tx.UserById(ctx, parent.AuthorId)
			if err != nil {
				return err
			}
			recipients = append(recipients, parentAuthor)
		}
		note = commentNote(comment, user, Id(inReplyTo))
		return nil
	})
	if err != nil {
		return nil, err
	}

	create := Activity{
		ID:        Id(comment.ApURL + "/activity"),
		Type:      KindCreate,
		Actor:     Id(user.ApURL),
		Object:    mustMarshal(note),
		To:        note.To,
		CC:        note.CC,
		Published: note.Published,
	}
	o.broadcast(ctx, signer, create, recipients)
	return comment, nil
}

// DeleteComment removes a comment written by user and sends a Delete.
func (o *Outbox) DeleteComment(ctx context.Context, user *domain.User, comment *domain.Comment) error {
	if comment.AuthorId != user.Id {
		return ErrForbidden
	}
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return fmt.Errorf("user cannot sign: %w", err)
	}

	var recipients []Recipient
	err = o.store.WithTx(ctx, func(tx Tx) error {
		post, err := tx.PostById(ctx, comment.PostId)
		if err != nil {
			return err
		}
		recipients, err = o.interactionAudience(ctx, tx, post)
		if err != nil {
			return err
		}
		return tx.DeleteComment(ctx, comment.Id)
	})
	if err != nil {
		return err
	}

	del := Activity{
		ID:     Id(comment.ApURL + "#delete"),
		Type:   KindDelete,
		Actor:  Id(user.ApURL),
		Object: mustMarshal(Tombstone{ID: Id(comment.ApURL), Type: ObjectTombstone}),
		To:     Audience{PublicVisibility},
	}
	o.broadcast(ctx, signer, del, recipients)
	return nil
}

// Follow makes user follow the actor target. Remote follows stay pending
// until the target sends an Accept.
func (o *Outbox) Follow(ctx context.Context, user *domain.User, target Id) (*domain.Follow, error) {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("user cannot sign: %w", err)
	}

	var follow *domain.Follow
	var followed Actor
	fresh := false
	err = o.store.WithTx(ctx, func(tx Tx) error {
		followed, err = o.resolver.Actor(ctx, tx, target)
		if err != nil {
			return err
		}
		if followed.Id() == user.Id {
			return ErrForbidden
		}
		existing, found, err := lookup(tx.FollowBetween(ctx, user.Id, followed.Id()))
		if err != nil || found {
			follow = existing
			return err
		}
		follow = &domain.Follow{
			Id:          uuid.New(),
			FollowerId:  user.Id,
			FollowingId: followed.Id(),
			ApURL:       util.ActivityURL(user.ApURL, "follows"),
			Accepted:    followed.IsLocal(),
			CreatedAt:   time.Now(),
		}
		fresh = true
		return tx.InsertFollow(ctx, follow)
	})
	if err != nil || !fresh || followed.IsLocal() {
		return follow, err
	}

	o.broadcast(ctx, signer, followActivity(follow, user.ApURL, followed.ApURL()), []Recipient{followed.Recipient()})
	return follow, nil
}

// Unfollow ends user's follow of target and sends Undo(Follow) to remote targets.
func (o *Outbox) Unfollow(ctx context.Context, user *domain.User, target Id) error {
	signer, err := SignerFromPEM(user.ApURL, user.PrivateKey)
	if err != nil {
		return fmt.Errorf("user cannot sign: %w", err)
	}

	var follow *domain.Follow
	var followed Actor
	err = o.store.WithTx(ctx, func(tx Tx) error {
		followed, err = o.resolver.cachedActor(ctx, tx, target)
		if err != nil {
			return err
		}
		if !followed.found() {
			return domain.ErrNotFound
		}
		follow, err = tx.FollowBetween(ctx, user.Id, followed.Id())
		if err != nil {
			return err
		}
		return tx.DeleteFollow(ctx, follow.Id)
	})
	if err != nil || followed.IsLocal() {
		return err
	}

	o.broadcast(ctx, signer, undo(followActivity(follow, user.ApURL, followed.ApURL()), user), []Recipient{followed.Recipient()})
	return nil
}

// Accept answers a follow of a local user or blog.
func (o *Outbox) Accept(ctx context.Context, follow *domain.Follow) error {
	var target Actor
	var follower *domain.User
	err := o.store.WithTx(ctx, func(tx Tx) error {
		var err error
		if target, err = actorById(ctx, tx, follow.FollowingId); err != nil {
			return err
		}
		follower, err = tx.UserById(ctx, follow.FollowerId)
		return err
	})
	if err != nil {
		return err
	}
	if !target.IsLocal() || follower.Local || o.dispatcher == nil {
		return nil
	}

	signer, err := SignerFromPEM(target.ApURL(), target.privateKey())
	if err != nil {
		return fmt.Errorf("target cannot sign: %w", err)
	}

	accept := Activity{
		ID:     Id(util.ActivityURL(target.ApURL(), "accept")),
		Type:   KindAccept,
		Actor:  Id(target.ApURL()),
		Object: mustMarshal(followActivity(follow, follower.ApURL, target.ApURL())),
		To:     Audience{Id(follower.ApURL)},
	}
	report := o.dispatcher.Broadcast(ctx, signer, accept, []Recipient{follower})
	if report.Failed > 0 {
		return fmt.Errorf("accept not delivered to %s", follower.ApURL)
	}
	return nil
}

// LocalSigner returns the signer of the local user or blog owning keyID.
func (o *Outbox) LocalSigner(ctx context.Context, keyID string) (Signer, error) {
	var signer Signer
	err := o.store.WithTx(ctx, func(tx Tx) error {
		a, err := o.resolver.cachedActor(ctx, tx, KeyOwner(keyID))
		if err != nil {
			return err
		}
		if !a.found() || !a.IsLocal() {
			return domain.ErrNotFound
		}
		signer, err = SignerFromPEM(a.ApURL(), a.privateKey())
		return err
	})
	return signer, err
}

// article renders a post as an ActivityPub Article along with the
// followers that should receive it.
func (o *Outbox) article(ctx context.Context, tx Tx, post *domain.Post) (*Article, []Recipient, error) {
	blog, err := tx.BlogById(ctx, post.BlogId)
	if err != nil {
		return nil, nil, err
	}
	authors, err := tx.PostAuthors(ctx, post.Id)
	if err != nil {
		return nil, nil, err
	}
	tags, err := tx.PostTags(ctx, post.Id)
	if err != nil {
		return nil, nil, err
	}

	a := &Article{
		ID:        Id(post.ApURL),
		Type:      ObjectArticle,
		Name:      post.Title,
		Summary:   post.Subtitle,
		Content:   post.Content,
		Published: post.CreatedAt.UTC().Format(time.RFC3339),
		URL:       post.ApURL,
		License:   post.License,
		To:        Audience{PublicVisibility},
		CC:        Audience{Id(blog.FollowersURL)},
	}
	if post.Source != "" {
		a.Source = &Source{Content: post.Source, MediaType: "text/markdown"}
	}
	for _, author := range authors {
		a.AttributedTo = append(a.AttributedTo, Id(author.ApURL))
	}
	a.AttributedTo = append(a.AttributedTo, Id(blog.ApURL))
	for _, t := range tags {
		a.Tag = append(a.Tag, Hashtag{Type: "Hashtag", Href: util.TagURL(o.domain, t.Tag), Name: "#" + t.Tag})
	}
	if post.CoverId != nil {
		m, err := tx.MediaById(ctx, *post.CoverId)
		if err != nil {
			return nil, nil, err
		}
		a.Icon = &Image{
			Type:      "Image",
			URL:       m.RemoteURL,
			Content:   m.AltText,
			Summary:   m.ContentWarning,
			Sensitive: m.Sensitive,
		}
	}

	recipients, err := o.followersOf(ctx, tx, blog.Id, authors)
	if err != nil {
		return nil, nil, err
	}
	return a, recipients, nil
}

// postAudience is everyone following the post's blog or one of its authors.
func (o *Outbox) postAudience(ctx context.Context, tx Tx, post *domain.Post) ([]Recipient, error) {
	authors, err := tx.PostAuthors(ctx, post.Id)
	if err != nil {
		return nil, err
	}
	return o.followersOf(ctx, tx, post.BlogId, authors)
}

// interactionAudience adds the post's own authors to its audience.
func (o *Outbox) interactionAudience(ctx context.Context, tx Tx, post *domain.Post) ([]Recipient, error) {
	authors, err := tx.PostAuthors(ctx, post.Id)
	if err != nil {
		return nil, err
	}
	recipients, err := o.followersOf(ctx, tx, post.BlogId, authors)
	if err != nil {
		return nil, err
	}
	for idx := range authors {
		recipients = append(recipients, &authors[idx])
	}
	return recipients, nil
}

func (o *Outbox) followersOf(ctx context.Context, tx Tx, blogId uuid.UUID, authors []domain.User) ([]Recipient, error) {
	ids := []uuid.UUID{blogId}
	for _, a := range authors {
		ids = append(ids, a.Id)
	}
	followers, err := tx.Followers(ctx, ids...)
	if err != nil {
		return nil, err
	}
	recipients := make([]Recipient, 0, len(followers))
	for idx := range followers {
		recipients = append(recipients, &followers[idx])
	}
	return recipients, nil
}

func (o *Outbox) requireAuthor(ctx context.Context, tx Tx, post *domain.Post, author *domain.User) error {
	authors, err := tx.PostAuthors(ctx, post.Id)
	if err != nil {
		return err
	}
	for _, a := range authors {
		if a.Id == author.Id {
			return nil
		}
	}
	return ErrForbidden
}

func (o *Outbox) setCover(ctx context.Context, tx Tx, post *domain.Post, owner *domain.User, draft PostDraft) error {
	if draft.CoverURL == "" {
		return nil
	}
	m := &domain.Media{
		Id:        uuid.New(),
		RemoteURL: draft.CoverURL,
		AltText:   draft.CoverAlt,
		OwnerId:   owner.Id,
		CreatedAt: time.Now(),
	}
	if err := tx.InsertMedia(ctx, m); err != nil {
		return err
	}
	post.CoverId = &m.Id
	return nil
}

func (o *Outbox) broadcast(ctx context.Context, sender Signer, activity Activity, recipients []Recipient) {
	if o.dispatcher == nil {
		return
	}
	o.dispatcher.Broadcast(ctx, sender, activity, recipients)
}

func applyDraft(post *domain.Post, draft PostDraft) {
	post.Title = draft.Title
	post.Subtitle = draft.Subtitle
	post.Content = draft.Content
	post.Source = draft.Source
	post.License = draft.License
}

func draftTags(tags []string, postId uuid.UUID) []domain.Tag {
	var out []domain.Tag
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			continue
		}
		out = append(out, domain.Tag{Id: uuid.New(), Tag: t, IsHashtag: true, PostId: postId})
	}
	return out
}

func likeActivity(like *domain.Like, user *domain.User, post *domain.Post) Activity {
	return Activity{
		ID:     Id(like.ApURL),
		Type:   KindLike,
		Actor:  Id(user.ApURL),
		Object: mustMarshal(post.ApURL),
		To:     Audience{PublicVisibility},
		CC:     Audience{Id(user.FollowersURL)},
	}
}

func announceActivity(reshare *domain.Reshare, user *domain.User, post *domain.Post) Activity {
	return Activity{
		ID:        Id(reshare.ApURL),
		Type:      KindAnnounce,
		Actor:     Id(user.ApURL),
		Object:    mustMarshal(post.ApURL),
		To:        Audience{PublicVisibility},
		CC:        Audience{Id(user.FollowersURL)},
		Published: reshare.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func followActivity(follow *domain.Follow, follower string, target string) Activity {
	return Activity{
		ID:     Id(follow.ApURL),
		Type:   KindFollow,
		Actor:  Id(follower),
		Object: mustMarshal(target),
		To:     Audience{Id(target)},
	}
}

func undo(inner Activity, user *domain.User) Activity {
	return Activity{
		ID:     inner.ID + "/undo",
		Type:   KindUndo,
		Actor:  Id(user.ApURL),
		Object: mustMarshal(inner),
		To:     inner.To,
		CC:     inner.CC,
	}
}

func commentNote(c *domain.Comment, author *domain.User, inReplyTo Id) *Note {
	return &Note{
		ID:           Id(c.ApURL),
		Type:         ObjectNote,
		Content:      c.Content,
		Summary:      c.SpoilerText,
		Sensitive:    c.Sensitive,
		InReplyTo:    inReplyTo,
		AttributedTo: Audience{Id(author.ApURL)},
		Published:    c.CreatedAt.UTC().Format(time.RFC3339),
		To:           Audience{PublicVisibility},
		CC:           Audience{Id(author.FollowersURL)},
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := serialize(v)
	if err != nil {
		log.Errorf("Outbox: Could not encode %T: %v", v, err)
		return []byte("null")
	}
	return b
}
