package activitypub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/deemkeen/quill/util"
	"github.com/google/uuid"
)

// maxReplyDepth bounds how many unknown ancestors of a comment are fetched.
const maxReplyDepth = 8

type handler func(i *Inbox, ctx context.Context, tx Tx, act *Activity) (InboxResult, error)

type route struct {
	kind   Kind
	object ObjectKind
}

// routes is the closed dispatch table. Pairs missing here yield Other.
var routes = map[route]handler{
	{KindFollow, ObjectLink}:         (*Inbox).follow,
	{KindFollow, ObjectPerson}:       (*Inbox).follow,
	{KindFollow, ObjectGroup}:        (*Inbox).follow,
	{KindLike, ObjectLink}:           (*Inbox).like,
	{KindLike, ObjectArticle}:        (*Inbox).like,
	{KindAnnounce, ObjectLink}:       (*Inbox).reshare,
	{KindAnnounce, ObjectArticle}:    (*Inbox).reshare,
	{KindCreate, ObjectArticle}:      (*Inbox).createPost,
	{KindCreate, ObjectNote}:         (*Inbox).createComment,
	{KindUpdate, ObjectArticle}:      (*Inbox).updatePost,
	{KindUpdate, ObjectPerson}:       (*Inbox).updateActor,
	{KindUpdate, ObjectService}:      (*Inbox).updateActor,
	{KindUpdate, ObjectApplication}:  (*Inbox).updateActor,
	{KindUpdate, ObjectGroup}:        (*Inbox).updateActor,
	{KindUpdate, ObjectOrganization}: (*Inbox).updateActor,
	{KindDelete, ObjectLink}:         (*Inbox).delete,
	{KindDelete, ObjectTombstone}:    (*Inbox).delete,
	{KindDelete, ObjectArticle}:      (*Inbox).delete,
	{KindDelete, ObjectNote}:         (*Inbox).delete,
	{KindDelete, ObjectPerson}:       (*Inbox).delete,
	{KindUndo, ObjectLink}:           (*Inbox).undo,
	{KindUndo, ObjectFollow}:         (*Inbox).undo,
	{KindUndo, ObjectLike}:           (*Inbox).undo,
	{KindUndo, ObjectAnnounce}:       (*Inbox).undo,
	{KindAccept, ObjectLink}:         (*Inbox).accept,
	{KindAccept, ObjectFollow}:       (*Inbox).accept,
}

func (i *Inbox) follow(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	existing, found, err := lookup(tx.FollowByApURL(ctx, string(act.ID)))
	if err != nil {
		return nil, persistence("follow lookup", err)
	}
	if found {
		return Followed{Follow: existing, Replayed: true}, nil
	}
	if !sameOrigin(act.ID, act.Actor) {
		return nil, ErrForbidden
	}

	follower, err := i.resolver.User(ctx, tx, act.Actor)
	if err != nil {
		return nil, err
	}
	target, found, err := i.localActor(ctx, tx, act.ObjectID())
	if err != nil {
		return nil, persistence("follow target lookup", err)
	}
	if !found {
		log.Infof("Inbox: Follow of %s is not for a local actor", act.ObjectID())
		return Other{}, nil
	}

	// a re-follow replaces the old relationship so the new id can be accepted
	stale, found, err := lookup(tx.FollowBetween(ctx, follower.Id, target.Id()))
	if err != nil {
		return nil, persistence("follow lookup", err)
	}
	if found {
		if err := tx.DeleteFollow(ctx, stale.Id); err != nil {
			return nil, persistence("delete follow", err)
		}
	}

	f := &domain.Follow{
		Id:          uuid.New(),
		FollowerId:  follower.Id,
		FollowingId: target.Id(),
		ApURL:       string(act.ID),
		Accepted:    true,
		CreatedAt:   time.Now(),
	}
	if err := tx.InsertFollow(ctx, f); err != nil {
		return nil, persistence("insert follow", err)
	}
	log.Infof("Inbox: %s now follows %s", act.Actor, target.ApURL())
	return Followed{Follow: f}, nil
}

func (i *Inbox) like(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	existing, found, err := lookup(tx.LikeByApURL(ctx, string(act.ID)))
	if err != nil {
		return nil, persistence("like lookup", err)
	}
	if found {
		return Liked{Like: existing}, nil
	}
	if !sameOrigin(act.ID, act.Actor) {
		return nil, ErrForbidden
	}

	user, err := i.resolver.User(ctx, tx, act.Actor)
	if err != nil {
		return nil, err
	}
	post, err := i.resolvePost(ctx, tx, act.ObjectID())
	if err != nil {
		return nil, err
	}
	if existing, found, err := lookup(tx.LikeByUserOnPost(ctx, user.Id, post.Id)); err != nil {
		return nil, persistence("like lookup", err)
	} else if found {
		return Liked{Like: existing}, nil
	}

	l := &domain.Like{
		Id:        uuid.New(),
		UserId:    user.Id,
		PostId:    post.Id,
		ApURL:     string(act.ID),
		CreatedAt: time.Now(),
	}
	if err := tx.InsertLike(ctx, l); err != nil {
		return nil, persistence("insert like", err)
	}
	return Liked{Like: l}, nil
}

func (i *Inbox) reshare(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	existing, found, err := lookup(tx.ReshareByApURL(ctx, string(act.ID)))
	if err != nil {
		return nil, persistence("reshare lookup", err)
	}
	if found {
		return Reshared{Reshare: existing}, nil
	}
	if !sameOrigin(act.ID, act.Actor) {
		return nil, ErrForbidden
	}

	user, err := i.resolver.User(ctx, tx, act.Actor)
	if err != nil {
		return nil, err
	}
	post, err := i.resolvePost(ctx, tx, act.ObjectID())
	if err != nil {
		return nil, err
	}
	if existing, found, err := lookup(tx.ReshareByUserOnPost(ctx, user.Id, post.Id)); err != nil {
		return nil, persistence("reshare lookup", err)
	} else if found {
		return Reshared{Reshare: existing}, nil
	}

	r := &domain.Reshare{
		Id:        uuid.New(),
		UserId:    user.Id,
		PostId:    post.Id,
		ApURL:     string(act.ID),
		CreatedAt: time.Now(),
	}
	if err := tx.InsertReshare(ctx, r); err != nil {
		return nil, persistence("insert reshare", err)
	}
	return Reshared{Reshare: r}, nil
}

func (i *Inbox) createPost(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	var article Article
	if err := act.Decode(&article); err != nil {
		return nil, err
	}
	if article.ID == "" {
		return nil, ErrMalformed
	}
	if !sameOrigin(article.ID, act.Actor) || !article.AttributedTo.Contains(act.Actor) {
		return nil, ErrForbidden
	}

	post, err := i.savePost(ctx, tx, &article)
	if err != nil {
		return nil, err
	}
	return Posted{Post: post}, nil
}

func (i *Inbox) createComment(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	var note Note
	if err := act.Decode(&note); err != nil {
		return nil, err
	}
	if note.ID == "" {
		return nil, ErrMalformed
	}
	if note.InReplyTo == "" {
		log.Infof("Inbox: Ignoring standalone note %s", note.ID)
		return Other{}, nil
	}
	if !sameOrigin(note.ID, act.Actor) || len(note.AttributedTo) == 0 || note.AttributedTo[0] != act.Actor {
		return nil, ErrForbidden
	}

	comment, err := i.saveComment(ctx, tx, &note, 0)
	if err != nil {
		return nil, err
	}
	return Commented{Comment: comment}, nil
}

func (i *Inbox) updatePost(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	var article Article
	if err := act.Decode(&article); err != nil {
		return nil, err
	}
	post, found, err := lookup(tx.PostByApURL(ctx, string(article.ID)))
	if err != nil {
		return nil, persistence("post lookup", err)
	}
	if !found {
		log.Infof("Inbox: Update of unknown post %s", article.ID)
		return Other{}, nil
	}
	if ok, err := i.isPostAuthor(ctx, tx, post.Id, act.Actor); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrForbidden
	}

	edited := time.Now()
	post.Title = article.Name
	post.Subtitle = article.Summary
	post.Content = article.Content
	post.License = article.License
	post.EditedAt = &edited
	if article.Source != nil {
		post.Source = article.Source.Content
	}
	if len(article.To)+len(article.CC) > 0 {
		post.PublicVisibility, post.Audience = visibility(article.To, article.CC)
	}
	if err := i.updateCover(ctx, tx, post, article.Icon, act.Actor); err != nil {
		return nil, err
	}

	if err := tx.UpdatePost(ctx, post); err != nil {
		return nil, persistence("update post", err)
	}
	if err := tx.ReplaceTags(ctx, post.Id, tagsFrom(article.Tag, post.Id)); err != nil {
		return nil, persistence("replace tags", err)
	}
	return Posted{Post: post}, nil
}

func (i *Inbox) updateActor(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	if act.ObjectID() != act.Actor || i.resolver.IsLocal(act.Actor) {
		return nil, ErrForbidden
	}
	if _, err := i.resolver.Refresh(ctx, tx, act.Actor); err != nil {
		return nil, err
	}
	return Other{}, nil
}

func (i *Inbox) delete(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	id := act.ObjectID()
	if id == act.Actor {
		return i.deleteActor(ctx, tx, act.Actor)
	}

	if post, found, err := lookup(tx.PostByApURL(ctx, string(id))); err != nil {
		return nil, persistence("post lookup", err)
	} else if found {
		ok, err := i.isPostAuthor(ctx, tx, post.Id, act.Actor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
		if err := tx.DeletePost(ctx, post.Id); err != nil {
			return nil, persistence("delete post", err)
		}
		log.Infof("Inbox: Deleted post %s", id)
		return Other{}, nil
	}

	if comment, found, err := lookup(tx.CommentByApURL(ctx, string(id))); err != nil {
		return nil, persistence("comment lookup", err)
	} else if found {
		if err := i.requireOwner(ctx, tx, comment.AuthorId, act.Actor); err != nil {
			return nil, err
		}
		if err := tx.DeleteComment(ctx, comment.Id); err != nil {
			return nil, persistence("delete comment", err)
		}
		log.Infof("Inbox: Deleted comment %s", id)
		return Other{}, nil
	}

	log.Debugf("Inbox: Delete of unknown object %s", id)
	return Other{}, nil
}

func (i *Inbox) deleteActor(ctx context.Context, tx Tx, actor Id) (InboxResult, error) {
	user, found, err := lookup(tx.UserByApURL(ctx, string(actor)))
	if err != nil {
		return nil, persistence("user lookup", err)
	}
	if !found {
		return Other{}, nil
	}
	if user.Local {
		return nil, ErrForbidden
	}
	if err := tx.DeleteUser(ctx, user.Id); err != nil {
		return nil, persistence("delete user", err)
	}
	log.Infof("Inbox: Deleted remote user %s", actor)
	return Other{}, nil
}

func (i *Inbox) undo(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	id := string(act.ObjectID())

	if f, found, err := lookup(tx.FollowByApURL(ctx, id)); err != nil {
		return nil, persistence("follow lookup", err)
	} else if found {
		if err := i.requireOwner(ctx, tx, f.FollowerId, act.Actor); err != nil {
			return nil, err
		}
		if err := tx.DeleteFollow(ctx, f.Id); err != nil {
			return nil, persistence("delete follow", err)
		}
		return Other{}, nil
	}

	if l, found, err := lookup(tx.LikeByApURL(ctx, id)); err != nil {
		return nil, persistence("like lookup", err)
	} else if found {
		if err := i.requireOwner(ctx, tx, l.UserId, act.Actor); err != nil {
			return nil, err
		}
		if err := tx.DeleteLike(ctx, l.Id); err != nil {
			return nil, persistence("delete like", err)
		}
		return Other{}, nil
	}

	if r, found, err := lookup(tx.ReshareByApURL(ctx, id)); err != nil {
		return nil, persistence("reshare lookup", err)
	} else if found {
		if err := i.requireOwner(ctx, tx, r.UserId, act.Actor); err != nil {
			return nil, err
		}
		if err := tx.DeleteReshare(ctx, r.Id); err != nil {
			return nil, persistence("delete reshare", err)
		}
		return Other{}, nil
	}

	log.Debugf("Inbox: Undo of unknown object %s", id)
	return Other{}, nil
}

func (i *Inbox) accept(ctx context.Context, tx Tx, act *Activity) (InboxResult, error) {
	f, found, err := lookup(tx.FollowByApURL(ctx, string(act.ObjectID())))
	if err != nil {
		return nil, persistence("follow lookup", err)
	}
	if !found {
		return Other{}, nil
	}

	target, err := actorById(ctx, tx, f.FollowingId)
	if err != nil {
		return nil, persistence("follow target lookup", err)
	}
	if Id(target.ApURL()) != act.Actor {
		return nil, ErrForbidden
	}
	if err := tx.AcceptFollow(ctx, f.Id); err != nil {
		return nil, persistence("accept follow", err)
	}
	log.Infof("Inbox: %s accepted follow %s", act.Actor, f.ApURL)
	return Other{}, nil
}

// savePost stores a remote article unless it is already known. The article
// must be attributed to one blog and at least one person, all on its host.
func (i *Inbox) savePost(ctx context.Context, tx Tx, a *Article) (*domain.Post, error) {
	if p, found, err := lookup(tx.PostByApURL(ctx, string(a.ID))); err != nil {
		return nil, persistence("post lookup", err)
	} else if found {
		return p, nil
	}

	var blog *domain.Blog
	var authors []*domain.User
	for _, id := range a.AttributedTo {
		if !sameOrigin(id, a.ID) {
			return nil, ErrForbidden
		}
		actor, err := i.resolver.Actor(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if actor.Blog != nil {
			if blog == nil {
				blog = actor.Blog
			}
			continue
		}
		authors = append(authors, actor.User)
	}
	if blog == nil {
		return nil, unresolved(a.ID, "article is not attributed to a blog", nil)
	}
	if len(authors) == 0 {
		return nil, unresolved(a.ID, "article has no author", nil)
	}

	public, audience := visibility(a.To, a.CC)
	post := &domain.Post{
		Id:               uuid.New(),
		BlogId:           blog.Id,
		Title:            a.Name,
		Subtitle:         a.Summary,
		Content:          a.Content,
		License:          a.License,
		Published:        true,
		ApURL:            string(a.ID),
		PublicVisibility: public,
		Audience:         audience,
		CreatedAt:        parsePublished(a.Published),
	}
	if a.Source != nil {
		post.Source = a.Source.Content
	}

	slug, err := uniqueSlug(ctx, tx, blog.Id, a.Name)
	if err != nil {
		return nil, persistence("slug lookup", err)
	}
	post.Slug = slug

	if err := i.updateCover(ctx, tx, post, a.Icon, Id(authors[0].ApURL)); err != nil {
		return nil, err
	}
	if err := tx.InsertPost(ctx, post); err != nil {
		return nil, persistence("insert post", err)
	}
	for _, author := range authors {
		if err := tx.AddPostAuthor(ctx, post.Id, author.Id); err != nil {
			return nil, persistence("add post author", err)
		}
	}
	if err := tx.ReplaceTags(ctx, post.Id, tagsFrom(a.Tag, post.Id)); err != nil {
		return nil, persistence("replace tags", err)
	}

	log.Infof("Inbox: Stored post %s in %s", a.ID, blog.ApURL)
	return post, nil
}

// saveComment stores a remote note, resolving the post or comment it
// answers first.
func (i *Inbox) saveComment(ctx context.Context, tx Tx, n *Note, depth int) (*domain.Comment, error) {
	if c, found, err := lookup(tx.CommentByApURL(ctx, string(n.ID))); err != nil {
		return nil, persistence("comment lookup", err)
	} else if found {
		return c, nil
	}
	if len(n.AttributedTo) == 0 {
		return nil, unresolved(n.ID, "note has no author", nil)
	}
	if !sameOrigin(n.AttributedTo[0], n.ID) {
		return nil, ErrForbidden
	}

	author, err := i.resolver.User(ctx, tx, n.AttributedTo[0])
	if err != nil {
		return nil, err
	}
	postId, parentId, err := i.replyTarget(ctx, tx, n.InReplyTo, depth)
	if err != nil {
		return nil, err
	}

	public, audience := visibility(n.To, n.CC)
	c := &domain.Comment{
		Id:               uuid.New(),
		Content:          n.Content,
		InResponseToId:   parentId,
		PostId:           postId,
		AuthorId:         author.Id,
		ApURL:            string(n.ID),
		Sensitive:        n.Sensitive || n.Summary != "",
		SpoilerText:      n.Summary,
		PublicVisibility: public,
		Audience:         audience,
		CreatedAt:        parsePublished(n.Published),
	}
	if err := tx.InsertComment(ctx, c); err != nil {
		return nil, persistence("insert comment", err)
	}
	return c, nil
}

// replyTarget finds the post a reply belongs to and, if it answers a
// comment, that comment's id. Unknown ancestors are fetched.
func (i *Inbox) replyTarget(ctx context.Context, tx Tx, id Id, depth int) (uuid.UUID, *uuid.UUID, error) {
	if p, found, err := lookup(tx.PostByApURL(ctx, string(id))); err != nil {
		return uuid.Nil, nil, persistence("post lookup", err)
	} else if found {
		return p.Id, nil, nil
	}
	if c, found, err := lookup(tx.CommentByApURL(ctx, string(id))); err != nil {
		return uuid.Nil, nil, persistence("comment lookup", err)
	} else if found {
		return c.PostId, &c.Id, nil
	}
	if depth >= maxReplyDepth {
		return uuid.Nil, nil, unresolved(id, "reply chain too deep", nil)
	}

	raw, kind, err := i.resolver.FetchObject(ctx, id)
	if err != nil {
		return uuid.Nil, nil, err
	}
	switch kind {
	case ObjectArticle:
		var a Article
		if err := json.Unmarshal(raw, &a); err != nil {
			return uuid.Nil, nil, unresolved(id, "invalid article", err)
		}
		p, err := i.savePost(ctx, tx, &a)
		if err != nil {
			return uuid.Nil, nil, err
		}
		return p.Id, nil, nil
	case ObjectNote:
		var n Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return uuid.Nil, nil, unresolved(id, "invalid note", err)
		}
		if n.InReplyTo == "" {
			return uuid.Nil, nil, unresolved(id, "parent note answers nothing", nil)
		}
		c, err := i.saveComment(ctx, tx, &n, depth+1)
		if err != nil {
			return uuid.Nil, nil, err
		}
		return c.PostId, &c.Id, nil
	default:
		return uuid.Nil, nil, unresolved(id, "cannot reply to "+string(kind), nil)
	}
}

// resolvePost finds a post by id, fetching and storing it when unknown.
func (i *Inbox) resolvePost(ctx context.Context, tx Tx, id Id) (*domain.Post, error) {
	if p, found, err := lookup(tx.PostByApURL(ctx, string(id))); err != nil {
		return nil, persistence("post lookup", err)
	} else if found {
		return p, nil
	}

	raw, kind, err := i.resolver.FetchObject(ctx, id)
	if err != nil {
		return nil, err
	}
	if kind != ObjectArticle {
		return nil, unresolved(id, "expected an article, got "+string(kind), nil)
	}
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, unresolved(id, "invalid article", err)
	}
	return i.savePost(ctx, tx, &a)
}

func (i *Inbox) updateCover(ctx context.Context, tx Tx, post *domain.Post, icon *Image, owner Id) error {
	if icon == nil || icon.URL == "" {
		return nil
	}
	if post.CoverId != nil {
		current, found, err := lookup(tx.MediaById(ctx, *post.CoverId))
		if err != nil {
			return persistence("media lookup", err)
		}
		if found && current.RemoteURL == icon.URL {
			return nil
		}
	}

	ownerUser, err := i.resolver.User(ctx, tx, owner)
	if err != nil {
		return err
	}
	m := &domain.Media{
		Id:             uuid.New(),
		RemoteURL:      icon.URL,
		AltText:        icon.Content,
		Sensitive:      icon.Sensitive || icon.Summary != "",
		ContentWarning: icon.Summary,
		OwnerId:        ownerUser.Id,
		CreatedAt:      time.Now(),
	}
	if err := tx.InsertMedia(ctx, m); err != nil {
		return persistence("insert media", err)
	}
	post.CoverId = &m.Id
	return nil
}

func (i *Inbox) localActor(ctx context.Context, tx Tx, id Id) (Actor, bool, error) {
	if !i.resolver.IsLocal(id) {
		return Actor{}, false, nil
	}
	a, err := i.resolver.cachedActor(ctx, tx, id)
	if err != nil {
		return Actor{}, false, err
	}
	return a, a.found(), nil
}

func (i *Inbox) isPostAuthor(ctx context.Context, tx Tx, postId uuid.UUID, actor Id) (bool, error) {
	authors, err := tx.PostAuthors(ctx, postId)
	if err != nil {
		return false, persistence("post authors", err)
	}
	for _, a := range authors {
		if Id(a.ApURL) == actor {
			return true, nil
		}
	}
	return false, nil
}

// requireOwner fails with ErrForbidden unless user userId is actor.
func (i *Inbox) requireOwner(ctx context.Context, tx Tx, userId uuid.UUID, actor Id) error {
	u, err := tx.UserById(ctx, userId)
	if err != nil {
		return persistence("user lookup", err)
	}
	if Id(u.ApURL) != actor {
		return ErrForbidden
	}
	return nil
}

func actorById(ctx context.Context, tx Tx, id uuid.UUID) (Actor, error) {
	u, found, err := lookup(tx.UserById(ctx, id))
	if err != nil || found {
		return Actor{User: u}, err
	}
	b, err := tx.BlogById(ctx, id)
	return Actor{Blog: b}, err
}

func uniqueSlug(ctx context.Context, tx Tx, blogId uuid.UUID, title string) (string, error) {
	slug := util.Slugify(title)
	if slug == "" {
		slug = "post"
	}
	_, taken, err := lookup(tx.PostBySlug(ctx, blogId, slug))
	if err != nil {
		return "", err
	}
	if taken {
		slug = slug + "-" + uuid.NewString()[:8]
	}
	return slug, nil
}

func tagsFrom(tags []Hashtag, postId uuid.UUID) []domain.Tag {
	var out []domain.Tag
	for _, t := range tags {
		if t.Type != "Hashtag" || t.Name == "" {
			continue
		}
		out = append(out, domain.Tag{
			Id:        uuid.New(),
			Tag:       strings.TrimPrefix(t.Name, "#"),
			IsHashtag: true,
			PostId:    postId,
		})
	}
	return out
}

func parsePublished(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}
