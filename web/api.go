package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type postRequest struct {
	Blog     string   `json:"blog"`
	Title    string   `json:"title" binding:"required"`
	Subtitle string   `json:"subtitle"`
	Content  string   `json:"content" binding:"required"`
	Source   string   `json:"source"`
	License  string   `json:"license"`
	Tags     []string `json:"tags"`
	CoverURL string   `json:"cover_url"`
	CoverAlt string   `json:"cover_alt"`
}

func (r postRequest) draft() activitypub.PostDraft {
	return activitypub.PostDraft{
		Title:    r.Title,
		Subtitle: r.Subtitle,
		Content:  r.Content,
		Source:   r.Source,
		License:  r.License,
		Tags:     r.Tags,
		CoverURL: r.CoverURL,
		CoverAlt: r.CoverAlt,
	}
}

type commentRequest struct {
	Content      string     `json:"content" binding:"required"`
	Spoiler      string     `json:"spoiler"`
	InResponseTo *uuid.UUID `json:"in_response_to"`
}

type followRequest struct {
	Target string `json:"target" binding:"required"`
}

type postView struct {
	Id        uuid.UUID  `json:"id"`
	BlogId    uuid.UUID  `json:"blog_id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Subtitle  string     `json:"subtitle,omitempty"`
	Content   string     `json:"content"`
	Source    string     `json:"source,omitempty"`
	License   string     `json:"license,omitempty"`
	ApURL     string     `json:"ap_url"`
	Published bool       `json:"published"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

func newPostView(p *domain.Post) postView {
	return postView{
		Id:        p.Id,
		BlogId:    p.BlogId,
		Slug:      p.Slug,
		Title:     p.Title,
		Subtitle:  p.Subtitle,
		Content:   p.Content,
		Source:    p.Source,
		License:   p.License,
		ApURL:     p.ApURL,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		EditedAt:  p.EditedAt,
	}
}

// apiError answers with the status matching err.
func apiError(c *gin.Context, err error) {
	var re *activitypub.ResolutionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, activitypub.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, domain.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.As(err, &re):
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not resolve " + re.Id.String()})
	default:
		log.Errorf("Api: %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) tokenUser(c *gin.Context) (*domain.User, bool) {
	u, err := s.db.UserById(c.Request.Context(), apiToken(c).UserId)
	if err != nil {
		apiError(c, err)
		return nil, false
	}
	return u, true
}

// paramPost loads the post named in the path. A post user may not see is
// reported as missing.
func (s *Server) paramPost(c *gin.Context, user *domain.User) (*domain.Post, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return nil, false
	}
	p, err := s.db.PostById(c.Request.Context(), id)
	if err == nil {
		var visible bool
		if visible, err = s.postVisibleTo(c.Request.Context(), p, user); err == nil && !visible {
			err = domain.ErrNotFound
		}
	}
	if err != nil {
		apiError(c, err)
		return nil, false
	}
	return p, true
}

// postVisibleTo applies the audience recorded for a post: public posts are
// open to everyone, restricted ones to addressed actors and authors.
func (s *Server) postVisibleTo(ctx context.Context, p *domain.Post, user *domain.User) (bool, error) {
	if p.PublicVisibility || slices.Contains(p.Audience, user.ApURL) {
		return true, nil
	}
	authors, err := s.db.PostAuthors(ctx, p.Id)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(authors, func(a domain.User) bool { return a.Id == user.Id }), nil
}

func (s *Server) apiGetPost(c *gin.Context) {
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}
	if !p.Published {
		apiError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, newPostView(p))
}

func (s *Server) apiCreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	blog, err := s.db.LocalBlogByName(ctx, req.Blog)
	if err != nil {
		apiError(c, err)
		return
	}
	author, err := s.db.IsBlogAuthor(ctx, blog.Id, user.Id)
	if err != nil {
		apiError(c, err)
		return
	}
	if !author {
		apiError(c, activitypub.ErrForbidden)
		return
	}

	post, err := s.outbox.PublishPost(ctx, user, blog, req.draft())
	if err != nil {
		apiError(c, err)
		return
	}
	log.Infof("Api: %s published %s", user.Username, post.ApURL)
	c.JSON(http.StatusCreated, newPostView(post))
}

func (s *Server) apiUpdatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}
	post, err := s.outbox.UpdatePost(c.Request.Context(), user, p, req.draft())
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPostView(post))
}

func (s *Server) apiDeletePost(c *gin.Context) {
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}
	if err := s.outbox.DeletePost(c.Request.Context(), user, p); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// interact runs one of the outbox interactions on the post named in the path.
func (s *Server) interact(c *gin.Context, status int, fn func(user *domain.User, post *domain.Post) error) {
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}
	if err := fn(user, p); err != nil {
		apiError(c, err)
		return
	}
	c.Status(status)
}

func (s *Server) apiLike(c *gin.Context) {
	s.interact(c, http.StatusCreated, func(user *domain.User, post *domain.Post) error {
		_, err := s.outbox.Like(c.Request.Context(), user, post)
		return err
	})
}

func (s *Server) apiUnlike(c *gin.Context) {
	s.interact(c, http.StatusNoContent, func(user *domain.User, post *domain.Post) error {
		return s.outbox.Unlike(c.Request.Context(), user, post)
	})
}

func (s *Server) apiReshare(c *gin.Context) {
	s.interact(c, http.StatusCreated, func(user *domain.User, post *domain.Post) error {
		_, err := s.outbox.Reshare(c.Request.Context(), user, post)
		return err
	})
}

func (s *Server) apiUnreshare(c *gin.Context) {
	s.interact(c, http.StatusNoContent, func(user *domain.User, post *domain.Post) error {
		return s.outbox.Unreshare(c.Request.Context(), user, post)
	})
}

func (s *Server) apiComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var parent *domain.Comment
	if req.InResponseTo != nil {
		var err error
		if parent, err = s.db.CommentById(ctx, *req.InResponseTo); err != nil {
			apiError(c, err)
			return
		}
		if parent.PostId != p.Id {
			c.JSON(http.StatusBadRequest, gin.H{"error": "comment belongs to another post"})
			return
		}
	}

	comment, err := s.outbox.Comment(ctx, user, p, parent, req.Content, req.Spoiler)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": comment.Id, "ap_url": comment.ApURL})
}

type commentView struct {
	Id           uuid.UUID  `json:"id"`
	Content      string     `json:"content"`
	Spoiler      string     `json:"spoiler_text,omitempty"`
	InResponseTo *uuid.UUID `json:"in_response_to,omitempty"`
	ApURL        string     `json:"ap_url"`
	CreatedAt    time.Time  `json:"created_at"`
}

// visibleTo reports whether a comment may be shown to user. Restricted
// comments are shown to their author and to addressed actors only.
func visibleTo(cm *domain.Comment, user *domain.User) bool {
	if cm.PublicVisibility || cm.AuthorId == user.Id {
		return true
	}
	return slices.Contains(cm.Audience, user.ApURL)
}

func (s *Server) apiListComments(c *gin.Context) {
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	p, ok := s.paramPost(c, user)
	if !ok {
		return
	}
	if !p.Published {
		apiError(c, domain.ErrNotFound)
		return
	}

	comments, err := s.db.PostComments(c.Request.Context(), p.Id)
	if err != nil {
		apiError(c, err)
		return
	}
	views := []commentView{}
	for i := range comments {
		cm := &comments[i]
		if !visibleTo(cm, user) {
			continue
		}
		views = append(views, commentView{
			Id:           cm.Id,
			Content:      cm.Content,
			Spoiler:      cm.SpoilerText,
			InResponseTo: cm.InResponseToId,
			ApURL:        cm.ApURL,
			CreatedAt:    cm.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) apiDeleteComment(c *gin.Context) {
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return
	}
	ctx := c.Request.Context()
	comment, err := s.db.CommentById(ctx, id)
	if err != nil {
		apiError(c, err)
		return
	}
	if err := s.outbox.DeleteComment(ctx, user, comment); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) apiFollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	follow, err := s.outbox.Follow(c.Request.Context(), user, activitypub.Id(req.Target))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": follow.Id, "accepted": follow.Accepted})
}

func (s *Server) apiUnfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, ok := s.tokenUser(c)
	if !ok {
		return
	}
	if err := s.outbox.Unfollow(c.Request.Context(), user, activitypub.Id(req.Target)); err != nil {
		apiError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
