package web

import (
	"net/http"

	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const followersPageSize = 20

func renderActivity(c *gin.Context, v any) {
	c.Header("Content-Type", activityJSON)
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleUser(c *gin.Context) {
	u, err := s.db.LocalUserByName(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	renderActivity(c, activitypub.UserDocument(u))
}

func (s *Server) handleBlog(c *gin.Context) {
	b, err := s.db.LocalBlogByName(c.Request.Context(), c.Param("blog"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	renderActivity(c, activitypub.BlogDocument(b))
}

func (s *Server) handlePost(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.db.LocalBlogByName(ctx, c.Param("blog"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	post, err := s.db.PostBySlug(ctx, b.Id, c.Param("slug"))
	if err == nil && !post.Published {
		err = domain.ErrNotFound
	}
	if err != nil {
		s.notFound(c, err)
		return
	}
	article, err := s.outbox.Article(ctx, post)
	if err != nil {
		s.notFound(c, err)
		return
	}
	renderActivity(c, article)
}

func (s *Server) handleUserFollowers(c *gin.Context) {
	u, err := s.db.LocalUserByName(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	s.renderFollowers(c, u.Id, u.FollowersURL)
}

func (s *Server) handleBlogFollowers(c *gin.Context) {
	b, err := s.db.LocalBlogByName(c.Request.Context(), c.Param("blog"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	s.renderFollowers(c, b.Id, b.FollowersURL)
}

// renderFollowers answers with the collection summary, or one page of
// follower ids when ?page= is given.
func (s *Server) renderFollowers(c *gin.Context, id uuid.UUID, collectionURL string) {
	ctx := c.Request.Context()
	page := ParsePageParam(c.Query("page"))

	if page == 0 {
		total, err := s.db.CountFollowers(ctx, id)
		if err != nil {
			s.notFound(c, err)
			return
		}
		renderActivity(c, orderedCollection(collectionURL, total))
		return
	}

	followers, err := s.db.Followers(ctx, id)
	if err != nil {
		s.notFound(c, err)
		return
	}
	items := make([]any, 0, followersPageSize)
	for idx := (page - 1) * followersPageSize; idx < len(followers) && len(items) < followersPageSize; idx++ {
		items = append(items, followers[idx].ApURL)
	}
	hasMore := page*followersPageSize < len(followers)
	renderActivity(c, collectionPage(collectionURL, page, items, hasMore))
}
