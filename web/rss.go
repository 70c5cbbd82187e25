package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

const feedSize = 20

type feedFormat int

const (
	atomFeed feedFormat = iota
	rssFeed
)

func (f feedFormat) contentType() string {
	if f == atomFeed {
		return "application/atom+xml; charset=utf-8"
	}
	return "application/rss+xml; charset=utf-8"
}

func (s *Server) handleFeed(format feedFormat) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := s.db.LocalBlogByName(c.Request.Context(), c.Param("blog"))
		if err != nil {
			s.notFound(c, err)
			return
		}
		feed, err := s.blogFeed(c.Request.Context(), b)
		if err != nil {
			s.notFound(c, err)
			return
		}

		var out string
		if format == atomFeed {
			out, err = feed.ToAtom()
		} else {
			out, err = feed.ToRss()
		}
		if err != nil {
			log.Errorf("Feed: Could not render %s: %v", b.Name, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, format.contentType(), []byte(out))
	}
}

// blogFeed lists the newest published posts of a local blog.
func (s *Server) blogFeed(ctx context.Context, b *domain.Blog) (*feeds.Feed, error) {
	posts, err := s.db.BlogPosts(ctx, b.Id, feedSize, 0)
	if err != nil {
		return nil, err
	}

	title := b.Title
	if title == "" {
		title = b.Name
	}
	feed := &feeds.Feed{
		Id:          b.ApURL,
		Title:       title,
		Link:        &feeds.Link{Href: b.ApURL},
		Description: b.Summary,
		Author:      &feeds.Author{Name: b.Fqn()},
		Created:     b.CreatedAt,
	}
	if len(posts) > 0 {
		feed.Updated = posts[0].CreatedAt
	} else {
		feed.Updated = time.Now()
	}

	for _, p := range posts {
		authors, err := s.db.PostAuthors(ctx, p.Id)
		if err != nil {
			return nil, err
		}
		item := &feeds.Item{
			Id:          p.ApURL,
			Title:       p.Title,
			Link:        &feeds.Link{Href: p.ApURL},
			Description: p.Subtitle,
			Content:     p.Content,
			Created:     p.CreatedAt,
		}
		if p.EditedAt != nil {
			item.Updated = *p.EditedAt
		}
		if len(authors) > 0 {
			item.Author = &feeds.Author{Name: authorName(&authors[0])}
		}
		feed.Items = append(feed.Items, item)
	}
	return feed, nil
}

func authorName(u *domain.User) string {
	if u.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", u.DisplayName, u.Fqn())
	}
	return u.Fqn()
}
