package web

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/gin-gonic/gin"
)

const outboxPageSize = 20

func orderedCollection(id string, total int) gin.H {
	return gin.H{
		"@context":   activitypub.ContextURL,
		"id":         id,
		"type":       "OrderedCollection",
		"totalItems": total,
		"first":      fmt.Sprintf("%s?page=1", id),
	}
}

func collectionPage(id string, page int, items []any, hasMore bool) gin.H {
	p := gin.H{
		"@context":     activitypub.ContextURL,
		"id":           fmt.Sprintf("%s?page=%d", id, page),
		"type":         "OrderedCollectionPage",
		"partOf":       id,
		"orderedItems": items,
	}
	if hasMore {
		p["next"] = fmt.Sprintf("%s?page=%d", id, page+1)
	}
	if page > 1 {
		p["prev"] = fmt.Sprintf("%s?page=%d", id, page-1)
	}
	return p
}

// handleBlogOutbox lists the blog's published posts as Create(Article)
// activities so remote instances can backfill without following.
func (s *Server) handleBlogOutbox(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.db.LocalBlogByName(ctx, c.Param("blog"))
	if err != nil {
		s.notFound(c, err)
		return
	}

	page := ParsePageParam(c.Query("page"))
	if page == 0 {
		total, err := s.db.CountBlogPosts(ctx, b.Id)
		if err != nil {
			s.notFound(c, err)
			return
		}
		renderActivity(c, orderedCollection(b.Outbox, total))
		return
	}

	// one extra row tells whether a next page exists
	posts, err := s.db.BlogPosts(ctx, b.Id, outboxPageSize+1, (page-1)*outboxPageSize)
	if err != nil {
		s.notFound(c, err)
		return
	}
	hasMore := len(posts) > outboxPageSize
	if hasMore {
		posts = posts[:outboxPageSize]
	}

	items := make([]any, 0, len(posts))
	for idx := range posts {
		article, err := s.outbox.Article(ctx, &posts[idx])
		if err != nil {
			log.Warnf("Outbox: Skipping post %s: %v", posts[idx].ApURL, err)
			continue
		}
		article.Context = nil
		items = append(items, gin.H{
			"id":        article.ID.String() + "activity",
			"type":      activitypub.KindCreate,
			"actor":     article.AttributedTo[0],
			"published": article.Published,
			"to":        article.To,
			"cc":        article.CC,
			"object":    article,
		})
	}
	renderActivity(c, collectionPage(b.Outbox, page, items, hasMore))
}

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
