package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/deemkeen/quill/domain"
	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []webfingerLink `json:"links"`
}

func webfingerNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
}

// parseAcct splits acct:name@domain. The domain must be ours.
func parseAcct(resource string, localDomain string) (string, bool) {
	acct, ok := strings.CutPrefix(resource, "acct:")
	if !ok {
		return "", false
	}
	name, host, ok := strings.Cut(strings.TrimPrefix(acct, "@"), "@")
	if !ok || name == "" || !strings.EqualFold(host, localDomain) {
		return "", false
	}
	return name, true
}

// handleWebfinger resolves local users first, then blogs of the same name.
func (s *Server) handleWebfinger(c *gin.Context) {
	ctx := c.Request.Context()
	domainName := s.conf.Domain()
	name, ok := parseAcct(c.Query("resource"), domainName)
	if !ok {
		webfingerNotFound(c)
		return
	}

	var apURL string
	u, err := s.db.LocalUserByName(ctx, name)
	switch {
	case err == nil:
		apURL = u.ApURL
	case errors.Is(err, domain.ErrNotFound):
		b, err := s.db.LocalBlogByName(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			webfingerNotFound(c)
			return
		}
		if err != nil {
			s.notFound(c, err)
			return
		}
		apURL = b.ApURL
	default:
		s.notFound(c, err)
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, webfingerResponse{
		Subject: "acct:" + name + "@" + domainName,
		Aliases: []string{apURL},
		Links: []webfingerLink{
			{Rel: "self", Type: "application/activity+json", Href: apURL},
			{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: apURL},
		},
	})
}
