package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/gin-gonic/gin"
)

// inboxStatus maps an inbox error to the response status. Signature
// failures all look the same from the outside; resolution and persistence
// failures are server errors.
func inboxStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, activitypub.ErrRejected):
		return http.StatusUnauthorized
	case errors.Is(err, activitypub.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, activitypub.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSharedInbox(c *gin.Context) {
	s.receive(c)
}

func (s *Server) handleUserInbox(c *gin.Context) {
	_, err := s.db.LocalUserByName(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	s.receive(c)
}

func (s *Server) handleBlogInbox(c *gin.Context) {
	_, err := s.db.LocalBlogByName(c.Request.Context(), c.Param("blog"))
	if err != nil {
		s.notFound(c, err)
		return
	}
	s.receive(c)
}

// receive hands the raw body to the inbox engine. Every inbox path is
// processed the same way; the addressed actor only decides 404 or not.
func (s *Server) receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	result, err := s.inbox.Receive(c.Request.Context(), c.Request, body)
	status := inboxStatus(err)
	if err != nil {
		if status >= http.StatusInternalServerError {
			log.Errorf("Inbox: %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		}
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}

	s.notify(c.Request.Context(), result)
	c.Status(status)
}

func (s *Server) notFound(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	log.Errorf("Web: Lookup for %s failed: %v", c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": http.StatusText(http.StatusInternalServerError)})
}
