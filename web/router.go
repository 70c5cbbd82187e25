package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/db"
	"github.com/deemkeen/quill/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

type ServerConfig struct {
	Conf   *util.AppConfig
	DB     *db.DB
	Inbox  *activitypub.Inbox
	Outbox *activitypub.Outbox
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP side of the instance: inboxes, actor documents,
// feeds, the token API and metrics.
type Server struct {
	conf     *util.AppConfig
	db       *db.DB
	inbox    *activitypub.Inbox
	outbox   *activitypub.Outbox
	gatherer prometheus.Gatherer

	limiter   *RateLimiter
	apLimiter *RateLimiter
	engine    *gin.Engine
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		conf:     cfg.Conf,
		db:       cfg.DB,
		inbox:    cfg.Inbox,
		outbox:   cfg.Outbox,
		gatherer: cfg.Gatherer,
		// Global rate limiter: 10 requests per second per IP, burst of 20
		limiter: NewRateLimiter(rate.Limit(10), 20),
		// Stricter rate limit for inboxes and the api: 5 req/sec per IP
		apLimiter: NewRateLimiter(rate.Limit(5), 10),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))
	g.Use(RateLimitMiddleware(s.limiter))

	g.GET("/.well-known/nodeinfo", s.handleNodeInfoLinks)
	g.GET("/nodeinfo/2.0", s.handleNodeInfo)

	g.GET("/~/:blog/atom.xml", s.handleFeed(atomFeed))
	g.GET("/~/:blog/rss.xml", s.handleFeed(rssFeed))

	if s.gatherer != nil {
		g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	if !s.conf.Conf.WithAp {
		return g
	}

	ap := g.Group("/", RateLimitMiddleware(s.apLimiter))
	inbox := ap.Group("/", MaxBytesMiddleware(maxInboxBody))
	inbox.POST("/inbox", s.handleSharedInbox)
	inbox.POST("/@/:user/inbox", s.handleUserInbox)
	inbox.POST("/~/:blog/inbox", s.handleBlogInbox)

	g.GET("/@/:user/", s.handleUser)
	g.GET("/@/:user/followers", s.handleUserFollowers)
	g.GET("/~/:blog/", s.handleBlog)
	g.GET("/~/:blog/followers", s.handleBlogFollowers)
	g.GET("/~/:blog/outbox", s.handleBlogOutbox)
	g.GET("/~/:blog/:slug/", s.handlePost)
	g.GET("/.well-known/webfinger", s.handleWebfinger)

	api := ap.Group("/api/v1", MaxBytesMiddleware(maxInboxBody))
	api.GET("/posts/:id", TokenAuth(s.db, "read", "posts"), s.apiGetPost)
	api.POST("/posts", TokenAuth(s.db, "write", "posts"), s.apiCreatePost)
	api.PUT("/posts/:id", TokenAuth(s.db, "write", "posts"), s.apiUpdatePost)
	api.DELETE("/posts/:id", TokenAuth(s.db, "write", "posts"), s.apiDeletePost)
	api.POST("/posts/:id/likes", TokenAuth(s.db, "write", "likes"), s.apiLike)
	api.DELETE("/posts/:id/likes", TokenAuth(s.db, "write", "likes"), s.apiUnlike)
	api.POST("/posts/:id/reshares", TokenAuth(s.db, "write", "reshares"), s.apiReshare)
	api.DELETE("/posts/:id/reshares", TokenAuth(s.db, "write", "reshares"), s.apiUnreshare)
	api.GET("/posts/:id/comments", TokenAuth(s.db, "read", "comments"), s.apiListComments)
	api.POST("/posts/:id/comments", TokenAuth(s.db, "write", "comments"), s.apiComment)
	api.DELETE("/comments/:id", TokenAuth(s.db, "write", "comments"), s.apiDeleteComment)
	api.POST("/follows", TokenAuth(s.db, "write", "follows"), s.apiFollow)
	api.DELETE("/follows", TokenAuth(s.db, "write", "follows"), s.apiUnfollow)

	return g
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.limiter.Start(ctx)
	go s.apLimiter.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
