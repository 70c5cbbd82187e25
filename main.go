package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/db"
	"github.com/deemkeen/quill/middleware"
	"github.com/deemkeen/quill/util"
	"github.com/deemkeen/quill/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           util.Name,
		Short:         "ActivityPub federation engine for blogs",
		Long:          `quill federates blogs, posts, comments and interactions with the fediverse over ActivityPub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.AddCommand(
		serveCmd(),
		useraddCmd(),
		blogaddCmd(),
		tokenCmd(),
		revokeCmd(),
		keygenCmd(),
		migrateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP federation server and the SSH admin monitor",
		RunE:  runServe,
	}
}

// loadConfig reads the configuration and applies its log level.
func loadConfig() (*util.AppConfig, error) {
	conf, err := util.ReadConf()
	if err != nil {
		return nil, err
	}
	level, err := log.ParseLevel(conf.Conf.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.Conf.LogLevel, err)
	}
	log.SetLevel(level)
	return conf, nil
}

func openDB(conf *util.AppConfig) (*db.DB, error) {
	log.Info("Running database migrations...")
	return db.Open(conf.Conf.DbDriver, conf.Conf.DbDsn)
}

func transportTrusted(names []string) []activitypub.Kind {
	if len(names) == 0 {
		return activitypub.DefaultTransportTrusted
	}
	kinds := make([]activitypub.Kind, 0, len(names))
	for _, n := range names {
		kinds = append(kinds, activitypub.Kind(n))
	}
	return kinds
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	log.Debug("Configuration:\n" + util.PrettyPrint(conf))

	database, err := openDB(conf)
	if err != nil {
		return err
	}
	defer database.Close()

	domainName := conf.Domain()
	userAgent := util.GetNameAndVersion()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := activitypub.NewMetrics(registry)

	store := database.Federation()
	fetcher := &activitypub.HTTPFetcher{Client: activitypub.NewHTTPClient(conf.FetchTimeout()), UserAgent: userAgent}
	resolver := activitypub.NewResolver(store, fetcher, domainName, metrics)
	dispatcher := activitypub.NewDispatcher(activitypub.DispatcherConfig{
		Client:    activitypub.NewHTTPClient(conf.DeliveryTimeout()),
		Workers:   conf.Conf.DeliveryWorkers,
		Timeout:   conf.DeliveryTimeout(),
		UserAgent: userAgent,
		Metrics:   metrics,
		Retry:     database,
	})
	outbox := activitypub.NewOutbox(store, resolver, dispatcher, domainName)
	inbox := activitypub.NewInbox(activitypub.InboxConfig{
		Store:            store,
		Resolver:         resolver,
		Outbox:           outbox,
		TransportTrusted: transportTrusted(conf.Conf.TransportTrustedKinds),
		Metrics:          metrics,
	})
	defer inbox.Wait()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if conf.Conf.WithAp {
		worker := activitypub.NewRetryWorker(database, dispatcher, outbox.LocalSigner)
		g.Go(func() error {
			worker.Run(ctx)
			return nil
		})
	}

	server := web.NewServer(web.ServerConfig{
		Conf:     conf,
		DB:       database,
		Inbox:    inbox,
		Outbox:   outbox,
		Gatherer: registry,
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	adminKeys := middleware.NewAdminKeys(conf.Conf.AdminKeys)
	if adminKeys.Len() == 0 {
		log.Warn("No adminKeys configured, the SSH monitor is disabled")
	} else {
		s, err := wish.NewServer(
			wish.WithAddress(fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.SshPort)),
			wish.WithHostKeyPath(util.ResolveFilePathWithSubdir(".ssh", "hostkey")),
			wish.WithPublicKeyAuth(adminKeys.PublicKeyHandler()),
			wish.WithMiddleware(
				middleware.MainTui(database, domainName),
				middleware.AuthMiddleware(adminKeys),
				logging.Middleware(), // last middleware executed first
			),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return serveSSH(ctx, s, conf)
		})
	}

	return g.Wait()
}

func serveSSH(ctx context.Context, s *ssh.Server, conf *util.AppConfig) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting SSH server on %s:%d", conf.Conf.Host, conf.Conf.SshPort)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, ssh.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Stopping SSH server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			return err
		}
		return nil
	}
}
