package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/control"
	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/feed"
	"github.com/pders01/fwrdpost/internal/host"
	"github.com/pders01/fwrdpost/internal/media"
	"github.com/pders01/fwrdpost/internal/metrics"
	"github.com/pders01/fwrdpost/internal/plugins/builtin"
	"github.com/pders01/fwrdpost/internal/session"
	"github.com/pders01/fwrdpost/internal/social"
	"github.com/pders01/fwrdpost/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

var (
	dbPath string
	quiet  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every active user's schedule and the control server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if !quiet {
			showBanner(cfg)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	serveCmd.Flags().BoolVar(&quiet, "quiet", false, "Skip startup banner")
}

func serve(ctx context.Context, cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	objects, err := media.NewObjectStore(cfg.Media)
	if err != nil {
		return err
	}
	detector, err := media.NewTypeDetector()
	if err != nil {
		return err
	}

	poster := social.NewClient(cfg.Social)
	deps := host.Deps{
		Gate:       session.NewGate(st, session.NewOAuthRefresher(cfg.Session, nil)),
		Feeds:      feed.NewClient(cfg).WithSources(builtin.Registry()),
		Watermarks: st,
		Poster:     poster,
		Media:      media.NewResolver(objects, detector, poster),
		Metrics:    m,
	}
	opts := host.Options{Tick: cfg.Scheduler.Tick, Location: loc}

	sup := supervisor.New(st, supervisor.HostSpawner(deps, opts), supervisor.Options{
		MailboxSize: cfg.Scheduler.MailboxSize,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              cfg.Control.Addr,
		Handler:           control.NewRouter(sup, control.Options{AdminToken: cfg.Control.AdminToken, Gatherer: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		debuglog.Infof("control server listening on %s", cfg.Control.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	supCtx, cancelSup := context.WithCancel(ctx)
	supDone := make(chan error, 1)
	go func() { supDone <- sup.Run(supCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		debuglog.Infof("shutting down")
	case err, ok := <-srvErr:
		if ok {
			runErr = fmt.Errorf("control server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		debuglog.Warnf("control server shutdown: %v", err)
	}

	cancelSup()
	<-supDone
	return runErr
}
