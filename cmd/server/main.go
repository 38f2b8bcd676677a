package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"banguard/internal/ban/allowlist"
	"banguard/internal/ban/console"
	"banguard/internal/ban/handler"
	"banguard/internal/ban/metrics"
	"banguard/internal/ban/service/permanent"
	"banguard/internal/ban/service/temporary"
	"banguard/internal/ban/store"
	"banguard/internal/gateway/memory"
	"banguard/internal/platform/config"
	"banguard/internal/platform/httpserver"
	"banguard/internal/platform/logger"
	platformmetrics "banguard/internal/platform/metrics"
	httptransport "banguard/internal/transport/http"
	"banguard/pkg/platform/audit/publisher"
	auditmemory "banguard/pkg/platform/audit/store/memory"
)

// main wires the ban engines behind the HTTP router and runs them until
// SIGINT or SIGTERM.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "banguard: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := config.FromEnv()
	flags := pflag.NewFlagSet("banguard", pflag.ContinueOnError)
	cfg.BindFlags(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	auditPublisher := publisher.NewPublisher(auditmemory.NewInMemoryStore(), publisher.WithAsyncBuffer(256))
	defer auditPublisher.Close()

	st, err := store.Open(ctx, cfg.DataFile,
		store.WithLogger(log),
		store.WithMetrics(m),
		store.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return fmt.Errorf("open ban store: %w", err)
	}
	defer st.Close()

	gateway := memory.New()
	guard := allowlist.Follow(st)

	tempBans, err := temporary.New(st, guard,
		temporary.WithLogger(log),
		temporary.WithMetrics(m),
		temporary.WithAuditPublisher(auditPublisher),
		temporary.WithGateway(gateway),
	)
	if err != nil {
		return err
	}
	defer tempBans.Close()

	bans, err := permanent.New(st, guard,
		permanent.WithLogger(log),
		permanent.WithMetrics(m),
		permanent.WithAuditPublisher(auditPublisher),
		permanent.WithGateway(gateway),
		permanent.WithTempBans(tempBans),
	)
	if err != nil {
		return err
	}

	c, err := console.New(bans, tempBans, guard, st,
		console.WithLogger(log),
		console.WithAuditPublisher(auditPublisher),
		console.WithGateway(gateway),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(handler.New(c, gateway, log), httptransport.RouterConfig{
		AdminToken:  cfg.AdminToken,
		Logger:      log,
		Gatherer:    reg,
		HTTPMetrics: platformmetrics.NewHTTP(reg),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting banguard", "addr", cfg.Addr, "data_file", st.Path())
		return httpserver.Serve(gctx, srv)
	})
	g.Go(func() error {
		return tempBans.StartCleanup(gctx, cfg.SweepInterval)
	})
	if cfg.WatchFile {
		watcher := store.NewWatcher(st,
			store.WithWatcherLogger(log),
			store.WithWatcherAuditPublisher(auditPublisher),
		)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("banguard stopped")
	return nil
}
