package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/site-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/site-viewer/internal/cache/snapshot"
	"github.com/mohammed-shakir/site-viewer/internal/core/config"
	"github.com/mohammed-shakir/site-viewer/internal/core/httpclient"
	"github.com/mohammed-shakir/site-viewer/internal/core/router"
	"github.com/mohammed-shakir/site-viewer/internal/core/server"
	"github.com/mohammed-shakir/site-viewer/internal/hotness/expdecay"
	"github.com/mohammed-shakir/site-viewer/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/site-viewer/internal/logger"
	h3mapper "github.com/mohammed-shakir/site-viewer/internal/mapper/h3"
	"github.com/mohammed-shakir/site-viewer/internal/messagebus"
	"github.com/mohammed-shakir/site-viewer/internal/metrics"
	"github.com/mohammed-shakir/site-viewer/internal/search"
	"github.com/mohammed-shakir/site-viewer/internal/selectionevents"
	"github.com/mohammed-shakir/site-viewer/internal/sites"
	"github.com/mohammed-shakir/site-viewer/internal/sitesource"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	sitesURL := flag.String("sites-url", "", "URL of the sites JSON document")
	flag.Parse()

	cfg := config.FromEnv()
	if *sitesURL != "" {
		cfg.SitesURL = strings.TrimSpace(*sitesURL)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "site-viewer",
		Component: "site-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting site server",
		"addr", cfg.Addr,
		"version", Version,
		"sites_url", cfg.SitesURL,
		"snapshot", cfg.Snapshot.Enabled,
		"selection_events", cfg.Selection.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mp *metrics.Provider
	if cfg.MetricsEnabled {
		mp = metrics.Init(metrics.Config{Enabled: true, Path: cfg.MetricsPath, Version: Version})
	}

	origin, err := sitesource.NewHTTP(appLog, httpclient.NewOutbound(cfg.LoadTimeout), cfg.SitesURL)
	if err != nil {
		appLog.Error("invalid sites source", "err", err)
		return 1
	}
	var source sites.Source = origin

	if cfg.Snapshot.Enabled {
		rc, err := redisstore.New(ctx, cfg.Snapshot.RedisAddr,
			redisstore.WithPoolSize(cfg.Snapshot.PoolSize),
			redisstore.WithDialTimeout(cfg.Snapshot.DialTimeout),
			redisstore.WithReadTimeout(cfg.Snapshot.OpTimeout),
			redisstore.WithWriteTimeout(cfg.Snapshot.OpTimeout),
		)
		if err != nil {
			// the origin alone can still serve the dataset
			appLog.Warn("redis unavailable, snapshot disabled", "addr", cfg.Snapshot.RedisAddr, "err", err)
		} else {
			defer func() { _ = rc.Close() }()
			snap := snapshot.New(origin, rc, cfg.Snapshot.TTL, cfg.Snapshot.OpTimeout, appLog)
			appLog.Info("sites snapshot enabled", "key", snap.Key())
			source = snap

			if inv := cfg.Invalidation; inv.Enabled {
				consumer := kafkaconsumer.New(kafkaconsumer.Config{
					Brokers:             inv.Brokers,
					Topic:               inv.Topic,
					GroupID:             inv.GroupID,
					InitialOffsetOldest: inv.FromOldest,
				}, appLog, &zl, rc, snap)
				go func() {
					if err := consumer.Start(ctx); err != nil {
						appLog.Error("invalidation consumer stopped", "err", err)
					}
				}()
			}
		}
	}

	bus := messagebus.New()
	var coll *sites.Collection
	coll = sites.New(source, bus, appLog, sites.Options{
		Search:         search.Options{Literal: cfg.SearchLiteral},
		QueryCacheSize: cfg.QueryCacheSize,
		OnChange: func() {
			v := coll.Snapshot()
			qctx := logger.WithQuery(logger.WithComponent(ctx, "sites"), v.Query)
			appLog.DebugContext(qctx, "views changed", "filtered", len(v.Filtered), "searched", len(v.Searched))
		},
	})
	hot := expdecay.New(cfg.PopularityHalfLife)
	bus.Subscribe(messagebus.TopicSingleSite, func(ev messagebus.Event) {
		hot.Inc(ev.Site.ID)
		appLog.Info("single site selected", "site", ev.Site.ID, "query", ev.Query)
	})

	if cfg.Selection.Enabled {
		pub, err := selectionevents.NewPublisher(cfg.Selection.Brokers, cfg.Selection.Topic, cfg.Selection.Queue, appLog)
		if err != nil {
			appLog.Error("selection events setup failed", "err", err)
			return 1
		}
		detach := pub.Attach(bus)
		defer func() {
			detach()
			if err := pub.Close(); err != nil {
				appLog.Warn("selection events close", "err", err)
			}
		}()
		appLog.Info("selection events enabled", "brokers", cfg.Selection.Brokers, "topic", cfg.Selection.Topic)
	}

	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
		defer cancel()
		// failures are reported through /readyz and are not retried
		_ = coll.Load(loadCtx)
	}()

	api := router.NewAPI(appLog, coll, h3mapper.New(), cfg.H3Res).WithPopularity(hot)
	h := server.NewHandler(appLog, mp, coll, api)

	if err := server.Run(ctx, cfg.Addr, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
