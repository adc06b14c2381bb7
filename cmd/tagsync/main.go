package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/time7/tagsync/pkg/config"
	"github.com/time7/tagsync/pkg/events"
	"github.com/time7/tagsync/pkg/gateway"
	"github.com/time7/tagsync/pkg/logger"
	"github.com/time7/tagsync/pkg/polling"
	"github.com/time7/tagsync/pkg/reconcile"
	"github.com/time7/tagsync/pkg/search"
	pgstore "github.com/time7/tagsync/pkg/storage/postgres"
	redisstore "github.com/time7/tagsync/pkg/storage/redis"
)

// sendRetries covers a gateway restart during a one-shot -send.
const sendRetries = 2

func main() {
	history := flag.Int("history", 0, "print the newest N scan log entries and exit")
	send := flag.String("send", "", "comma separated tag ids to post to the gateway, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "tagsync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := gateway.New(cfg.GatewayURL, gateway.WithTimeout(cfg.GatewayTimeout), gateway.WithLogger(log.Named("gateway")))

	if *send != "" {
		sender := gateway.New(cfg.GatewayURL,
			gateway.WithTimeout(cfg.GatewayTimeout),
			gateway.WithRetries(sendRetries),
			gateway.WithLogger(log.Named("gateway")),
		)
		ack, err := sender.SendTagIDs(ctx, splitIDs(*send))
		if err != nil {
			log.Fatal("send tag ids", zap.Error(err))
		}
		fmt.Println(string(ack))
		return
	}

	pool, err := pgstore.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := pgstore.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("db schema", zap.Error(err))
	}
	registry := pgstore.NewRepository(pool)

	if *history > 0 {
		if err := printHistory(ctx, os.Stdout, registry, *history); err != nil {
			log.Fatal("scan history", zap.Error(err))
		}
		return
	}

	reconcileOpts := []reconcile.Option{reconcile.WithLogger(log.Named("reconcile"))}

	if cfg.RedisAddr != "" {
		rc := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rc.Close()
		reconcileOpts = append(reconcileOpts, reconcile.WithSnapshotCache(redisstore.NewSnapshotCache(rc, "")))
	}

	var sub *pubsub.Subscription
	if cfg.PubSubEnabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			log.Fatal("pubsub client", zap.Error(err))
		}
		defer client.Close()

		topic := client.Topic(cfg.RegistrationTopicID)
		defer topic.Stop()
		reconcileOpts = append(reconcileOpts, reconcile.WithPublisher(events.NewPubSubPublisher(topic)))

		if cfg.RegistrationSubscription != "" {
			sub = client.Subscription(cfg.RegistrationSubscription)
		}
	}

	reconciler := reconcile.New(registry, reconcileOpts...)
	if err := reconciler.Mount(ctx); err != nil {
		log.Warn("initial registry load failed; continuing with cached set", zap.Error(err))
	}

	if sub != nil {
		go func() {
			err := events.Listen(ctx, sub, log.Named("events"), func(ctx context.Context, ev events.RegistrationEvent) error {
				return reconciler.NotifyRegistered(ctx)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("registration subscription ended", zap.Error(err))
			}
		}()
	}

	resolver := search.New(registry, search.WithLogger(log.Named("search")))

	engine, err := polling.New(gw, polling.Config{
		Interval: cfg.PollInterval,
		Logger:   log.Named("polling"),
		OnUpdate: func(s polling.Snapshot) { reportSnapshot(log, reconciler, s) },
	})
	if err != nil {
		log.Fatal("polling engine", zap.Error(err))
	}
	if err := engine.Start(ctx); err != nil {
		log.Fatal("polling start", zap.Error(err))
	}
	defer engine.Stop()

	log.Info("tagsync started",
		zap.String("gateway", gw.BaseURL()),
		zap.Duration("interval", cfg.PollInterval),
		zap.Bool("registration_events", cfg.PubSubEnabled()),
	)

	c := &console{
		log:        log.Named("console"),
		engine:     engine,
		reconciler: reconciler,
		resolver:   resolver,
		out:        os.Stdout,
	}
	c.run(ctx, os.Stdin)
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func reportSnapshot(log *zap.Logger, reconciler *reconcile.Engine, s polling.Snapshot) {
	if s.Status != polling.StatusLive {
		log.Info("gateway state",
			zap.String("status", string(s.Status)),
			zap.String("error", s.Error),
			zap.Bool("reader_connected", s.ReaderConnected),
		)
		return
	}

	items := reconciler.Classify(s.Scans)
	registered := 0
	for _, it := range items {
		if it.Registered {
			registered++
		}
	}
	log.Debug("scan set",
		zap.Int("in_range", len(items)),
		zap.Int("registered", registered),
		zap.Bool("reader_connected", s.ReaderConnected),
	)
}
