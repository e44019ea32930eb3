// Package main starts the taskrelay sweeper: a cron-scheduled drain of
// outbox entries left pending by failed immediate deliveries.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/relayforge/taskrelay/internal/notify"
	"github.com/relayforge/taskrelay/internal/notify/slack"
	"github.com/relayforge/taskrelay/internal/outbox"
	"github.com/relayforge/taskrelay/internal/platform/config"
	platformotel "github.com/relayforge/taskrelay/internal/platform/otel"
	"github.com/relayforge/taskrelay/internal/projection"
	"github.com/relayforge/taskrelay/internal/storage/sqlite"
)

type sweeperConfig struct {
	DBPath            string `env:"TASKRELAY_DB_PATH" envDefault:"taskrelay.db"`
	SlackToken        string `env:"TASKRELAY_SLACK_TOKEN"`
	SlackChannel      string `env:"TASKRELAY_SLACK_CHANNEL"`
	DrainLimit        int    `env:"TASKRELAY_DRAIN_LIMIT" envDefault:"16"`
	ThreadLinkRetries int    `env:"TASKRELAY_THREAD_LINK_RETRIES" envDefault:"1"`
	SweepSchedule     string `env:"TASKRELAY_SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

func main() {
	log.SetPrefix("[SWEEPER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run(ctx context.Context) error {
	var cfg sweeperConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	shutdown, err := platformotel.Setup(ctx, "taskrelay-sweeper")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	localizer := notify.NewLocalizer()
	policy := outbox.NewPolicy(localizer)

	store, err := sqlite.Open(cfg.DBPath,
		sqlite.WithProjection(projection.Apply),
		sqlite.WithOutboxPolicy(policy.Entries),
		sqlite.WithDefaultChannel(cfg.SlackChannel),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var notifier notify.Notifier
	if cfg.SlackToken == "" {
		log.Printf("no slack token configured, logging notifications instead")
		notifier = &notify.LogNotifier{}
	} else {
		client, err := slack.New(cfg.SlackToken)
		if err != nil {
			return fmt.Errorf("build slack client: %w", err)
		}
		notifier = client
	}

	drainer, err := outbox.NewDrainer(outbox.DrainerConfig{
		Store:             store,
		Notifier:          notifier,
		DefaultChannel:    cfg.SlackChannel,
		ThreadLinkRetries: &cfg.ThreadLinkRetries,
	})
	if err != nil {
		return fmt.Errorf("build drainer: %w", err)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SweepSchedule, func() {
		stats, err := drainer.Drain(ctx, cfg.DrainLimit)
		if err != nil {
			log.Printf("sweep: %v", err)
			return
		}
		if stats.Delivered+stats.Failed+stats.Deferred > 0 {
			log.Printf("sweep: delivered=%d failed=%d deferred=%d",
				stats.Delivered, stats.Failed, stats.Deferred)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", cfg.SweepSchedule, err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	<-ctx.Done()
	return nil
}
