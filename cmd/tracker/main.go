// Package main starts the taskrelay tracker: the MCP tool surface over the
// event-sourced task-session core.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpapi "github.com/relayforge/taskrelay/internal/api/mcp"
	"github.com/relayforge/taskrelay/internal/app"
	"github.com/relayforge/taskrelay/internal/engine"
	"github.com/relayforge/taskrelay/internal/notify"
	"github.com/relayforge/taskrelay/internal/notify/slack"
	"github.com/relayforge/taskrelay/internal/outbox"
	"github.com/relayforge/taskrelay/internal/platform/config"
	platformotel "github.com/relayforge/taskrelay/internal/platform/otel"
	"github.com/relayforge/taskrelay/internal/projection"
	"github.com/relayforge/taskrelay/internal/storage/sqlite"
)

type trackerConfig struct {
	DBPath            string `env:"TASKRELAY_DB_PATH" envDefault:"taskrelay.db"`
	SlackToken        string `env:"TASKRELAY_SLACK_TOKEN"`
	SlackChannel      string `env:"TASKRELAY_SLACK_CHANNEL"`
	DrainLimit        int    `env:"TASKRELAY_DRAIN_LIMIT" envDefault:"16"`
	ThreadLinkRetries int    `env:"TASKRELAY_THREAD_LINK_RETRIES" envDefault:"1"`
}

func main() {
	log.SetPrefix("[TRACKER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func run(ctx context.Context) error {
	var cfg trackerConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	shutdown, err := platformotel.Setup(ctx, "taskrelay-tracker")
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

	notifier, err := buildNotifier(cfg.SlackToken)
	if err != nil {
		return err
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

	pipeline, err := engine.New(engine.Config{
		Store:      store,
		Drainer:    drainer,
		DrainLimit: cfg.DrainLimit,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	service, err := app.New(app.Config{Pipeline: pipeline, Tasks: store})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	server, err := mcpapi.NewServer(service)
	if err != nil {
		return fmt.Errorf("build mcp server: %w", err)
	}
	return server.Serve(ctx)
}

func buildNotifier(token string) (notify.Notifier, error) {
	if token == "" {
		log.Printf("no slack token configured, logging notifications instead")
		return &notify.LogNotifier{}, nil
	}
	client, err := slack.New(token)
	if err != nil {
		return nil, fmt.Errorf("build slack client: %w", err)
	}
	return client, nil
}
