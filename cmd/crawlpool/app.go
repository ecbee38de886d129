package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/crawlpool/internal/browser"
	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/extract"
	"github.com/Rorqualx/crawlpool/internal/pool"
	"github.com/Rorqualx/crawlpool/internal/security"
	"github.com/Rorqualx/crawlpool/internal/selectors"
)

// app holds the long-lived components shared by every command.
type app struct {
	selectors *selectors.Manager
	pool      *pool.Pool
	targets   *security.TargetValidator
}

func newApp(cfg *config.Config) (*app, error) {
	sel, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		return nil, fmt.Errorf("loading selectors: %w", err)
	}

	factory := browser.NewSessionFactory(cfg)
	p := pool.New(cfg, factory, extract.New(cfg, sel))

	log.Info().
		Int("max_pages", cfg.MaxPages).
		Dur("idle_teardown_delay", cfg.IdleTeardownDelay).
		Bool("headless", cfg.Headless).
		Bool("proxy", cfg.HasProxy()).
		Msg("Page pool configured, browser starts on first request")

	return &app{
		selectors: sel,
		pool:      p,
		targets:   security.NewTargetValidator(cfg.AllowPrivateTargets),
	}, nil
}

// close waits for in-flight jobs within ctx, tears the session down and
// stops the selectors watcher.
func (a *app) close(ctx context.Context) {
	if err := a.pool.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Page pool close error")
	}
	if err := a.selectors.Close(); err != nil {
		log.Error().Err(err).Msg("Selectors manager close error")
	}
}
