package main

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/artifact"
	"github.com/msageha/tradedesk/internal/coordinator"
	"github.com/msageha/tradedesk/internal/desk"
	"github.com/msageha/tradedesk/internal/events"
	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/profile"
	"github.com/msageha/tradedesk/internal/router"
	"github.com/msageha/tradedesk/internal/worker"
)

const eventBufferSize = 256

// app holds the services a session needs, built from the loaded config.
type app struct {
	cfg         model.Config
	profiles    *profile.Set
	router      *router.Router
	desk        *desk.Desk
	store       *artifact.Store
	bus         *events.Bus
	audit       *events.AuditLogger
	history     *history.Store
	coordinator *coordinator.Coordinator

	closers []func() error
}

func newSource(c model.MarketDataConfig) (marketdata.Source, error) {
	switch c.Source {
	case "", "file":
		return marketdata.NewFileSource(c.Dir), nil
	case "http":
		return marketdata.NewHTTPSource(c.BaseURL,
			marketdata.WithHTTPClient(&http.Client{Timeout: c.Timeout}),
			marketdata.WithRetry(c.RetryAttempts, c.RetryDelay),
			marketdata.WithExchange(c.Exchange),
		)
	default:
		return nil, errors.Errorf("marketdata.source must be file or http, got %q", c.Source)
	}
}

// newApp wires the full session stack. Callers must Close it.
func newApp(ctx context.Context, c model.Config) (*app, error) {
	a := &app{cfg: c}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	var err error
	a.profiles, err = profile.Load(ctx, a.cfg.Profiles.Dir)
	if err != nil {
		return err
	}
	a.router, err = router.New(a.cfg.Routing.Rules)
	if err != nil {
		return errors.Wrap(err, "invalid routing rules")
	}

	source, err := newSource(a.cfg.MarketData)
	if err != nil {
		return err
	}
	a.desk = desk.Open(a.cfg.StateDir, a.cfg.Scorecard)
	workers, err := worker.FromProfiles(a.profiles.List(), worker.Deps{Source: source, Desk: a.desk})
	if err != nil {
		return err
	}

	a.store = coordinator.NewStore(a.cfg.ReportsRoot, a.profiles)
	a.audit, err = events.NewAuditLogger(events.AuditPath(a.cfg.StateDir), 0)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.audit.Close)
	a.bus = events.NewBus(eventBufferSize)
	a.audit.Attach(a.bus)
	// Closing the bus drains queued events into the audit log first.
	a.closers = append(a.closers, func() error { a.bus.Close(); return nil })

	if a.cfg.History.Enabled {
		a.history, err = history.Open(ctx, filepath.Join(a.cfg.StateDir, history.DefaultFile))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, a.history.Close)
	}

	a.coordinator, err = coordinator.New(coordinator.Options{
		Config:   a.cfg.Coordinator,
		Router:   a.router,
		Profiles: a.profiles,
		Workers:  workers,
		Store:    a.store,
		Bus:      a.bus,
		History:  a.history,
		StateDir: a.cfg.StateDir,
	})
	if err != nil {
		return err
	}

	logger.G(ctx).WithField("profiles", len(a.profiles.Names())).
		WithField("source", a.cfg.MarketData.Source).
		Debug("session stack ready")
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

// openHistory opens the archive for read-only commands.
func openHistory(ctx context.Context, c model.Config) (*history.Store, error) {
	if !c.History.Enabled {
		return nil, errors.New("history is disabled (history.enabled=false)")
	}
	return history.Open(ctx, filepath.Join(c.StateDir, history.DefaultFile))
}
