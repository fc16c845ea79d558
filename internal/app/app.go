// Package app wires configuration, settings, logging, transports and the
// optional journal into the pipelines the CLI and the trigger server run.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/internal/journal"
	fanout "github.com/voxrow/voxrow/internal/pipeline"
	"github.com/voxrow/voxrow/internal/port"
	"github.com/voxrow/voxrow/pipelines/bpsinflation"
	"github.com/voxrow/voxrow/pipelines/idxstocksummary"
	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/env"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// App holds the long-lived dependencies shared by every run.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *config.Config
	settings *env.Settings
	units    port.Units
	journal  *journal.Journal
	location *time.Location
	now      func() time.Time

	store  port.ObjectStore
	client *resty.Client
	pacer  fanout.Pacer
}

// Option customizes NewApp. Tests use them to swap transports and the clock.
type Option func(*App)

// WithObjectStore replaces the R2 client.
func WithObjectStore(store port.ObjectStore) Option {
	return func(a *App) { a.store = store }
}

// WithHTTPClient replaces the resty client.
func WithHTTPClient(client *resty.Client) Option {
	return func(a *App) { a.client = client }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithPacer replaces the random pause between IDX days.
func WithPacer(p fanout.Pacer) Option {
	return func(a *App) { a.pacer = p }
}

// NewApp builds the application. The journal is opened, and its table
// created, only when JOURNAL_DSN is set.
func NewApp(ctx context.Context, outW io.Writer, cfg *config.Config, settings *env.Settings, opts ...Option) (*App, error) {
	a := &App{
		outW:     outW,
		logger:   newLogger(cfg.Log.Level, cfg.Log.Format, outW),
		cfg:      cfg,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("Logger configured successfully.")

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.location = loc

	if a.store == nil {
		if err := settings.Require(env.R2...); err != nil {
			return nil, err
		}
		a.store = settings.CloudflareR2.NewS3Client()
	}
	if a.client == nil {
		a.client = port.NewRestyClient(a.logger)
	}

	var uowOpts []pipeline.Option
	if dsn := settings.JournalDSN.Reveal(); dsn != "" {
		j, err := journal.Open(ctx, cfg.Journal.Driver, dsn, cfg.Journal.Table)
		if err != nil {
			return nil, err
		}
		if err := j.EnsureSchema(ctx); err != nil {
			j.Close()
			return nil, err
		}
		a.journal = j
		uowOpts = append(uowOpts, pipeline.WithHooks(j))
		a.logger.Info("Journal enabled.", "driver", cfg.Journal.Driver, "table", cfg.Journal.Table)
	}

	a.units = port.NewUnits(a.client, a.store, uowOpts...)
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Context attaches the application logger to ctx unless ctx already
// carries one.
func (a *App) Context(ctx context.Context) context.Context {
	if _, ok := ctxlog.Lookup(ctx); ok {
		return ctx
	}
	return ctxlog.WithLogger(ctx, a.logger)
}

// Today is the current calendar day in the configured timezone.
func (a *App) Today() time.Time {
	y, m, d := a.now().In(a.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.location)
}

// ParseDate reads a YYYY-MM-DD day in the configured timezone.
func (a *App) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, a.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// ExtractBPSInflation runs the BPS inflation pipeline.
func (a *App) ExtractBPSInflation(ctx context.Context) (pipeline.ResourceLocation, error) {
	opts, err := bpsinflation.OptionsFrom(a.cfg)
	if err != nil {
		return "", err
	}
	return bpsinflation.New(opts, a.settings.BPSKey, a.units).WithClock(a.now).Run(a.Context(ctx))
}

// ExtractIDXStockSummary runs the IDX stock-summary pipeline for start, or
// for the range start..end when end is set.
func (a *App) ExtractIDXStockSummary(ctx context.Context, start time.Time, end *time.Time) error {
	opts, err := idxstocksummary.OptionsFrom(a.cfg)
	if err != nil {
		return err
	}
	var p *idxstocksummary.Pipeline
	if a.pacer != nil {
		p = idxstocksummary.NewWithPacer(opts, a.settings.DecodoWebScrapingToken, a.units, a.pacer)
	} else {
		p = idxstocksummary.New(opts, a.settings.DecodoWebScrapingToken, a.units)
	}
	return p.Run(a.Context(ctx), start, end)
}

// Close releases the journal connection.
func (a *App) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
