// Package idxstocksummary captures the IDX daily stock summary into the
// datalake, one object per trading day, through a web-scraping proxy.
package idxstocksummary

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/internal/pipeline"
	"github.com/voxrow/voxrow/internal/port"
	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/env"
	etl "github.com/voxrow/voxrow/pkg/pipeline"
)

const keyFormat = "idx.co.id/GetStockSummary/%s.json.gz"

// Options locate the proxy, the target page and the datalake.
type Options struct {
	ScraperURL string
	TargetURL  string
	Timeout    time.Duration
	Datalake   string
	PauseMin   time.Duration
	PauseMax   time.Duration
	Location   *time.Location
}

// OptionsFrom reads Options from the application configuration.
func OptionsFrom(cfg *config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		ScraperURL: cfg.IDX.ScraperURL,
		TargetURL:  cfg.IDX.TargetURL,
		Timeout:    cfg.IDX.Timeout.Duration(),
		Datalake:   cfg.Buckets.Datalake,
		PauseMin:   cfg.IDX.PauseMin.Duration(),
		PauseMax:   cfg.IDX.PauseMax.Duration(),
		Location:   loc,
	}, nil
}

// Pipeline fetches one stock summary per weekday of a date range.
type Pipeline struct {
	opts         Options
	token        env.Secret
	units        port.Units
	orchestrator *pipeline.Orchestrator
}

// New builds the pipeline. Consecutive days are paced by a random pause in
// [opts.PauseMin, opts.PauseMax].
func New(opts Options, token env.Secret, units port.Units) *Pipeline {
	return NewWithPacer(opts, token, units, pipeline.NewRandomPacer(opts.PauseMin, opts.PauseMax))
}

// NewWithPacer is New with an explicit pacer.
func NewWithPacer(opts Options, token env.Secret, units port.Units, pacer pipeline.Pacer) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		opts:         opts,
		token:        token,
		units:        units,
		orchestrator: pipeline.NewOrchestrator(pacer),
	}
}

// Key is the datalake key of day's summary.
func Key(day time.Time) string {
	return fmt.Sprintf(keyFormat, day.Format("2006-01-02"))
}

// IsWeekend reports whether day falls on Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Run captures start alone when end is nil, otherwise every day between
// start and end in ascending order. Weekends are skipped without a request.
// The first failing day stops the range.
func (p *Pipeline) Run(ctx context.Context, start time.Time, end *time.Time) error {
	if p.token == "" {
		return &etl.ConfigurationError{Msg: "DECODO_WEB_SCRAPING_TOKEN is not set"}
	}
	if etl.RunIDFromContext(ctx) == "" {
		runID := uuid.NewString()
		ctx = ctxlog.With(etl.WithRunID(ctx, runID), "run_id", runID)
	}
	ctx = ctxlog.With(ctx, "pipeline", "idx-stock-summary")
	return p.orchestrator.Execute(ctx, start, end, p.day)
}

func (p *Pipeline) day(ctx context.Context, day time.Time) error {
	logger := ctxlog.FromContext(ctx)
	if IsWeekend(day) {
		logger.Info("Weekend, no trading summary.", "weekday", day.Weekday().String())
		return nil
	}

	envelope, err := p.units.HTTP.Bind(p.source(day), nil).Extract(ctx)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	doc, err := Unwrap(envelope)
	if err != nil {
		return err
	}
	ok, err := hasData(doc)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("Empty stock summary, nothing to store.")
		return nil
	}

	loc, err := etl.ETL(ctx,
		[]etl.Input{etl.Literal(doc)},
		p.units.Storage.Bind(nil, etl.ObjectStorageDestination{
			ObjectStorageSource: etl.ObjectStorageSource{Bucket: p.opts.Datalake, Key: Key(day)},
			ContentType:         etl.ContentTypeJSON,
			ContentEncoding:     etl.ContentEncodingGzip,
		}),
		nil)
	if err != nil {
		return err
	}
	logger.Info("Stock summary stored.", "bucket", p.opts.Datalake, "key", string(loc))
	return nil
}

func (p *Pipeline) source(day time.Time) etl.HTTPSource {
	target := p.opts.TargetURL + "?" + url.Values{"date": {day.Format("20060102")}}.Encode()
	return etl.HTTPSource{
		URL:    p.opts.ScraperURL,
		Method: etl.MethodPost,
		Headers: map[string]string{
			"Authorization": "Basic " + p.token.Reveal(),
			"Accept":        string(etl.ContentTypeJSON),
			"Content-Type":  string(etl.ContentTypeJSON),
		},
		Body: map[string]any{
			"url":                     target,
			"successful_status_codes": []int{200},
		},
		Timeout: p.opts.Timeout,
	}
}

// Today is the current calendar day in opts.Location.
func (o Options) Today(now time.Time) time.Time {
	return pipeline.Truncate(now.In(o.Location))
}

// Extract runs the pipeline with the default configuration against the
// object store and scraping token in settings.
func Extract(ctx context.Context, settings *env.Settings, start time.Time, end *time.Time) error {
	if err := settings.Require(append([]string{"DECODO_WEB_SCRAPING_TOKEN"}, env.R2...)...); err != nil {
		return err
	}
	opts, err := OptionsFrom(config.Default())
	if err != nil {
		return err
	}
	units := port.NewUnits(nil, settings.CloudflareR2.NewS3Client())
	return New(opts, settings.DecodoWebScrapingToken, units).Run(ctx, start, end)
}
