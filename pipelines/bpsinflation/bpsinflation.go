// Package bpsinflation publishes the Indonesian monthly inflation series
// from the BPS web API. The raw response is captured in the datalake first,
// then re-read from there, reshaped and written to the datamart.
package bpsinflation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/internal/port"
	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/env"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

const (
	rawKeyFormat = "webapi.bps.go.id/inflation/%s.json.gz"
	DatamartKey  = "inflation.json"
)

// Options locate the BPS table and the buckets it flows through.
type Options struct {
	BaseURL  string
	Domain   string
	Model    string
	Lang     string
	TableID  string
	Timeout  time.Duration
	Datalake string
	Datamart string
	Location *time.Location
}

// OptionsFrom reads Options from the application configuration.
func OptionsFrom(cfg *config.Config) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		BaseURL:  cfg.BPS.BaseURL,
		Domain:   cfg.BPS.Domain,
		Model:    cfg.BPS.Model,
		Lang:     cfg.BPS.Lang,
		TableID:  cfg.BPS.TableID,
		Timeout:  cfg.BPS.Timeout.Duration(),
		Datalake: cfg.Buckets.Datalake,
		Datamart: cfg.Buckets.Datamart,
		Location: loc,
	}, nil
}

// Pipeline runs the two BPS inflation stages.
type Pipeline struct {
	opts  Options
	key   env.Secret
	units port.Units
	now   func() time.Time
}

// New builds the pipeline over shared units of work.
func New(opts Options, key env.Secret, units port.Units) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{opts: opts, key: key, units: units, now: time.Now}
}

// WithClock replaces the wall clock. Tests use it to pin "today".
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// URL is the static-table endpoint for key. The key is part of the path, so
// the result must never be logged as is.
func (o Options) URL(key string) string {
	return fmt.Sprintf("%s/domain/%s/model/%s/lang/%s/id/%s/key/%s/",
		strings.TrimRight(o.BaseURL, "/"),
		url.PathEscape(o.Domain), url.PathEscape(o.Model), url.PathEscape(o.Lang),
		url.PathEscape(o.TableID), url.PathEscape(key))
}

// RawKey is the datalake key for the month containing today: the object is
// named after that month's last day.
func RawKey(today time.Time) string {
	y, m, _ := today.Date()
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, today.Location())
	return fmt.Sprintf(rawKeyFormat, last.Format("2006-01-02"))
}

// Run captures the raw table and publishes the reshaped datamart, returning
// the datamart location.
func (p *Pipeline) Run(ctx context.Context) (pipeline.ResourceLocation, error) {
	if p.key == "" {
		return "", &pipeline.ConfigurationError{Msg: "BPS_KEY is not set"}
	}
	if pipeline.RunIDFromContext(ctx) == "" {
		runID := uuid.NewString()
		ctx = ctxlog.With(pipeline.WithRunID(ctx, runID), "run_id", runID)
	}
	ctx = ctxlog.With(ctx, "pipeline", "bps-inflation")
	logger := ctxlog.FromContext(ctx)

	rawKey := RawKey(p.now().In(p.opts.Location))
	raw, err := pipeline.ETL(ctx,
		[]pipeline.Input{pipeline.Bound(p.units.HTTP, pipeline.HTTPSource{
			URL:     p.opts.URL(p.key.Reveal()),
			Method:  pipeline.MethodGet,
			Timeout: p.opts.Timeout,
		})},
		p.units.Storage.Bind(nil, pipeline.ObjectStorageDestination{
			ObjectStorageSource: pipeline.ObjectStorageSource{Bucket: p.opts.Datalake, Key: rawKey},
			ContentType:         pipeline.ContentTypeJSON,
			ContentEncoding:     pipeline.ContentEncodingGzip,
		}),
		nil)
	if err != nil {
		return "", fmt.Errorf("capture bps inflation: %w", err)
	}
	logger.Info("Raw inflation table captured.", "bucket", p.opts.Datalake, "key", string(raw))

	mart, err := pipeline.ETL(ctx,
		[]pipeline.Input{pipeline.Bound(p.units.Storage, pipeline.ObjectStorageSource{
			Bucket: p.opts.Datalake,
			Key:    string(raw),
		})},
		p.units.Storage.Bind(nil, pipeline.ObjectStorageDestination{
			ObjectStorageSource: pipeline.ObjectStorageSource{Bucket: p.opts.Datamart, Key: DatamartKey},
			ContentType:         pipeline.ContentTypeJSON,
		}),
		Reshape)
	if err != nil {
		return "", fmt.Errorf("publish bps inflation: %w", err)
	}
	logger.Info("Inflation datamart published.", "bucket", p.opts.Datamart, "key", string(mart))
	return mart, nil
}

// Extract runs the pipeline with the default configuration against the
// object store and BPS key in settings.
func Extract(ctx context.Context, settings *env.Settings) (pipeline.ResourceLocation, error) {
	if err := settings.Require(append([]string{"BPS_KEY"}, env.R2...)...); err != nil {
		return "", err
	}
	opts, err := OptionsFrom(config.Default())
	if err != nil {
		return "", err
	}
	units := port.NewUnits(nil, settings.CloudflareR2.NewS3Client())
	return New(opts, settings.BPSKey, units).Run(ctx)
}
