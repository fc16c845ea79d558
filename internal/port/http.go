// Package port holds the transport adapters behind pipeline.Extractor and
// pipeline.Loader: HTTP, S3-compatible object storage and the local
// filesystem.
package port

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/internal/ctxlog"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

// HTTP extracts JSON documents from remote endpoints. It is safe for
// concurrent use; one client is shared by every binding.
type HTTP struct {
	client  *resty.Client
	methods map[pipeline.Method]func(*resty.Request, pipeline.HTTPSource) (*resty.Response, error)
}

// NewRestyClient returns a resty client that reports through logger.
func NewRestyClient(logger *slog.Logger) *resty.Client {
	return resty.New().SetLogger(restyLogger{logger.With("component", "resty")})
}

// restyLogger adapts slog to resty.Logger.
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(redactURLs(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(redactURLs(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(redactURLs(format, v...)) }

var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

func redactURLs(format string, v ...any) string {
	return urlPattern.ReplaceAllStringFunc(fmt.Sprintf(format, v...), pipeline.RedactURL)
}

// NewHTTP builds an HTTP port on client, or on a fresh resty client when
// client is nil.
func NewHTTP(client *resty.Client) *HTTP {
	if client == nil {
		client = resty.New()
	}
	return &HTTP{
		client: client,
		methods: map[pipeline.Method]func(*resty.Request, pipeline.HTTPSource) (*resty.Response, error){
			pipeline.MethodGet: func(r *resty.Request, src pipeline.HTTPSource) (*resty.Response, error) {
				return r.Get(src.URL)
			},
			pipeline.MethodPost: func(r *resty.Request, src pipeline.HTTPSource) (*resty.Response, error) {
				return r.SetHeader("Content-Type", "application/json").SetBody(src.Body).Post(src.URL)
			},
		},
	}
}

// Extract performs the request described by an HTTPSource and decodes the
// response body as JSON. Non-2xx statuses are TransportErrors.
func (h *HTTP) Extract(ctx context.Context, source pipeline.Source) (pipeline.Data, error) {
	src, ok := source.(pipeline.HTTPSource)
	if !ok {
		return nil, fmt.Errorf("http port cannot extract %T: %w", source, pipeline.ErrContract)
	}
	method := src.Method
	if method == "" {
		method = pipeline.MethodGet
	}
	do, ok := h.methods[method]
	if !ok {
		return nil, fmt.Errorf("http port: unsupported method %q: %w", method, pipeline.ErrContract)
	}

	if src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}

	target := pipeline.RedactURL(src.URL)
	op := "http " + string(method)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Sending request.", "method", method, "host", target)

	start := time.Now()
	resp, err := do(h.client.R().SetContext(ctx).SetHeader("Accept", "application/json").SetHeaders(src.Headers), src)
	if err != nil {
		// url.Error repeats the full URL, which may carry an API key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, &pipeline.TransportError{Op: op, Target: target, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &pipeline.TransportError{Op: op, Target: target, StatusCode: resp.StatusCode()}
	}
	logger.Debug("Response received.", "method", method, "host", target, "status", resp.StatusCode(), "duration", time.Since(start))

	out, err := codec.LoadsJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, target, err)
	}
	return out, nil
}
