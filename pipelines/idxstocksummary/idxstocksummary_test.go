package idxstocksummary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxrow/voxrow/internal/codec"
	"github.com/voxrow/voxrow/internal/port"
	"github.com/voxrow/voxrow/internal/port/porttest"
	"github.com/voxrow/voxrow/pkg/config"
	"github.com/voxrow/voxrow/pkg/pipeline"
)

type countingPacer struct{ waits int }

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return nil
}

// proxy is a fake scraping proxy that answers with a fixed content per
// requested target date.
type proxy struct {
	mu      sync.Mutex
	targets []string
	content func(date string) any
}

func (p *proxy) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Basic tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			URL                   string `json:"url"`
			SuccessfulStatusCodes []int  `json:"successful_status_codes"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int{200}, body.SuccessfulStatusCodes)

		p.mu.Lock()
		p.targets = append(p.targets, body.URL)
		p.mu.Unlock()

		date := body.URL[len(body.URL)-8:]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{map[string]any{"content": p.content(date), "status_code": 200}},
		})
	}
}

func summary(date string) any {
	return map[string]any{"draw": 0, "recordsTotal": 1, "data": []any{map[string]any{"StockCode": "BBCA", "Date": date}}}
}

func setup(t *testing.T, content func(string) any) (*Pipeline, *proxy, *porttest.MemoryStore, *countingPacer) {
	t.Helper()
	px := &proxy{content: content}
	srv := httptest.NewServer(px.handler(t))
	t.Cleanup(srv.Close)

	opts, err := OptionsFrom(config.Default())
	require.NoError(t, err)
	opts.ScraperURL = srv.URL + "/v2/scrape"

	store := porttest.NewMemoryStore()
	pacer := &countingPacer{}
	p := NewWithPacer(opts, "tok", port.NewUnits(nil, store), pacer)
	return p, px, store, pacer
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestRun_Weekday(t *testing.T) {
	p, px, store, pacer := setup(t, summary)

	require.NoError(t, p.Run(context.Background(), day("2026-01-19"), nil))

	assert.Equal(t, []string{"https://idx.co.id/primary/TradingSummary/GetStockSummary?date=20260119"}, px.targets)
	assert.Zero(t, pacer.waits)

	obj, ok := store.Get("datalake", "idx.co.id/GetStockSummary/2026-01-19.json.gz")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)
	assert.Equal(t, "gzip", obj.ContentEncoding)

	data, err := codec.Decode(obj.Body, obj.ContentType, obj.ContentEncoding)
	require.NoError(t, err)
	assert.Equal(t, "BBCA", data.(map[string]any)["data"].([]any)[0].(map[string]any)["StockCode"])
}

func TestRun_WeekendSkipsWithoutRequest(t *testing.T) {
	p, px, store, _ := setup(t, summary)

	require.NoError(t, p.Run(context.Background(), day("2026-01-17"), nil))

	assert.Empty(t, px.targets)
	assert.Empty(t, store.Puts)
}

func TestRun_EqualBoundsIsSingleDay(t *testing.T) {
	p, px, _, pacer := setup(t, summary)

	require.NoError(t, p.Run(context.Background(), day("2026-01-19"), ptr(day("2026-01-19"))))

	assert.Len(t, px.targets, 1)
	assert.Zero(t, pacer.waits)
}

func TestRun_SwappedBounds(t *testing.T) {
	p, px, store, pacer := setup(t, summary)

	require.NoError(t, p.Run(context.Background(), day("2026-01-20"), ptr(day("2026-01-19"))))

	assert.Equal(t, []string{
		"https://idx.co.id/primary/TradingSummary/GetStockSummary?date=20260119",
		"https://idx.co.id/primary/TradingSummary/GetStockSummary?date=20260120",
	}, px.targets)
	assert.Equal(t, 1, pacer.waits)
	assert.Equal(t, []string{
		"datalake/idx.co.id/GetStockSummary/2026-01-19.json.gz",
		"datalake/idx.co.id/GetStockSummary/2026-01-20.json.gz",
	}, store.Puts)
}

func TestRun_RangeAcrossWeekend(t *testing.T) {
	p, px, store, pacer := setup(t, summary)

	// Friday to Monday: Saturday and Sunday are paced through but not fetched
	require.NoError(t, p.Run(context.Background(), day("2026-01-16"), ptr(day("2026-01-19"))))

	assert.Len(t, px.targets, 2)
	assert.Len(t, store.Puts, 2)
	assert.Equal(t, 3, pacer.waits)
}

func TestRun_EmptyDataIsSkipped(t *testing.T) {
	p, px, store, _ := setup(t, func(string) any {
		return map[string]any{"draw": 0, "recordsTotal": 0, "data": []any{}}
	})

	require.NoError(t, p.Run(context.Background(), day("2026-01-19"), nil))

	assert.Len(t, px.targets, 1)
	assert.Empty(t, store.Puts)
}

func TestRun_MissingDataFailsDay(t *testing.T) {
	p, px, store, _ := setup(t, func(string) any {
		return map[string]any{"message": "maintenance"}
	})

	err := p.Run(context.Background(), day("2026-01-19"), nil)
	require.Error(t, err)
	assert.True(t, pipeline.IsCodec(err))
	assert.Len(t, px.targets, 1)
	assert.Empty(t, store.Puts)
}

func TestHasData(t *testing.T) {
	for _, tc := range []struct {
		doc  map[string]any
		want bool
	}{
		{map[string]any{"data": nil}, false},
		{map[string]any{"data": []any{}}, false},
		{map[string]any{"data": map[string]any{}}, false},
		{map[string]any{"data": ""}, false},
		{map[string]any{"data": json.Number("0")}, false},
		{map[string]any{"data": []any{map[string]any{"StockCode": "BBCA"}}}, true},
		{map[string]any{"data": json.Number("3")}, true},
	} {
		got, err := hasData(tc.doc)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.doc)
	}

	_, err := hasData(map[string]any{"recordsTotal": 0})
	assert.True(t, pipeline.IsCodec(err))
}

func TestRun_RenderedPageContent(t *testing.T) {
	p, _, store, _ := setup(t, func(date string) any {
		b, _ := json.Marshal(summary(date))
		return `<html><head></head><body><pre style="word-wrap: break-word;">` + string(b) + `</pre></body></html>`
	})

	require.NoError(t, p.Run(context.Background(), day("2026-01-19"), nil))
	_, ok := store.Get("datalake", "idx.co.id/GetStockSummary/2026-01-19.json.gz")
	assert.True(t, ok)
}

func TestRun_FailingDayAbortsRange(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	opts, err := OptionsFrom(config.Default())
	require.NoError(t, err)
	opts.ScraperURL = srv.URL
	store := porttest.NewMemoryStore()
	pacer := &countingPacer{}

	err = NewWithPacer(opts, "tok", port.NewUnits(nil, store), pacer).
		Run(context.Background(), day("2026-01-19"), ptr(day("2026-01-23")))

	var te *pipeline.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Contains(t, err.Error(), "2026-01-19")
	assert.Equal(t, 1, calls)
	assert.Zero(t, pacer.waits)
	assert.Empty(t, store.Puts)
}

func TestRun_RequiresToken(t *testing.T) {
	store := porttest.NewMemoryStore()
	err := NewWithPacer(Options{}, "", port.NewUnits(nil, store), &countingPacer{}).
		Run(context.Background(), day("2026-01-19"), nil)
	assert.True(t, pipeline.IsConfiguration(err))
}

func TestUnwrap(t *testing.T) {
	doc, err := Unwrap(map[string]any{"results": []any{map[string]any{"content": `{"data":[1]}`}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": []any{json.Number("1")}}, doc)

	doc, err = Unwrap(map[string]any{"results": []any{map[string]any{"content": "<html><body>{\"data\":[]}</body></html>"}}})
	require.NoError(t, err)
	ok, err := hasData(doc)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []pipeline.Data{
		"x",
		map[string]any{},
		map[string]any{"results": []any{}},
		map[string]any{"results": []any{map[string]any{"content": "not json"}}},
		map[string]any{"results": []any{map[string]any{"content": 3.0}}},
		map[string]any{"results": []any{map[string]any{"content": "[1, 2]"}}},
	} {
		_, err := Unwrap(bad)
		assert.True(t, pipeline.IsCodec(err), "%v", bad)
	}
}

func TestIsWeekend(t *testing.T) {
	assert.True(t, IsWeekend(day("2026-01-17")))
	assert.True(t, IsWeekend(day("2026-01-18")))
	assert.False(t, IsWeekend(day("2026-01-19")))
}

func TestOptionsToday(t *testing.T) {
	opts, err := OptionsFrom(config.Default())
	require.NoError(t, err)
	got := opts.Today(time.Date(2026, 1, 18, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-01-19", got.Format("2006-01-02"))
	assert.Equal(t, "Asia/Jakarta", got.Location().String())
}
