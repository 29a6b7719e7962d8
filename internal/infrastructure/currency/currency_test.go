package currency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStatic_Convert(t *testing.T) {
	s := NewStatic(map[string]float64{"usd": 1, "EUR": 0.8, "JPY": 150})
	ctx := context.Background()

	out, err := s.Convert(ctx, d("100"), "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("80")), out.String())

	out, err = s.Convert(ctx, d("80"), "EUR", "JPY")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("15000")), out.String())

	out, err = s.Convert(ctx, d("12.34"), "CHF", "CHF")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("12.34")))

	_, err = s.Convert(ctx, d("1"), "CHF", "USD")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestChain_FallsBack(t *testing.T) {
	empty := NewStatic(nil)
	full := NewStatic(map[string]float64{"USD": 1, "EUR": 0.5})

	out, err := NewChain(zap.NewNop(), empty, full).Convert(context.Background(), d("10"), "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("5")))

	_, err = NewChain(zap.NewNop(), empty).Convert(context.Background(), d("10"), "USD", "EUR")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)

	_, err = NewChain(zap.NewNop()).Convert(context.Background(), d("10"), "USD", "EUR")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func rateServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPRates_ConvertAndCache(t *testing.T) {
	srv, hits := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/USD", r.URL.Path)
		fmt.Fprint(w, `{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.9,"GBP":"0.75"}}`)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL + "/", CacheTTL: time.Minute}, zap.NewNop())
	now := time.Now()
	h.now = func() time.Time { return now }

	out, err := h.Convert(context.Background(), d("200"), "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("180")), out.String())

	out, err = h.Convert(context.Background(), d("200"), "USD", "GBP")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("150")), out.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	now = now.Add(2 * time.Minute)
	_, err = h.Convert(context.Background(), d("1"), "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestHTTPRates_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv, _ := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"base":"EUR","rates":{"USD":1.1}}`)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL, MaxRetries: 3}, zap.NewNop())
	out, err := h.Convert(context.Background(), d("10"), "EUR", "USD")
	require.NoError(t, err)
	assert.True(t, out.Equal(d("11")), out.String())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPRates_DoesNotRetryClientErrors(t *testing.T) {
	srv, hits := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown base", http.StatusNotFound)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL, MaxRetries: 3}, zap.NewNop())
	_, err := h.Convert(context.Background(), d("10"), "XXX", "USD")
	assert.ErrorContains(t, err, "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestHTTPRates_RejectsMismatchedBase(t *testing.T) {
	srv, _ := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"base":"JPY","rates":{"USD":0.0067}}`)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	_, err := h.Convert(context.Background(), d("10"), "EUR", "USD")
	assert.ErrorContains(t, err, "want EUR")
}

func TestHTTPRates_UnknownTarget(t *testing.T) {
	srv, _ := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rates":{"EUR":0.9}}`)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	_, err := h.Convert(context.Background(), d("10"), "USD", "KRW")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
}

func TestHTTPRates_ConcurrentCallsShareFetch(t *testing.T) {
	release := make(chan struct{})
	srv, hits := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"rates":{"USD":1,"EUR":0.5}}`)
	})

	h := NewHTTPRates(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.Convert(context.Background(), d("4"), "USD", "EUR")
			if assert.NoError(t, err) {
				assert.True(t, out.Equal(d("2")))
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(hits), int32(2))
}
