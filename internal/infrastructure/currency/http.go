package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// HTTPConfig configures the exchange-rate API client
type HTTPConfig struct {
	// BaseURL of an API serving GET {BaseURL}/latest/{base}
	BaseURL    string
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries uint64
}

// ratesResponse accepts both {"base": ...} and {"base_code": ...} payloads
type ratesResponse struct {
	Result   string                     `json:"result"`
	Base     string                     `json:"base"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

type cachedRates struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

// HTTPRates converts with rates fetched from an exchange-rate API.
// Rates are cached per base currency and concurrent fetches are collapsed.
type HTTPRates struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedRates
	group singleflight.Group
}

// NewHTTPRates creates a new exchange-rate API converter
func NewHTTPRates(cfg HTTPConfig, logger *zap.Logger) *HTTPRates {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPRates{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cachedRates),
	}
}

// Convert implements port.CurrencyConverter
func (h *HTTPRates) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	rates, err := h.rates(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	return convert(amount, from, to, rates)
}

func (h *HTTPRates) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	h.mu.RLock()
	cached, ok := h.cache[base]
	h.mu.RUnlock()
	if ok && h.now().Sub(cached.fetchedAt) < h.cfg.CacheTTL {
		return cached.rates, nil
	}

	v, err, _ := h.group.Do(base, func() (interface{}, error) {
		rates, err := h.fetchWithRetry(ctx, base)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.cache[base] = cachedRates{rates: rates, fetchedAt: h.now()}
		h.mu.Unlock()
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}

func (h *HTTPRates) fetchWithRetry(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	backoff := retry.WithMaxRetries(h.cfg.MaxRetries, retry.NewExponential(200*time.Millisecond))

	var rates map[string]decimal.Decimal
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		rates, err = h.fetch(ctx, base)
		var status *statusError
		if errors.As(err, &status) && status.code < 500 {
			return err
		}
		if err != nil {
			h.logger.Warn("Exchange rate fetch failed, retrying", zap.String("base", base), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("Exchange rate fetch failed", zap.String("base", base), zap.Error(err))
		return nil, fmt.Errorf("fetch %s rates: %w", base, err)
	}
	return rates, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("exchange rate API returned %d: %s", e.code, e.body)
}

func (h *HTTPRates) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest/%s", h.cfg.BaseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("exchange rate API result %q", payload.Result)
	}
	if got := payload.Base + payload.BaseCode; got != "" && !strings.EqualFold(got, base) {
		return nil, fmt.Errorf("exchange rate API answered for base %s, want %s", got, base)
	}

	rates := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for code, rate := range payload.Rates {
		rates[strings.ToUpper(code)] = rate
	}
	// the base is implied at 1 by some APIs
	if _, ok := rates[base]; !ok {
		rates[base] = decimal.NewFromInt(1)
	}

	h.logger.Debug("Exchange rates fetched", zap.String("base", base), zap.Int("count", len(rates)))
	return rates, nil
}

var _ port.CurrencyConverter = (*HTTPRates)(nil)
