package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// ErrUnsupportedCurrency is returned when no rate is known for a currency
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// convert applies rates quoted against a common base: 1 base = rates[code]
func convert(amount decimal.Decimal, from, to string, rates map[string]decimal.Decimal) (decimal.Decimal, error) {
	fromRate, ok := rates[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, from)
	}
	toRate, ok := rates[to]
	if !ok || !toRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, to)
	}
	return amount.Mul(toRate).Div(fromRate), nil
}

// Static converts with a fixed rate table from configuration
type Static struct {
	rates map[string]decimal.Decimal
}

// NewStatic builds a converter from rates quoted against any single base
// currency, for example {"USD": 1, "EUR": 0.92}
func NewStatic(rates map[string]float64) *Static {
	table := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		table[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return &Static{rates: table}
}

// Convert implements port.CurrencyConverter
func (s *Static) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	return convert(amount, from, to, s.rates)
}

// Chain tries each converter in order and returns the first success
type Chain struct {
	converters []port.CurrencyConverter
	logger     *zap.Logger
}

// NewChain creates a fallback chain of converters
func NewChain(logger *zap.Logger, converters ...port.CurrencyConverter) *Chain {
	return &Chain{converters: converters, logger: logger}
}

// Convert implements port.CurrencyConverter
func (c *Chain) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	errs := make([]error, 0, len(c.converters))
	for i, conv := range c.converters {
		out, err := conv.Convert(ctx, amount, from, to)
		if err == nil {
			return out, nil
		}
		c.logger.Warn("Currency converter failed, trying next",
			zap.Int("index", i),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no converters configured", ErrUnsupportedCurrency)
	}
	return decimal.Zero, errors.Join(errs...)
}

var (
	_ port.CurrencyConverter = (*Static)(nil)
	_ port.CurrencyConverter = (*Chain)(nil)
)
