// Package indicator computes technical values (SMA, EMA, RSI, volume
// average) from historical bars and resolves external score lookups. Values
// feed the condition evaluator; a nil value means "insufficient data" and the
// caller fails open.
package indicator

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// ScoreRepository provides the latest external score per symbol.
type ScoreRepository interface {
	GetLatestScore(symbol string) (*models.StockScore, error)
}

// timeframeMap resolves a shorthand timeframe to (period, interval).
var timeframeMap = map[string][2]string{
	"1d":  {"6mo", "1d"},
	"1h":  {"60d", "60m"},
	"30m": {"30d", "30m"},
	"15m": {"30d", "15m"},
	"5m":  {"30d", "5m"},
	"1m":  {"7d", "1m"},
}

type historyKey struct {
	symbol   string
	period   string
	interval string
}

// Service computes indicator values, memoizing history fetches per
// (symbol, period, interval) and score lookups per symbol. The caches exist
// only to avoid redundant fetches within a single evaluation pass; call
// ResetCache between passes.
type Service struct {
	provider marketdata.Provider
	scores   ScoreRepository

	historyCache map[historyKey][]marketdata.Bar
	scoreCache   map[string]*models.StockScore
}

// NewService creates an indicator Service. scores may be nil when no scoring
// subsystem is configured; scorer lookups then return nil values.
func NewService(provider marketdata.Provider, scores ScoreRepository) *Service {
	s := &Service{
		provider: provider,
		scores:   scores,
	}
	s.ResetCache()
	return s
}

// ResetCache drops the per-pass memoization.
func (s *Service) ResetCache() {
	s.historyCache = make(map[historyKey][]marketdata.Bar)
	s.scoreCache = make(map[string]*models.StockScore)
}

// GetValue resolves the indicator value described by cond for a symbol. It
// returns nil on insufficient history, provider failure, or an unknown
// indicator; callers treat nil as "condition passes".
func (s *Service) GetValue(ctx context.Context, symbol string, cond *models.Condition) *decimal.Decimal {
	if cond == nil {
		return nil
	}
	if cond.Source == "scorer" {
		return s.valueFromScorer(symbol, cond)
	}
	if cond.Indicator == "" {
		return nil
	}

	period, interval := resolveTimeframe(cond)
	window := cond.Window
	if window <= 0 {
		window = 14
	}

	bars, err := s.getHistory(ctx, symbol, period, interval)
	if err != nil || len(bars) == 0 {
		return nil
	}

	switch strings.ToLower(cond.Indicator) {
	case "sma":
		return tailMean(closes(bars), window)
	case "ema":
		return ema(closes(bars), window)
	case "rsi":
		return rsi(closes(bars), window)
	case "volume":
		return tailMean(volumes(bars), window)
	}
	return nil
}

func (s *Service) getHistory(ctx context.Context, symbol, period, interval string) ([]marketdata.Bar, error) {
	key := historyKey{symbol: strings.ToUpper(symbol), period: period, interval: interval}
	if bars, ok := s.historyCache[key]; ok {
		return bars, nil
	}
	bars, err := s.provider.GetHistory(ctx, symbol, period, interval)
	if err != nil {
		return nil, err
	}
	s.historyCache[key] = bars
	return bars, nil
}

func (s *Service) valueFromScorer(symbol string, cond *models.Condition) *decimal.Decimal {
	if s.scores == nil {
		return nil
	}
	symbol = strings.ToUpper(symbol)
	score, ok := s.scoreCache[symbol]
	if !ok {
		latest, err := s.scores.GetLatestScore(symbol)
		if err != nil {
			return nil
		}
		s.scoreCache[symbol] = latest
		score = latest
	}
	if score == nil {
		return nil
	}

	field := cond.Field
	if field == "" {
		field = "final_score"
	}
	switch field {
	case "final_score":
		v := score.FinalScore
		return &v
	case "tech_score":
		v := score.TechScore
		return &v
	case "fundamental_score":
		v := score.FundamentalScore
		return &v
	}
	// Dotted paths address the components JSON, e.g. "components.trend_raw".
	if strings.HasPrefix(field, "components.") && len(score.Components) > 0 {
		return componentValue(score.Components, strings.TrimPrefix(field, "components."))
	}
	return nil
}

func componentValue(components []byte, path string) *decimal.Decimal {
	var value interface{}
	if err := json.Unmarshal(components, &value); err != nil {
		return nil
	}
	for _, part := range strings.Split(path, ".") {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value, ok = m[part]
		if !ok {
			return nil
		}
	}
	f, ok := value.(float64)
	if !ok {
		return nil
	}
	d := decimal.NewFromFloat(f)
	return &d
}

func resolveTimeframe(cond *models.Condition) (string, string) {
	if tf, ok := timeframeMap[cond.Timeframe]; ok {
		return tf[0], tf[1]
	}
	period := cond.Period
	if period == "" {
		period = "3mo"
	}
	interval := cond.Interval
	if interval == "" {
		interval = "1d"
	}
	return period, interval
}

func closes(bars []marketdata.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i], _ = b.Close.Float64()
	}
	return out
}

func volumes(bars []marketdata.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i], _ = b.Volume.Float64()
	}
	return out
}

// tailMean returns the mean of the last window values, or nil when fewer
// values are available.
func tailMean(values []float64, window int) *decimal.Decimal {
	if len(values) < window {
		return nil
	}
	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	d := decimal.NewFromFloat(sum / float64(window))
	return &d
}

// ema returns the exponential weighted mean of values with span = window
// (alpha = 2/(window+1)), seeded on the first value.
func ema(values []float64, window int) *decimal.Decimal {
	if len(values) < window {
		return nil
	}
	alpha := 2.0 / (float64(window) + 1)
	value := values[0]
	for _, v := range values[1:] {
		value = alpha*v + (1-alpha)*value
	}
	d := decimal.NewFromFloat(value)
	return &d
}

// rsi returns the Wilder-smoothed relative strength index over window, or
// nil when history is shorter than window+1 closes.
func rsi(values []float64, window int) *decimal.Decimal {
	if len(values) < window+1 {
		return nil
	}
	var gain, loss float64
	for i := 1; i <= window; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(window)
	avgLoss := loss / float64(window)
	for i := window + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(window-1) + g) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + l) / float64(window)
	}
	if avgLoss == 0 {
		d := decimal.NewFromInt(100)
		return &d
	}
	rs := avgGain / avgLoss
	d := decimal.NewFromFloat(100.0 - (100.0 / (1.0 + rs)))
	if d.IsNegative() || math.IsNaN(100.0-(100.0/(1.0+rs))) {
		return nil
	}
	return &d
}
