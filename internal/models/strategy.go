package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy frequency constants
const (
	Frequency1m  = "1m"
	Frequency5m  = "5m"
	Frequency15m = "15m"
	Frequency1h  = "1h"
	Frequency1d  = "1d"
)

// Strategy run log status constants
const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
	RunStatusSkipped = "skipped"
)

// RuleNode is one node of a strategy rule tree: either a boolean group
// ("and"/"or" with children) or a leaf condition.
type RuleNode struct {
	Type       string      `json:"type,omitempty"` // "and", "or", or "rule"
	Conditions []*RuleNode `json:"conditions,omitempty"`
	Condition  *Condition  `json:"condition,omitempty"`
}

// OrderTemplate describes the order a strategy synthesizes when a rule tree
// matches. QuantityPct resolves to an absolute quantity from portfolio equity
// at generation time; otherwise exactly one of Quantity and Notional applies.
type OrderTemplate struct {
	Side            string           `json:"side,omitempty"`
	OrderType       string           `json:"order_type,omitempty"`
	TIF             string           `json:"tif,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	QuantityPct     *decimal.Decimal `json:"quantity_pct,omitempty"`
	Notional        *decimal.Decimal `json:"notional,omitempty"`
	LimitPrice      *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice       *decimal.Decimal `json:"stop_price,omitempty"`
	TrailAmount     *decimal.Decimal `json:"trail_amount,omitempty"`
	TrailPercent    *decimal.Decimal `json:"trail_percent,omitempty"`
	ReserveQuantity *decimal.Decimal `json:"reserve_quantity,omitempty"`
	ExtendedHours   bool             `json:"extended_hours,omitempty"`
	Condition       *Condition       `json:"condition,omitempty"`
}

// RuleBlock pairs a rule tree with the order it generates. Template names a
// shared entry in StrategyConfig.OrderTemplates; Order carries inline
// overrides which win over the named template's fields.
type RuleBlock struct {
	Rules    *RuleNode      `json:"rules,omitempty"`
	Template string         `json:"template,omitempty"`
	Order    *OrderTemplate `json:"order,omitempty"`
}

// StrategyConfig is the JSON configuration of a strategy.
type StrategyConfig struct {
	Symbols        []string                 `json:"symbols,omitempty"`
	Frequency      string                   `json:"frequency,omitempty"`
	Entry          *RuleBlock               `json:"entry,omitempty"`
	Exit           *RuleBlock               `json:"exit,omitempty"`
	OrderTemplates map[string]OrderTemplate `json:"order_templates,omitempty"`
}

// Strategy represents a user-defined rule set that generates paper orders.
type Strategy struct {
	ID          int            `json:"id"`
	UserID      int            `json:"user_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Config      StrategyConfig `json:"config"`
	IsActive    bool           `json:"is_active"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StrategyRunLog records one evaluation pass of a strategy against a
// portfolio. Append-only.
type StrategyRunLog struct {
	ID              int       `json:"id"`
	StrategyID      int       `json:"strategy_id"`
	PortfolioID     int       `json:"portfolio_id"`
	RunAt           time.Time `json:"run_at"`
	Context         []byte    `json:"context,omitempty"`
	GeneratedOrders []int     `json:"generated_orders"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}
