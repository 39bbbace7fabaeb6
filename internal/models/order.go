package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order side constants
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order type constants. The strings are stable and stored as-is.
const (
	OrderTypeMarket          = "market"
	OrderTypeLimit           = "limit"
	OrderTypeStop            = "stop"
	OrderTypeStopLimit       = "stop_limit"
	OrderTypeTrailingAmount  = "trailing_amount"
	OrderTypeTrailingPercent = "trailing_percent"
	OrderTypeTrailingLimit   = "trailing_limit"
	OrderTypeMarketClose     = "market_close"
	OrderTypeMarketOpen      = "market_open"
	OrderTypeLimitClose      = "limit_close"
	OrderTypeLimitOpen       = "limit_open"
	OrderTypePeggedMid       = "pegged_mid"
	OrderTypePeggedPrimary   = "pegged_primary"
	OrderTypeHiddenLimit     = "hidden_limit"
	OrderTypeIceberg         = "iceberg"
	OrderTypeBracket         = "bracket"
	OrderTypeOCO             = "oco"
	OrderTypeOTO             = "oto"
	OrderTypeOTOCO           = "otoco"
	OrderTypeAlgoVWAP        = "algo_vwap"
	OrderTypeAlgoTWAP        = "algo_twap"
	OrderTypeAlgoPOV         = "algo_pov"
)

// Time-in-force constants
const (
	TIFDay = "day"
	TIFGTC = "gtc"
	TIFGTD = "gtd"
	TIFIOC = "ioc"
	TIFFOK = "fok"
	TIFAON = "aon"
	TIFOPG = "opg"
	TIFCLS = "cls"
	TIFEXT = "ext"
)

// Order status constants
const (
	OrderStatusNew        = "new"
	OrderStatusWorking    = "working"
	OrderStatusPartFilled = "part_filled"
	OrderStatusFilled     = "filled"
	OrderStatusCanceled   = "canceled"
	OrderStatusExpired    = "expired"
	OrderStatusRejected   = "rejected"
)

// Condition type constants
const (
	ConditionNone        = "none"
	ConditionPrice       = "price"
	ConditionTime        = "time"
	ConditionIndicator   = "indicator"
	ConditionCrossSymbol = "cross_symbol"
	ConditionVolume      = "volume"
	ConditionAndGroup    = "and_group"
	ConditionOrGroup     = "or_group"
)

// Child role constants for linked order chains
const (
	ChildRoleEntry = "entry"
	ChildRoleTP    = "tp"
	ChildRoleSL    = "sl"
)

// Condition describes an order trigger. Group conditions nest children;
// leaf conditions use the scalar fields relevant to their type. Conditions
// are evaluated fail-open: missing data satisfies the condition.
type Condition struct {
	Type          string           `json:"type"`
	Operator      string           `json:"operator,omitempty"`
	Value         *decimal.Decimal `json:"value,omitempty"`
	Symbol        string           `json:"symbol,omitempty"`
	CompareSymbol string           `json:"compare_symbol,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	Indicator     string           `json:"indicator,omitempty"`
	Source        string           `json:"source,omitempty"`
	Field         string           `json:"field,omitempty"`
	Basis         string           `json:"basis,omitempty"`
	Window        int              `json:"window,omitempty"`
	Timeframe     string           `json:"timeframe,omitempty"`
	Period        string           `json:"period,omitempty"`
	Interval      string           `json:"interval,omitempty"`
	Conditions    []Condition      `json:"conditions,omitempty"`
}

// AlgoParams holds the scheduling parameters for sliced algorithmic orders.
type AlgoParams struct {
	Slices          int             `json:"slices,omitempty"`
	IntervalMinutes int             `json:"interval_minutes,omitempty"`
	Participation   decimal.Decimal `json:"participation,omitempty"`
}

// Order event type constants
const (
	EventOrderAccepted = "order_accepted"
	EventOrderCanceled = "order_canceled"
	EventOrderExpired  = "order_expired"
	EventFill          = "fill"
	EventChainAction   = "chain_action"
	EventTrailUpdate   = "trail_update"
)

// OrderEvent is one entry in an order's append-only audit log.
type OrderEvent struct {
	Type    string    `json:"type"`
	Action  string    `json:"action,omitempty"`
	OrderID int       `json:"order_id,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Order represents a paper order. Exactly one of Quantity and Notional is
// required at creation; a notional order resolves its quantity at first fill
// and persists it.
type Order struct {
	ID               int              `json:"id"`
	PortfolioID      int              `json:"portfolio_id"`
	StrategyID       *int             `json:"strategy_id,omitempty"`
	BotID            *int             `json:"bot_id,omitempty"`
	ClientOrderID    string           `json:"client_order_id,omitempty"`
	Symbol           string           `json:"symbol"`
	Side             string           `json:"side"`
	OrderType        string           `json:"order_type"`
	TIF              string           `json:"tif"`
	TIFDate          *time.Time       `json:"tif_date,omitempty"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	Notional         *decimal.Decimal `json:"notional,omitempty"`
	LimitPrice       *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice        *decimal.Decimal `json:"stop_price,omitempty"`
	TrailAmount      *decimal.Decimal `json:"trail_amount,omitempty"`
	TrailPercent     *decimal.Decimal `json:"trail_percent,omitempty"`
	TrailRef         *decimal.Decimal `json:"trail_ref,omitempty"`
	ReserveQuantity  *decimal.Decimal `json:"reserve_quantity,omitempty"`
	PeggedOffset     *decimal.Decimal `json:"pegged_offset,omitempty"`
	ExtendedHours    bool             `json:"extended_hours"`
	Condition        *Condition       `json:"condition,omitempty"`
	ParentID         *int             `json:"parent_id,omitempty"`
	ChainID          string           `json:"chain_id,omitempty"`
	ChildRole        string           `json:"child_role,omitempty"`
	AlgoParams       *AlgoParams      `json:"algo_params,omitempty"`
	AlgoNextRunAt    *time.Time       `json:"algo_next_run_at,omitempty"`
	AlgoSliceIndex   int              `json:"algo_slice_index"`
	Status           string           `json:"status"`
	FilledQuantity   decimal.Decimal  `json:"filled_quantity"`
	AverageFillPrice *decimal.Decimal `json:"average_fill_price,omitempty"`
	Events           []OrderEvent     `json:"events,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
}

// IsTerminal reports whether the order status is final.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// IsOpen reports whether the order is still eligible for fills.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusNew, OrderStatusWorking, OrderStatusPartFilled:
		return true
	}
	return false
}

// AppendEvent adds an entry to the order's audit log.
func (o *Order) AppendEvent(ev OrderEvent) {
	o.Events = append(o.Events, ev)
}

// ConditionType returns the order's condition type, defaulting to "none".
func (o *Order) ConditionType() string {
	if o.Condition == nil || o.Condition.Type == "" {
		return ConditionNone
	}
	return o.Condition.Type
}
