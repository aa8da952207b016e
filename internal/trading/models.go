package trading

import (
	"time"

	"gorm.io/gorm"
)

// Trade directions. A trade row is created as BUY and flipped in place to
// SELL when the position is liquidated; SELL is terminal.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// StockTrade is one row of the trade ledger. TradeDate is the UTC calendar
// day the buy was placed; a partial unique index on open BUY rows (see the
// trade ledger migration) enforces at most one open BUY per member, stock and
// day. SoldAt is set when the row flips to SELL and drives the
// one-sell-per-day check; flipped rows leave the uniqueness scope so a
// same-day re-buy after a sell stays legal. PricePerUnit is fixed at creation
// and never changes.
type StockTrade struct {
	gorm.Model   `json:"-"`
	TradeID      string     `gorm:"uniqueIndex" json:"trade_id"`
	MemberID     string     `json:"member_id"`
	StockID      string     `json:"stock_id"`
	TradeDate    time.Time  `json:"trade_date"`
	Side         string     `json:"side"`
	TradePoints  int64      `json:"trade_points"`
	PricePerUnit int64      `json:"price_per_unit"`
	SoldAt       *time.Time `gorm:"index" json:"sold_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TradeAvailability reports the two daily-limit flags for a member and
// stock. It deliberately ignores balance and open positions; those are only
// enforced when the trade executes.
type TradeAvailability struct {
	CanBuy  bool `json:"can_buy"`
	CanSell bool `json:"can_sell"`
}

// BuyResult is returned from a successful buy.
type BuyResult struct {
	TradeID      string `json:"trade_id"`
	TradePoints  int64  `json:"trade_points"`
	PricePerUnit int64  `json:"price_per_unit"`
	AllInWarning bool   `json:"all_in_warning"`
}

// SellResult is returned from a successful sell. Profit may be negative.
type SellResult struct {
	TotalPayout    int64 `json:"total_payout"`
	InvestedPoints int64 `json:"invested_points"`
	Profit         int64 `json:"profit"`
	OrdersClosed   int   `json:"orders_closed"`
}

// Holding is one trade-history row with the stock's display data attached.
type Holding struct {
	TradeID      string     `json:"trade_id"`
	StockID      string     `json:"stock_id"`
	Symbol       string     `json:"symbol"`
	StockName    string     `json:"stock_name"`
	TradePoints  int64      `json:"trade_points"`
	PricePerUnit int64      `json:"price_per_unit"`
	Side         string     `json:"side"`
	TradeDate    time.Time  `json:"trade_date"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
}
