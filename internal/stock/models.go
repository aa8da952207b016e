package stock

import (
	"time"

	"gorm.io/gorm"
)

// Stock is immutable reference data for one simulated security.
type Stock struct {
	gorm.Model `json:"-"`
	StockID    string    `gorm:"uniqueIndex" json:"stock_id"`
	Symbol     string    `gorm:"uniqueIndex" json:"symbol"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// StockPrice is the daily snapshot for a stock. PriceDate is a UTC calendar
// day; at most one snapshot exists per (stock, day). Prices are in points.
type StockPrice struct {
	gorm.Model `json:"-"`
	StockID    string    `gorm:"index:idx_stock_price_day,unique" json:"stock_id"`
	PriceDate  time.Time `gorm:"index:idx_stock_price_day,unique" json:"price_date"`
	AvgPrice   int64     `json:"avg_price"`
	HighPrice  int64     `json:"high_price"`
	LowPrice   int64     `json:"low_price"`
	CreatedAt  time.Time `json:"created_at"`
}

// Day truncates t to its UTC calendar day. All daily-limit and snapshot
// lookups share this boundary.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
