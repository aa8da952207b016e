package migrations

import (
	"github.com/moneykids/invest-api/internal/trading"
	"gorm.io/gorm"
)

// AddTradeLedger creates the trade ledger table and its daily-limit indexes.
// The partial unique (member, stock, day) index over open BUY rows is the
// hard guarantee behind the one-buy-per-day rule; a racing insert fails here
// even if the engine's check passed. Selling flips rows to SELL, which takes
// them out of the index, so a same-day re-buy and a later batch flip of
// several rows sharing a trade date both stay legal. The one-sell-per-day
// rule is carried by sold_at, not by uniqueness.
func AddTradeLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&trading.StockTrade{}); err != nil {
		return err
	}

	indexes := []string{
		// Databases that predate the partial index carry a full unique index
		// covering SELL rows too; it must go first
		`DROP INDEX IF EXISTS idx_trade_daily`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_trades_daily_buy
		 ON stock_trades(member_id, stock_id, trade_date) WHERE side = 'BUY'`,

		// Open-position scans filter by member, stock and side
		`CREATE INDEX IF NOT EXISTS idx_stock_trades_position
		 ON stock_trades(member_id, stock_id, side)`,

		// Sold-today checks range over sold_at
		`CREATE INDEX IF NOT EXISTS idx_stock_trades_sold_at
		 ON stock_trades(member_id, stock_id, sold_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
