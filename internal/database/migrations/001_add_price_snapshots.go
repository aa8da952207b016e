package migrations

import (
	"github.com/moneykids/invest-api/internal/stock"
	"gorm.io/gorm"
)

// AddPriceSnapshots creates the price snapshot table and lookup indexes
func AddPriceSnapshots(db *gorm.DB) error {
	if err := db.AutoMigrate(&stock.StockPrice{}); err != nil {
		return err
	}

	// Raw SQL for the non-unique indexes to have control over their shape
	indexes := []string{
		// Latest-price lookups scan newest first per stock
		`CREATE INDEX IF NOT EXISTS idx_stock_prices_stock_date
		 ON stock_prices(stock_id, price_date DESC)`,

		// Retention cleanup deletes by date across all stocks
		`CREATE INDEX IF NOT EXISTS idx_stock_prices_date
		 ON stock_prices(price_date)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
