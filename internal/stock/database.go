package stock

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a Database bound to the given transaction.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

func (d *Database) CreateStock(s *Stock) error {
	return d.db.Create(s).Error
}

func (d *Database) GetStock(stockID string) (*Stock, error) {
	var s Stock
	if err := d.db.Where("stock_id = ?", stockID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (d *Database) GetStockBySymbol(symbol string) (*Stock, error) {
	var s Stock
	if err := d.db.Where("symbol = ?", symbol).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (d *Database) ListStocks() ([]Stock, error) {
	var stocks []Stock
	if err := d.db.Order("symbol").Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

func (d *Database) CreatePrice(p *StockPrice) error {
	return d.db.Create(p).Error
}

// GetPriceForDay returns the snapshot for the given UTC day, or (nil, nil)
// when no snapshot exists. There is no fallback to earlier days.
func (d *Database) GetPriceForDay(stockID string, day time.Time) (*StockPrice, error) {
	var p StockPrice
	err := d.db.Where("stock_id = ? AND price_date = ?", stockID, Day(day)).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetLatestPrice returns the most recent snapshot regardless of day, or
// (nil, nil) when the stock has no snapshots at all.
func (d *Database) GetLatestPrice(stockID string) (*StockPrice, error) {
	var p StockPrice
	err := d.db.Where("stock_id = ?", stockID).Order("price_date DESC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetPriceHistory returns up to limit snapshots, newest first.
func (d *Database) GetPriceHistory(stockID string, limit int) ([]StockPrice, error) {
	var prices []StockPrice
	query := d.db.Where("stock_id = ?", stockID).Order("price_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&prices).Error; err != nil {
		return nil, err
	}
	return prices, nil
}

// DeleteOldPrices removes snapshots dated before the given day.
func (d *Database) DeleteOldPrices(before time.Time) error {
	return d.db.Where("price_date < ?", Day(before)).Delete(&StockPrice{}).Error
}
