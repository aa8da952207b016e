package trading

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/moneykids/invest-api/internal/stock"
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

func (d *Database) CreateTrade(trade *StockTrade) error {
	return d.db.Create(trade).Error
}

// FindTodayBuy returns the BUY row created today for the member and stock,
// or (nil, nil) when the member has not bought today.
func (d *Database) FindTodayBuy(memberID, stockID string) (*StockTrade, error) {
	var trade StockTrade
	err := d.db.
		Where("member_id = ? AND stock_id = ? AND side = ? AND trade_date = ?",
			memberID, stockID, SideBuy, stock.Day(time.Now())).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// FindTodaySell returns a row the member flipped to SELL today for the
// stock, or (nil, nil) when no sell action happened today. The flip keeps
// the row's original trade date, so "sold today" is tracked by sold_at.
func (d *Database) FindTodaySell(memberID, stockID string) (*StockTrade, error) {
	today := stock.Day(time.Now())
	tomorrow := today.AddDate(0, 0, 1)

	var trade StockTrade
	err := d.db.
		Where("member_id = ? AND stock_id = ? AND side = ? AND sold_at >= ? AND sold_at < ?",
			memberID, stockID, SideSell, today, tomorrow).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

// FindOpenBuys returns every still-open BUY row for the member and stock,
// oldest first.
func (d *Database) FindOpenBuys(memberID, stockID string) ([]StockTrade, error) {
	var trades []StockTrade
	err := d.db.
		Where("member_id = ? AND stock_id = ? AND side = ?", memberID, stockID, SideBuy).
		Order("trade_date").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// MarkSold flips the given rows to SELL in one statement so a partially
// flipped batch is never observable. Fails if any row was already flipped.
func (d *Database) MarkSold(tradeIDs []string, soldAt time.Time) error {
	result := d.db.Model(&StockTrade{}).
		Where("trade_id IN ? AND side = ?", tradeIDs, SideBuy).
		Updates(map[string]interface{}{
			"side":    SideSell,
			"sold_at": soldAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(tradeIDs)) {
		return fmt.Errorf("expected to close %d orders, closed %d", len(tradeIDs), result.RowsAffected)
	}
	return nil
}

// FindTradesByMember returns the member's full trade history, newest first.
func (d *Database) FindTradesByMember(memberID string) ([]StockTrade, error) {
	var trades []StockTrade
	err := d.db.
		Where("member_id = ?", memberID).
		Order("trade_date DESC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}
