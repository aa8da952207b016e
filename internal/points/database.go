package points

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/internal/member"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a Database bound to the given transaction. Trade execution
// records its point movements through this so the ledger entry, the balance
// change, and the trade row commit or roll back together.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// RecordMovement appends a ledger entry and applies the matching balance
// change to the member. Amount must be positive; the status picks the sign.
func (d *Database) RecordMovement(memberID string, amount int64, movementType, status, stockSide string) error {
	if amount < 0 {
		return fmt.Errorf("movement amount must not be negative, got %d", amount)
	}

	movement := &PointMovement{
		MovementID: uuid.New().String(),
		MemberID:   memberID,
		Amount:     amount,
		Type:       movementType,
		Status:     status,
		StockSide:  stockSide,
		CreatedAt:  time.Now(),
	}

	if err := d.db.Create(movement).Error; err != nil {
		return err
	}

	delta := amount
	if status == StatusUsed {
		delta = -amount
	}

	if err := member.NewDatabase(d.db).AdjustPoints(memberID, delta); err != nil {
		return fmt.Errorf("failed to apply balance change: %w", err)
	}

	return nil
}

// GetMovements returns a member's ledger entries for the given period,
// optionally filtered by movement type, newest first.
func (d *Database) GetMovements(memberID string, from, to time.Time, movementType string) ([]PointMovement, error) {
	query := d.db.Where("member_id = ? AND created_at BETWEEN ? AND ?", memberID, from, to)
	if movementType != "" {
		query = query.Where("type = ?", movementType)
	}

	var movements []PointMovement
	if err := query.Order("created_at DESC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
