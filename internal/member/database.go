package member

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a Database bound to the given transaction so member reads
// and balance updates participate in the caller's unit of work.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

func (d *Database) CreateMember(m *Member) error {
	return d.db.Create(m).Error
}

func (d *Database) GetMember(memberID string) (*Member, error) {
	var m Member
	if err := d.db.Where("member_id = ?", memberID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (d *Database) GetMemberByUsername(username string) (*Member, error) {
	var m Member
	if err := d.db.Where("username = ?", username).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// AdjustPoints applies a signed delta to the member's balance. Debits are
// conditional on sufficient balance so two operations racing past their own
// balance checks can never drive the balance negative.
func (d *Database) AdjustPoints(memberID string, delta int64) error {
	query := d.db.Model(&Member{}).Where("member_id = ?", memberID)
	if delta < 0 {
		query = query.Where("points >= ?", -delta)
	}

	result := query.Update("points", gorm.Expr("points + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if delta >= 0 {
			return gorm.ErrRecordNotFound
		}
		m, err := d.GetMember(memberID)
		if err != nil {
			return err
		}
		if m == nil {
			return gorm.ErrRecordNotFound
		}
		return ErrInsufficientBalance
	}
	return nil
}
