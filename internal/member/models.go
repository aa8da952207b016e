package member

import (
	"time"

	"gorm.io/gorm"
)

// Member is a registered player in the simulation. Points is the current
// spendable balance; every change to it is mirrored by a ledger entry in the
// points package.
type Member struct {
	gorm.Model `json:"-"`
	MemberID   string    `gorm:"uniqueIndex" json:"member_id"`
	Username   string    `gorm:"uniqueIndex" json:"username"`
	Name       string    `json:"name"`
	Points     int64     `json:"points"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
