package points

import (
	"time"

	"gorm.io/gorm"
)

// Movement categories.
const (
	TypeStock      = "STOCK"
	TypeAttendance = "ATTENDANCE"
	TypeGame       = "GAME"
)

// Movement statuses. USED debits the member balance, EARNED credits it.
const (
	StatusUsed   = "USED"
	StatusEarned = "EARNED"
)

// Stock movement subtypes, recorded so the ledger can distinguish the two
// legs of a stock trade.
const (
	StockSideBuy  = "BUY"
	StockSideSell = "SELL"
)

// PointMovement is one append-only ledger entry. Amount is always positive;
// Status determines the sign applied to the member balance.
type PointMovement struct {
	gorm.Model `json:"-"`
	MovementID string    `gorm:"uniqueIndex" json:"movement_id"`
	MemberID   string    `gorm:"index" json:"member_id"`
	Amount     int64     `json:"amount"`
	Type       string    `json:"type"`   // STOCK, ATTENDANCE, GAME
	Status     string    `json:"status"` // USED or EARNED
	StockSide  string    `json:"stock_side,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
