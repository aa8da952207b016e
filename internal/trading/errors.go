package trading

import "errors"

// Request-rejection errors returned by the trading engine. All are local
// and synchronous; the engine never retries on the caller's behalf.
var (
	ErrStockNotFound      = errors.New("stock not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrAlreadyBought      = errors.New("stock already bought today")
	ErrAlreadySold        = errors.New("stock already sold today")
	ErrInsufficientPoints = errors.New("not enough points for this trade")
	ErrInvalidTradePoints = errors.New("trade points must be positive")
)
