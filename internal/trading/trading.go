package trading

import (
	"errors"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/internal/auth"
	"github.com/moneykids/invest-api/internal/member"
	"github.com/moneykids/invest-api/internal/points"
	"github.com/moneykids/invest-api/internal/stock"
	"github.com/moneykids/invest-api/pkg/response"
)

// Service is the trading engine. Every buy and sell runs as one database
// transaction covering the daily-limit check, the balance check, the point
// movement and the trade-ledger mutation; a failure anywhere rolls the whole
// operation back. Execution is additionally serialized per (member, stock)
// so a racing duplicate lands on the AlreadyBought/AlreadySold path.
type Service struct {
	gormDB  *gorm.DB
	db      *Database
	members *member.Database
	points  *points.Database
	stocks  *stock.Database
	locks   *tradeLocks
}

// NewService creates a new trading service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		gormDB:  gormDB,
		db:      NewDatabase(gormDB),
		members: member.NewDatabase(gormDB),
		points:  points.NewDatabase(gormDB),
		stocks:  stock.NewDatabase(gormDB),
		locks:   newTradeLocks(),
	}
}

// Buy places a buy order worth tradePoints against the stock at today's
// average price. The member's balance is read once inside the transaction
// and that same snapshot feeds the sufficiency check, the debit and the
// all-in warning, so the warning can never reflect a stale balance.
// Returns AllInWarning=true when the order consumed the entire balance.
func (s *Service) Buy(memberID, stockID string, tradePoints int64) (*BuyResult, error) {
	logger := log.With().
		Str("operation", "buy").
		Str("member_id", memberID).
		Str("stock_id", stockID).
		Int64("trade_points", tradePoints).
		Logger()

	if tradePoints <= 0 {
		return nil, ErrInvalidTradePoints
	}

	unlock := s.locks.Lock(memberID + ":" + stockID)
	defer unlock()

	tx := s.gormDB.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	st, err := s.stocks.WithTx(tx).GetStock(stockID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if st == nil {
		tx.Rollback()
		return nil, ErrStockNotFound
	}

	m, err := s.members.WithTx(tx).GetMember(memberID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if m == nil {
		tx.Rollback()
		return nil, ErrMemberNotFound
	}

	todayBuy, err := s.db.WithTx(tx).FindTodayBuy(memberID, stockID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if todayBuy != nil {
		tx.Rollback()
		return nil, ErrAlreadyBought
	}

	if m.Points < tradePoints {
		tx.Rollback()
		return nil, ErrInsufficientPoints
	}

	price, err := s.stocks.WithTx(tx).GetPriceForDay(stockID, time.Now())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if price == nil {
		tx.Rollback()
		return nil, stock.ErrPriceNotFound
	}

	err = s.points.WithTx(tx).RecordMovement(
		memberID, tradePoints, points.TypeStock, points.StatusUsed, points.StockSideBuy)
	if err != nil {
		tx.Rollback()
		// The guarded debit catches a concurrent buy on another stock that
		// drained the balance after our check
		if errors.Is(err, member.ErrInsufficientBalance) {
			return nil, ErrInsufficientPoints
		}
		return nil, err
	}

	trade := &StockTrade{
		TradeID:      uuid.New().String(),
		MemberID:     memberID,
		StockID:      stockID,
		TradeDate:    stock.Day(time.Now()),
		Side:         SideBuy,
		TradePoints:  tradePoints,
		PricePerUnit: price.AvgPrice,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.WithTx(tx).CreateTrade(trade); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	result := &BuyResult{
		TradeID:      trade.TradeID,
		TradePoints:  tradePoints,
		PricePerUnit: price.AvgPrice,
		AllInWarning: tradePoints == m.Points,
	}

	logger.Info().
		Str("trade_id", trade.TradeID).
		Int64("price_per_unit", price.AvgPrice).
		Bool("all_in_warning", result.AllInWarning).
		Msg("buy executed")
	return result, nil
}

// Sell liquidates every open buy order the member holds for the stock at
// today's average price. Each order's payout is rounded half-up on its own
// before summing; the caller gets the realized profit, which may be
// negative. All flipped rows, the point credit and the balance change
// commit as one unit.
func (s *Service) Sell(memberID, stockID string) (*SellResult, error) {
	logger := log.With().
		Str("operation", "sell").
		Str("member_id", memberID).
		Str("stock_id", stockID).
		Logger()

	unlock := s.locks.Lock(memberID + ":" + stockID)
	defer unlock()

	tx := s.gormDB.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	openBuys, err := s.db.WithTx(tx).FindOpenBuys(memberID, stockID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(openBuys) == 0 {
		tx.Rollback()
		return nil, ErrStockNotFound
	}

	todaySell, err := s.db.WithTx(tx).FindTodaySell(memberID, stockID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if todaySell != nil {
		tx.Rollback()
		return nil, ErrAlreadySold
	}

	price, err := s.stocks.WithTx(tx).GetPriceForDay(stockID, time.Now())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if price == nil {
		tx.Rollback()
		return nil, stock.ErrPriceNotFound
	}

	var totalPayout, investedPoints int64
	tradeIDs := make([]string, 0, len(openBuys))
	for _, buy := range openBuys {
		totalPayout += orderPayout(buy.TradePoints, buy.PricePerUnit, price.AvgPrice)
		investedPoints += buy.TradePoints
		tradeIDs = append(tradeIDs, buy.TradeID)
	}

	if err := s.db.WithTx(tx).MarkSold(tradeIDs, time.Now()); err != nil {
		tx.Rollback()
		return nil, err
	}

	err = s.points.WithTx(tx).RecordMovement(
		memberID, totalPayout, points.TypeStock, points.StatusEarned, points.StockSideSell)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	result := &SellResult{
		TotalPayout:    totalPayout,
		InvestedPoints: investedPoints,
		Profit:         totalPayout - investedPoints,
		OrdersClosed:   len(tradeIDs),
	}

	logger.Info().
		Int64("total_payout", totalPayout).
		Int64("invested_points", investedPoints).
		Int64("profit", result.Profit).
		Int("orders_closed", result.OrdersClosed).
		Msg("sell executed")
	return result, nil
}

// orderPayout computes one order's payout at today's average price, rounded
// half-up independently of the rest of the batch.
func orderPayout(tradePoints, pricePerUnit, todayAvg int64) int64 {
	rate := float64(todayAvg) / float64(pricePerUnit)
	return int64(math.Round(float64(tradePoints) * rate))
}

// IsTradeAvailable reports whether the member may still buy or sell the
// stock today. It only checks the daily limits: balance and open positions
// are enforced at execution, so a true flag can still end in a rejection.
func (s *Service) IsTradeAvailable(memberID, stockID string) (*TradeAvailability, error) {
	m, err := s.members.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}

	st, err := s.stocks.GetStock(stockID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrStockNotFound
	}

	todayBuy, err := s.db.FindTodayBuy(memberID, stockID)
	if err != nil {
		return nil, err
	}
	todaySell, err := s.db.FindTodaySell(memberID, stockID)
	if err != nil {
		return nil, err
	}

	return &TradeAvailability{
		CanBuy:  todayBuy == nil,
		CanSell: todaySell == nil,
	}, nil
}

// GetHoldings returns the member's trade history, newest first, with stock
// display data joined in.
func (s *Service) GetHoldings(memberID string) ([]Holding, error) {
	trades, err := s.db.FindTradesByMember(memberID)
	if err != nil {
		return nil, err
	}

	stocks, err := s.stocks.ListStocks()
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]stock.Stock, len(stocks))
	for _, st := range stocks {
		bySymbol[st.StockID] = st
	}

	holdings := make([]Holding, 0, len(trades))
	for _, t := range trades {
		st := bySymbol[t.StockID]
		holdings = append(holdings, Holding{
			TradeID:      t.TradeID,
			StockID:      t.StockID,
			Symbol:       st.Symbol,
			StockName:    st.Name,
			TradePoints:  t.TradePoints,
			PricePerUnit: t.PricePerUnit,
			Side:         t.Side,
			TradeDate:    t.TradeDate,
			SoldAt:       t.SoldAt,
		})
	}
	return holdings, nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type buyRequest struct {
	TradePoints int64 `json:"trade_points" binding:"required"`
}

// BuyHandler handles POST requests to buy a stock
// Requires a valid JWT token; the member is taken from the token claims
// URL parameter: stock_id
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		// Get member ID from claims
		memberID := auth.GetMemberID(claims)
		if memberID == "" {
			response.Unauthorized(c, "Invalid member ID in token")
			return
		}

		var req buyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Buy(memberID, c.Param("stock_id"), req.TradePoints)
		if err != nil {
			respondTradeError(c, err)
			return
		}
		response.Success(c, result)
	}
}

// SellHandler handles POST requests to sell all open positions in a stock
// Requires a valid JWT token; the member is taken from the token claims
// URL parameter: stock_id
func (h *GinHandlers) SellHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		// Get member ID from claims
		memberID := auth.GetMemberID(claims)
		if memberID == "" {
			response.Unauthorized(c, "Invalid member ID in token")
			return
		}

		result, err := h.service.Sell(memberID, c.Param("stock_id"))
		if err != nil {
			respondTradeError(c, err)
			return
		}
		response.Success(c, result)
	}
}

// AvailabilityHandler handles GET requests for today's trade availability
// URL parameter: stock_id
func (h *GinHandlers) AvailabilityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		// Get member ID from claims
		memberID := auth.GetMemberID(claims)
		if memberID == "" {
			response.Unauthorized(c, "Invalid member ID in token")
			return
		}

		availability, err := h.service.IsTradeAvailable(memberID, c.Param("stock_id"))
		if err != nil {
			respondTradeError(c, err)
			return
		}
		response.Success(c, availability)
	}
}

// HoldingsHandler handles GET requests for the member's trade history
func (h *GinHandlers) HoldingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get claims from context
		claims, exists := c.Get("claims")
		if !exists {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		// Get member ID from claims
		memberID := auth.GetMemberID(claims)
		if memberID == "" {
			response.Unauthorized(c, "Invalid member ID in token")
			return
		}

		holdings, err := h.service.GetHoldings(memberID)
		response.Handle(c, holdings, err)
	}
}

// respondTradeError maps engine errors onto the API error taxonomy.
func respondTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrStockNotFound), errors.Is(err, ErrMemberNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrAlreadyBought), errors.Is(err, ErrAlreadySold):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInsufficientPoints), errors.Is(err, ErrInvalidTradePoints):
		response.BadRequest(c, err.Error())
	case errors.Is(err, stock.ErrPriceNotFound):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
