package stock

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/pkg/response"
)

// ErrPriceNotFound means no snapshot exists for the stock on the current UTC
// day. Stale snapshots from earlier days are never substituted.
var ErrPriceNotFound = errors.New("no price snapshot for today")

// Service exposes the stock catalog and price snapshots.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDB returns the underlying database for transactional callers and the
// snapshot processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateStock adds a security to the catalog. Used by seeding; the catalog
// is reference data and has no mutation endpoint.
func (s *Service) CreateStock(symbol, name string) (*Stock, error) {
	existing, err := s.db.GetStockBySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	st := &Stock{
		StockID:   uuid.New().String(),
		Symbol:    symbol,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateStock(st); err != nil {
		return nil, err
	}
	return st, nil
}

// ListStocks returns the full catalog ordered by symbol.
func (s *Service) ListStocks() ([]Stock, error) {
	return s.db.ListStocks()
}

// GetStock returns a stock by ID. Returns (nil, nil) when absent.
func (s *Service) GetStock(stockID string) (*Stock, error) {
	return s.db.GetStock(stockID)
}

// AveragePriceToday returns today's average price for the stock. Absence of
// a same-day snapshot is a hard ErrPriceNotFound, even if older snapshots
// exist.
func (s *Service) AveragePriceToday(stockID string) (int64, error) {
	price, err := s.db.GetPriceForDay(stockID, time.Now())
	if err != nil {
		return 0, err
	}
	if price == nil {
		return 0, ErrPriceNotFound
	}
	return price.AvgPrice, nil
}

// LatestPrice returns the most recent snapshot for display purposes.
func (s *Service) LatestPrice(stockID string) (*StockPrice, error) {
	return s.db.GetLatestPrice(stockID)
}

// PriceHistory returns up to limit snapshots, newest first.
func (s *Service) PriceHistory(stockID string, limit int) ([]StockPrice, error) {
	return s.db.GetPriceHistory(stockID, limit)
}

// GinHandlers contains HTTP handlers for stock endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListStocksHandler handles GET requests for the stock catalog
func (h *GinHandlers) ListStocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stocks, err := h.service.ListStocks()
		response.Handle(c, stocks, err)
	}
}

// GetPriceHandler handles GET requests for today's average price
// URL parameter: stock_id
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stockID := c.Param("stock_id")

		st, err := h.service.GetStock(stockID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if st == nil {
			response.NotFound(c, "Stock not found")
			return
		}

		avg, err := h.service.AveragePriceToday(stockID)
		if errors.Is(err, ErrPriceNotFound) {
			response.ServiceUnavailable(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, gin.H{
			"stock_id":  stockID,
			"symbol":    st.Symbol,
			"avg_price": avg,
		})
	}
}

// GetPriceHistoryHandler handles GET requests for a stock's snapshot history
// URL parameter: stock_id
// Query parameter: limit (default 14)
func (h *GinHandlers) GetPriceHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stockID := c.Param("stock_id")

		st, err := h.service.GetStock(stockID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if st == nil {
			response.NotFound(c, "Stock not found")
			return
		}

		limit := 14
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				response.BadRequest(c, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		history, err := h.service.PriceHistory(stockID, limit)
		response.Handle(c, history, err)
	}
}
