package points

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/pkg/response"
)

// Service exposes read access to the point ledger. Writes happen through
// Database.WithTx inside the owning operation's transaction.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDB returns the underlying ledger database for transactional callers.
func (s *Service) GetDB() *Database {
	return s.db
}

// GetMovements returns the member's ledger history for the period.
func (s *Service) GetMovements(memberID string, from, to time.Time, movementType string) ([]PointMovement, error) {
	return s.db.GetMovements(memberID, from, to, movementType)
}

// GinHandlers contains HTTP handlers for point ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetMovementsHandler handles GET requests for a member's point history
// URL parameter: member_id
// Query parameters: days (default 7), type (optional category filter)
func (h *GinHandlers) GetMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID := c.Param("member_id")
		if memberID == "" {
			response.BadRequest(c, "Member ID is required")
			return
		}

		days := 7
		if raw := c.Query("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 365 {
				response.BadRequest(c, "days must be a positive integer")
				return
			}
			days = parsed
		}

		to := time.Now()
		from := to.AddDate(0, 0, -days)

		movements, err := h.service.GetMovements(memberID, from, to, c.Query("type"))
		response.Handle(c, movements, err)
	}
}
