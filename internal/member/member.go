package member

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/moneykids/invest-api/pkg/response"
)

var (
	ErrUsernameTaken       = errors.New("username is already taken")
	ErrInsufficientBalance = errors.New("insufficient point balance")
)

// StartingPoints is the balance granted to every new member.
const StartingPoints int64 = 2000

// Service handles member registration and lookups.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateMember registers a new member with the starting point balance.
// Usernames are unique; a duplicate registration fails with ErrUsernameTaken.
func (s *Service) CreateMember(username, name string) (*Member, error) {
	existing, err := s.db.GetMemberByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	m := &Member{
		MemberID:  uuid.New().String(),
		Username:  username,
		Name:      name,
		Points:    StartingPoints,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateMember(m); err != nil {
		return nil, err
	}

	log.Info().
		Str("member_id", m.MemberID).
		Str("username", m.Username).
		Int64("points", m.Points).
		Msg("registered new member")

	return m, nil
}

// GetMember retrieves a member by ID. Returns (nil, nil) when absent.
func (s *Service) GetMember(memberID string) (*Member, error) {
	return s.db.GetMember(memberID)
}

// GetMemberByUsername retrieves a member by username. Returns (nil, nil)
// when absent.
func (s *Service) GetMemberByUsername(username string) (*Member, error) {
	return s.db.GetMemberByUsername(username)
}

// GinHandlers contains HTTP handlers for member endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createMemberRequest struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
}

// CreateMemberHandler handles POST requests to register members
func (h *GinHandlers) CreateMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		m, err := h.service.CreateMember(req.Username, req.Name)
		if errors.Is(err, ErrUsernameTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, m, err)
	}
}

// GetMemberHandler handles GET requests for a single member
// URL parameter: member_id
func (h *GinHandlers) GetMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		memberID := c.Param("member_id")
		if memberID == "" {
			response.BadRequest(c, "Member ID is required")
			return
		}

		m, err := h.service.GetMember(memberID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if m == nil {
			response.NotFound(c, "Member not found")
			return
		}

		response.Success(c, m)
	}
}
