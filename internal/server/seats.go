package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
)

func (s *Server) GetSeat(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": seat})
}

func (s *Server) ResendInvitation(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	issued, err := s.invitationSvc.ResendInvitation(c.Request.Context(), actor, seat.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": issued})
}

func (s *Server) SuspendSeat(c *gin.Context) {
	s.transitionSeat(c, s.seatSvc.Suspend)
}

func (s *Server) ReactivateSeat(c *gin.Context) {
	s.transitionSeat(c, s.seatSvc.Reactivate)
}

func (s *Server) transitionSeat(c *gin.Context, move func(ctx context.Context, id snowflake.ID) (*seatdomain.ContractSeat, error)) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	updated, err := move(c.Request.Context(), seat.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

type setSeatRoleRequest struct {
	RoleID snowflake.ID `json:"role_id"`
}

func (s *Server) SetSeatRole(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req setSeatRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RoleID <= 0 {
		AbortWithError(c, newValidationError("role_id", "invalid_role_id", "invalid role_id"))
		return
	}

	updated, err := s.seatSvc.SetDefaultRole(c.Request.Context(), seat.ID, req.RoleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

type setStoreAccessRequest struct {
	StoreAccess []storeAccessEntry `json:"store_access"`
}

func (s *Server) SetSeatStoreAccess(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req setStoreAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.seatSvc.SetStoreAccess(c.Request.Context(), seat.ID, toStoreAccessInputs(req.StoreAccess))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) ListSeatStoreTags(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tags, err := s.seatSvc.ListStoreTags(c.Request.Context(), seat.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tags == nil {
		tags = []seatdomain.SeatStoreTag{}
	}
	c.JSON(http.StatusOK, gin.H{"data": tags})
}

type setStoreTagsRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) SetSeatStoreTags(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	storeID, err := pathID(c, "store_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req setStoreTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tag, err := s.seatSvc.SetStoreTags(c.Request.Context(), seat.ID, storeID, req.Tags)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tag})
}

func (s *Server) GetSeatUsage(c *gin.Context) {
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	counters, err := s.seatSvc.GetUsage(c.Request.Context(), seat.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if counters == nil {
		counters = []seatdomain.SeatUsageCounter{}
	}
	c.JSON(http.StatusOK, gin.H{"data": counters})
}

type recordUsageRequest struct {
	Metric         string `json:"metric"`
	Quantity       int64  `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RecordSeatUsage lets a seat holder report their own usage.
func (s *Server) RecordSeatUsage(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	seat, err := s.loadSeat(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if seat.UserID != actor {
		AbortWithError(c, ErrForbidden)
		return
	}
	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	counter, err := s.seatSvc.RecordUsage(c.Request.Context(), seatdomain.RecordUsageRequest{
		SeatID:         seat.ID,
		Metric:         req.Metric,
		Quantity:       req.Quantity,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": counter})
}
