package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	invitationdomain "github.com/smallbiznis/accessd/internal/invitation/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
)

type createContractRequest struct {
	Name         string `json:"name"`
	BillingEmail string `json:"billing_email"`
	ContractType string `json:"contract_type"`
}

func (s *Server) CreateContract(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	contract, err := s.contractSvc.CreateContract(c.Request.Context(), actor, contractdomain.CreateContractRequest{
		Name:         strings.TrimSpace(req.Name),
		BillingEmail: strings.TrimSpace(req.BillingEmail),
		ContractType: strings.TrimSpace(req.ContractType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": contract})
}

func (s *Server) GetContract(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	contract, err := s.contractSvc.GetContract(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contract})
}

func (s *Server) ListStores(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stores, err := s.contractSvc.ListStores(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if stores == nil {
		stores = []contractdomain.Store{}
	}
	c.JSON(http.StatusOK, gin.H{"data": stores})
}

type addStoreRequest struct {
	Name        string                           `json:"name"`
	Integration *contractdomain.IntegrationInput `json:"integration"`
}

func (s *Server) AddStore(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req addStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	store, err := s.contractSvc.AddStore(c.Request.Context(), contractID, contractdomain.AddStoreRequest{
		Name:        strings.TrimSpace(req.Name),
		Integration: req.Integration,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": store})
}

func (s *Server) DeleteStore(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	storeID, err := pathID(c, "store_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.contractSvc.DeleteStore(c.Request.Context(), contractID, storeID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListSeats(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	seats, err := s.seatSvc.ListSeatsByContract(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if seats == nil {
		seats = []seatdomain.ContractSeat{}
	}
	c.JSON(http.StatusOK, gin.H{"data": seats})
}

type storeAccessEntry struct {
	StoreID   snowflake.ID  `json:"store_id"`
	RoleID    *snowflake.ID `json:"role_id,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

func toStoreAccessInputs(entries []storeAccessEntry) []seatdomain.StoreAccessInput {
	out := make([]seatdomain.StoreAccessInput, 0, len(entries))
	for _, entry := range entries {
		out = append(out, seatdomain.StoreAccessInput{
			StoreID:   entry.StoreID,
			RoleID:    entry.RoleID,
			ExpiresAt: entry.ExpiresAt,
		})
	}
	return out
}

type createInvitationRequest struct {
	Email       string             `json:"email"`
	RoleID      snowflake.ID       `json:"role_id"`
	StoreAccess []storeAccessEntry `json:"store_access"`
}

func (s *Server) CreateInvitation(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issued, err := s.invitationSvc.CreateInvitation(c.Request.Context(), actor, invitationdomain.CreateInvitationRequest{
		ContractID: contractID,
		Email:      strings.TrimSpace(req.Email),
		RoleID:     req.RoleID,
		StoreScope: toStoreAccessInputs(req.StoreAccess),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": issued})
}
