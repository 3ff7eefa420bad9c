package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
)

func (s *Server) ListMyStores(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	purpose, err := accessdomain.ParsePurpose(c.Query("purpose"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stores, err := s.accessSvc.ResolveAccessibleStores(c.Request.Context(), actor, purpose)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if stores == nil {
		stores = []accessdomain.AccessibleStore{}
	}

	c.JSON(http.StatusOK, gin.H{"data": stores})
}

func (s *Server) CheckMyStoreAccess(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	allowed, err := s.accessSvc.CheckStoreAccess(c.Request.Context(), actor, strings.TrimSpace(c.Param("public_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"allowed": allowed}})
}

type validateStoresRequest struct {
	StoreIDs []string `json:"store_ids"`
}

func (s *Server) ValidateMyStores(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req validateStoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.accessSvc.ValidateAccess(c.Request.Context(), actor, req.StoreIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
