package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
)

func (s *Server) ListSystemRoles(c *gin.Context) {
	roles, err := s.roleSvc.ListSystemRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": roles})
}

func (s *Server) ListContractRoles(c *gin.Context) {
	contractID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	roles, err := s.roleSvc.ListContractRoles(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if roles == nil {
		roles = []roledomain.Role{}
	}
	c.JSON(http.StatusOK, gin.H{"data": roles})
}

func (s *Server) GetRole(c *gin.Context) {
	roleID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	role, err := s.roleSvc.GetRole(c.Request.Context(), roleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": role})
}

func (s *Server) CheckRolePermission(c *gin.Context) {
	roleID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	feature, err := permission.ParseFeature(c.Query("feature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	action, err := permission.ParseAction(c.Query("action"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scope, err := s.accessSvc.CheckPermission(c.Request.Context(), roleID, feature, action)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"feature": feature.String(),
		"action":  action.String(),
		"scope":   scope.String(),
		"allowed": scope.Allowed(),
	}})
}

type createRoleRequest struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description"`
	Level       int                    `json:"level"`
	Permissions permission.Permissions `json:"permissions"`
}

func (s *Server) CreateRole(c *gin.Context) {
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
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := s.roleSvc.CreateCustomRole(c.Request.Context(), actor, contractID, roledomain.CreateRoleRequest{
		Name:        strings.TrimSpace(req.Name),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Description: strings.TrimSpace(req.Description),
		Level:       req.Level,
		Permissions: req.Permissions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": role})
}

type updateRoleRequest struct {
	DisplayName *string                 `json:"display_name"`
	Description *string                 `json:"description"`
	Permissions *permission.Permissions `json:"permissions"`
}

func (s *Server) UpdateRole(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	roleID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role, err := s.roleSvc.UpdateRole(c.Request.Context(), actor, roleID, roledomain.UpdateRoleRequest{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": role})
}

func (s *Server) DeleteRole(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	roleID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.roleSvc.DeleteRole(c.Request.Context(), actor, roleID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
