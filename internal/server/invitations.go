package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/smallbiznis/accessd/internal/invitation/domain"
)

// ValidateInvitation reports token state in the body; an unusable token is still a 200.
func (s *Server) ValidateInvitation(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("token"))
	result, err := s.invitationSvc.ValidateInvitation(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type acceptInvitationRequest struct {
	Token       string `json:"token"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.invitationSvc.AcceptInvitation(c.Request.Context(), invitationdomain.AcceptRequest{
		Token:       strings.TrimSpace(req.Token),
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
