package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accessd/internal/observability/logger"
	"github.com/smallbiznis/accessd/internal/permission"
	"github.com/smallbiznis/accessd/internal/reqcontext"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/smallbiznis/accessd/pkg/telemetry"
	"go.uber.org/zap"
)

const (
	HeaderUserID   = "X-User-ID"
	contextSeatKey = "seat"

	rateLimitReasonClientRate = "client-rate"
)

// IdentityRequired trusts the caller id set by the upstream gateway.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderUserID)))
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Request = c.Request.WithContext(reqcontext.WithActorID(c.Request.Context(), userID))
		c.Next()
	}
}

func actorID(c *gin.Context) (snowflake.ID, bool) {
	return reqcontext.ActorIDFromContext(c.Request.Context())
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return *id, nil
}

// authorizeContract gates contract-wide administration on the :id path segment.
func (s *Server) authorizeContract(feature permission.Feature, action permission.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		contractID, err := pathID(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorize(c, contractID, feature, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeSeat loads the seat named by :id and gates on its contract.
func (s *Server) authorizeSeat(feature permission.Feature, action permission.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		seat, err := s.loadSeat(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorize(c, seat.ContractID, feature, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextSeatKey, seat)
		c.Next()
	}
}

// authorizeRole gates custom role edits on the owning contract. System roles pass
// through so the role service can reject them explicitly.
func (s *Server) authorizeRole(feature permission.Feature, action permission.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
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
		if role.ContractID != nil {
			if err := s.authorize(c, *role.ContractID, feature, action); err != nil {
				AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}

func (s *Server) authorize(c *gin.Context, contractID snowflake.ID, feature permission.Feature, action permission.Action) error {
	actor, ok := actorID(c)
	if !ok {
		return ErrUnauthorized
	}
	ctx := reqcontext.WithContractID(c.Request.Context(), contractID)
	c.Request = c.Request.WithContext(ctx)
	return s.guard.Authorize(ctx, actor, contractID, feature, action, permission.ScopeAll)
}

func (s *Server) loadSeat(c *gin.Context) (*seatdomain.ContractSeat, error) {
	if cached, ok := c.Get(contextSeatKey); ok {
		if seat, ok := cached.(*seatdomain.ContractSeat); ok {
			return seat, nil
		}
	}
	seatID, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	return s.seatSvc.GetSeat(c.Request.Context(), seatID)
}

// InvitationRateLimit throttles token probing per client IP. Without a limiter it passes through.
func (s *Server) InvitationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.invitationLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res := s.invitationLimiter.Allow(ctx, c.ClientIP())
		if res.Allowed {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		logger.FromContext(ctx).Warn("invitation rate limit exceeded",
			zap.String("reason", rateLimitReasonClientRate),
			zap.String("endpoint", endpoint),
		)
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonClientRate)

		retryAfter := int(res.RetryAfter / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
		AbortWithError(c, ErrRateLimited)
	}
}

func observeRequests(m *telemetry.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
