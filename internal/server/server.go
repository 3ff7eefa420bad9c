package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/authorization"
	"github.com/smallbiznis/accessd/internal/config"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	invitationdomain "github.com/smallbiznis/accessd/internal/invitation/domain"
	"github.com/smallbiznis/accessd/internal/observability"
	obslogger "github.com/smallbiznis/accessd/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/accessd/internal/observability/metrics"
	obstracing "github.com/smallbiznis/accessd/internal/observability/tracing"
	"github.com/smallbiznis/accessd/internal/permission"
	"github.com/smallbiznis/accessd/internal/ratelimit"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	"github.com/smallbiznis/accessd/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *telemetry.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(observeRequests(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *telemetry.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	log    *zap.Logger

	accessSvc     accessdomain.Service
	contractSvc   contractdomain.Service
	seatSvc       seatdomain.Service
	roleSvc       roledomain.Service
	invitationSvc invitationdomain.Service
	auditSvc      auditdomain.Service
	guard         authorization.Guard

	obsMetrics        *obsmetrics.Metrics
	invitationLimiter *ratelimit.InvitationLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Log           *zap.Logger
	AccessSvc     accessdomain.Service
	ContractSvc   contractdomain.Service
	SeatSvc       seatdomain.Service
	RoleSvc       roledomain.Service
	InvitationSvc invitationdomain.Service
	AuditSvc      auditdomain.Service
	Guard         authorization.Guard

	ObsMetrics        *obsmetrics.Metrics           `optional:"true"`
	InvitationLimiter *ratelimit.InvitationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		log:               p.Log.Named("http.server"),
		accessSvc:         p.AccessSvc,
		contractSvc:       p.ContractSvc,
		seatSvc:           p.SeatSvc,
		roleSvc:           p.RoleSvc,
		invitationSvc:     p.InvitationSvc,
		auditSvc:          p.AuditSvc,
		guard:             p.Guard,
		obsMetrics:        p.ObsMetrics,
		invitationLimiter: p.InvitationLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerPublicRoutes mounts the endpoints reachable without an identity.
func (s *Server) registerPublicRoutes() {
	invitations := s.engine.Group("/v1/invitations", s.InvitationRateLimit())
	invitations.GET("/validate", s.ValidateInvitation)
	invitations.POST("/accept", s.AcceptInvitation)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.IdentityRequired())

	// -------- Access --------
	api.GET("/me/stores", s.ListMyStores)
	api.GET("/me/stores/:public_id/access", s.CheckMyStoreAccess)
	api.POST("/me/stores/validate", s.ValidateMyStores)

	// -------- Contracts --------
	api.POST("/contracts", s.CreateContract)
	api.GET("/contracts/:id", s.authorizeContract(permission.FeatureStores, permission.ActionView), s.GetContract)
	api.GET("/contracts/:id/stores", s.authorizeContract(permission.FeatureStores, permission.ActionView), s.ListStores)
	api.POST("/contracts/:id/stores", s.authorizeContract(permission.FeatureStores, permission.ActionManage), s.AddStore)
	api.DELETE("/contracts/:id/stores/:store_id", s.authorizeContract(permission.FeatureStores, permission.ActionManage), s.DeleteStore)
	api.GET("/contracts/:id/seats", s.authorizeContract(permission.FeatureUsers, permission.ActionView), s.ListSeats)
	api.POST("/contracts/:id/invitations", s.authorizeContract(permission.FeatureUsers, permission.ActionManage), s.CreateInvitation)
	api.GET("/contracts/:id/roles", s.authorizeContract(permission.FeatureRoles, permission.ActionView), s.ListContractRoles)
	api.POST("/contracts/:id/roles", s.authorizeContract(permission.FeatureRoles, permission.ActionManage), s.CreateRole)
	api.GET("/contracts/:id/audit-logs", s.authorizeContract(permission.FeatureUsers, permission.ActionManage), s.ListAuditLogs)

	// -------- Seats --------
	seats := api.Group("/seats/:id")
	seats.GET("", s.authorizeSeat(permission.FeatureUsers, permission.ActionView), s.GetSeat)
	seats.POST("/resend", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.ResendInvitation)
	seats.POST("/suspend", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.SuspendSeat)
	seats.POST("/reactivate", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.ReactivateSeat)
	seats.PUT("/role", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.SetSeatRole)
	seats.PUT("/store-access", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.SetSeatStoreAccess)
	seats.GET("/tags", s.authorizeSeat(permission.FeatureUsers, permission.ActionView), s.ListSeatStoreTags)
	seats.PUT("/stores/:store_id/tags", s.authorizeSeat(permission.FeatureUsers, permission.ActionManage), s.SetSeatStoreTags)
	seats.GET("/usage", s.authorizeSeat(permission.FeatureUsers, permission.ActionView), s.GetSeatUsage)
	seats.POST("/usage", s.RecordSeatUsage)

	// -------- Roles --------
	api.GET("/roles/system", s.ListSystemRoles)
	api.GET("/roles/:id", s.GetRole)
	api.GET("/roles/:id/check", s.CheckRolePermission)
	api.PATCH("/roles/:id", s.authorizeRole(permission.FeatureRoles, permission.ActionManage), s.UpdateRole)
	api.DELETE("/roles/:id", s.authorizeRole(permission.FeatureRoles, permission.ActionManage), s.DeleteRole)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
