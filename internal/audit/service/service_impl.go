package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/audit/masking"
	"github.com/smallbiznis/accessd/internal/clock"
	"github.com/smallbiznis/accessd/internal/reqcontext"
	"github.com/smallbiznis/accessd/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, contractID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := masking.MaskSensitive(metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := reqcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	actorType := string(auditdomain.ActorTypeSystem)
	var actorID *string
	if userID, ok := reqcontext.ActorIDFromContext(ctx); ok {
		actorType = string(auditdomain.ActorTypeUser)
		raw := userID.String()
		actorID = &raw
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ContractID: s.resolveContractID(ctx, contractID),
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}
	client := reqcontext.ClientFromContext(ctx)
	entry.IPAddress = normalizePointer(&client.IPAddress)
	entry.UserAgent = normalizePointer(&client.UserAgent)

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.ContractID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidContract
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}
	limit := req.Limit()

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		ContractID: req.ContractID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo, err := pagination.Page(items, limit, func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func (s *Service) resolveContractID(ctx context.Context, contractID *snowflake.ID) *snowflake.ID {
	if contractID != nil && *contractID != 0 {
		return contractID
	}
	resolved, ok := reqcontext.ContractIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &resolved
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
