package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/accessd/pkg/db/pagination"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	ContractID snowflake.ID
	Action     string
	TargetType string
	TargetID   string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, contractID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidContract  = errors.New("invalid_contract")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
