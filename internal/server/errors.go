package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
	auditdomain "github.com/smallbiznis/accessd/internal/audit/domain"
	"github.com/smallbiznis/accessd/internal/authorization"
	contractdomain "github.com/smallbiznis/accessd/internal/contract/domain"
	invitationdomain "github.com/smallbiznis/accessd/internal/invitation/domain"
	"github.com/smallbiznis/accessd/internal/invitation/token"
	"github.com/smallbiznis/accessd/internal/permission"
	roledomain "github.com/smallbiznis/accessd/internal/role/domain"
	seatdomain "github.com/smallbiznis/accessd/internal/seat/domain"
	userdomain "github.com/smallbiznis/accessd/internal/user/domain"
	"github.com/smallbiznis/accessd/internal/user/password"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// errorKind pairs a sentinel with the status and taxonomy type it maps to.
type errorKind struct {
	err    error
	status int
	typ    string
}

var errorKinds = []errorKind{
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{authorization.ErrInvalidActor, http.StatusUnauthorized, "unauthorized"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},

	{token.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{token.ErrTokenMismatch, http.StatusBadRequest, "token_mismatch"},
	{token.ErrExpiredToken, http.StatusGone, "expired_token"},
	{token.ErrAlreadyActivated, http.StatusConflict, "already_activated"},
	{roledomain.ErrSystemRoleImmutable, http.StatusForbidden, "system_role_immutable"},

	{contractdomain.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},
	{seatdomain.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},
	{roledomain.ErrQuotaExceeded, http.StatusConflict, "quota_exceeded"},

	{seatdomain.ErrSeatExists, http.StatusConflict, "conflict"},
	{seatdomain.ErrInvalidTransition, http.StatusConflict, "conflict"},
	{seatdomain.ErrOwnerSeat, http.StatusConflict, "conflict"},
	{roledomain.ErrDuplicateName, http.StatusConflict, "conflict"},
	{invitationdomain.ErrNotPending, http.StatusConflict, "conflict"},
	{contractdomain.ErrOwnerNotEligible, http.StatusConflict, "conflict"},

	{ErrNotFound, http.StatusNotFound, "not_found"},
	{contractdomain.ErrNotFound, http.StatusNotFound, "not_found"},
	{contractdomain.ErrStoreNotFound, http.StatusNotFound, "not_found"},
	{seatdomain.ErrNotFound, http.StatusNotFound, "not_found"},
	{roledomain.ErrNotFound, http.StatusNotFound, "not_found"},
	{userdomain.ErrNotFound, http.StatusNotFound, "not_found"},
	{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
}

// validationErrors surface to clients as a validation_error whose code is the sentinel text.
var validationErrors = []error{
	ErrInvalidRequest,
	accessdomain.ErrUnknownPurpose,
	permission.ErrUnknownFeature,
	permission.ErrUnknownAction,
	permission.ErrUnknownScope,
	contractdomain.ErrInvalidName,
	contractdomain.ErrInvalidEmail,
	contractdomain.ErrInvalidContractType,
	contractdomain.ErrInvalidIntegration,
	contractdomain.ErrInvalidQuota,
	roledomain.ErrInvalidName,
	roledomain.ErrInvalidLevel,
	seatdomain.ErrDuplicateStore,
	seatdomain.ErrStoreNotInScope,
	seatdomain.ErrRoleNotUsable,
	seatdomain.ErrInvalidUsage,
	seatdomain.ErrSeatNotActive,
	userdomain.ErrInvalidEmail,
	password.ErrTooShort,
	invitationdomain.ErrCredentialsRequired,
	auditdomain.ErrInvalidPageToken,
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.status, errorPayload{
				Type:    kind.typ,
				Message: kind.err.Error(),
			}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog labels request errors for the access log without leaking detail.
func classifyErrorForLog(err error) string {
	if err == nil {
		return ""
	}
	_, payload := mapError(err)
	return payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unknown_purpose":
		return "purpose"
	case "unknown_feature":
		return "feature"
	case "unknown_action":
		return "action"
	case "unknown_scope":
		return "scope"
	case "password_too_short", "credentials_required":
		return "password"
	case "invalid_usage":
		return "usage"
	}
	for _, prefix := range []string{"invalid_role_", "invalid_"} {
		if strings.HasPrefix(code, prefix) {
			return strings.TrimPrefix(code, prefix)
		}
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "password_too_short":
		return "password is too short"
	case "credentials_required":
		return "password is required"
	default:
		return "invalid value"
	}
}
