// Package reqcontext carries request-scoped identity through service calls.
package reqcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type actorKey struct{}
type contractKey struct{}
type requestKey struct{}
type clientKey struct{}

// Client describes where a request came from.
type Client struct {
	IPAddress string
	UserAgent string
}

// WithActorID stores the authenticated user ID in the context.
func WithActorID(ctx context.Context, userID snowflake.ID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorIDFromContext returns the authenticated user ID, if set.
func ActorIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, actorKey{})
}

// WithContractID stores the active contract ID in the context.
func WithContractID(ctx context.Context, contractID snowflake.ID) context.Context {
	return context.WithValue(ctx, contractKey{}, contractID)
}

// ContractIDFromContext returns the active contract ID, if set.
func ContractIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	return idFromContext(ctx, contractKey{})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestKey{}).(string)
	return value
}

func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

func ClientFromContext(ctx context.Context) Client {
	if ctx == nil {
		return Client{}
	}
	value, _ := ctx.Value(clientKey{}).(Client)
	return value
}

func idFromContext(ctx context.Context, key any) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(key).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
