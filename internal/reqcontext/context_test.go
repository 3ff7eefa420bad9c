package reqcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestActorAndContractRoundTrip(t *testing.T) {
	ctx := WithActorID(context.Background(), snowflake.ID(42))
	ctx = WithContractID(ctx, snowflake.ID(7))

	actor, ok := ActorIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), actor)

	contract, ok := ContractIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(7), contract)
}

func TestMissingValues(t *testing.T) {
	_, ok := ActorIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = ActorIDFromContext(WithActorID(context.Background(), 0))
	assert.False(t, ok)

	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	assert.Equal(t, Client{}, ClientFromContext(context.Background()))
}

func TestRequestMetadata(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithClient(ctx, Client{IPAddress: "10.0.0.1", UserAgent: "curl"})

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", ClientFromContext(ctx).IPAddress)
}
