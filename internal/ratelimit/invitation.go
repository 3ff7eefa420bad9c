package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/accessd/internal/config"
	"go.uber.org/zap"
)

const keyInvitationClient = "accessd:ratelimit:invitation:%s"

// InvitationLimiter bounds token probing on the unauthenticated invitation endpoints.
// A nil limiter allows everything.
type InvitationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewInvitationLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *InvitationLimiter {
	if bucket == nil || cfg.RateLimit.InvitationRate <= 0 || cfg.RateLimit.InvitationBurst <= 0 {
		return nil
	}
	return &InvitationLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.InvitationRate,
		burst:  cfg.RateLimit.InvitationBurst,
		log:    log.Named("ratelimit.invitation"),
	}
}

func (l *InvitationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when redis is unreachable.
func (l *InvitationLimiter) Allow(ctx context.Context, clientKey string) *RateLimitResult {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}
	}
	key := fmt.Sprintf(keyInvitationClient, strings.TrimSpace(clientKey))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("invitation rate limit check failed", zap.Error(err))
		return &RateLimitResult{Allowed: true}
	}
	return res
}
