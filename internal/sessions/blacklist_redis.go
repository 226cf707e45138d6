// Package sessions keeps the revocation list of access tokens that were
// logged out before they expired.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:access:"

// DefaultRevokeTTL is used when a token carries no readable exp claim.
const DefaultRevokeTTL = 15 * time.Minute

// package-level Redis client used for token blacklist (optional)
var blacklistClient *redis.Client

// SetBlacklistClient configures the Redis client used for blacklist operations.
// Safe to call with nil to disable blacklist features.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// BlacklistEnabled reports whether a Redis client is configured.
func BlacklistEnabled() bool { return blacklistClient != nil }

// BlacklistAccessToken stores the given token in Redis blacklist with TTL.
// If no Redis client is configured, this is a no-op and returns nil.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil {
		return nil
	}
	return blacklistClient.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
}

// IsAccessTokenBlacklisted returns true when the token exists in the Redis blacklist.
// If no Redis client is configured, returns (false, nil).
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	exists, err := blacklistClient.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// TokenExpiry reads the exp claim without verifying the signature. Callers
// must only use it on tokens that already passed verification.
func TokenExpiry(raw string) (time.Time, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("exp claim not present")
	}
	return exp.Time, nil
}

// RevokeAccessToken blacklists raw until it would have expired anyway.
// Already-expired tokens are not stored.
func RevokeAccessToken(ctx context.Context, raw string) error {
	ttl := DefaultRevokeTTL
	if exp, err := TokenExpiry(raw); err == nil {
		ttl = time.Until(exp)
	}
	if ttl <= 0 {
		return nil
	}
	return BlacklistAccessToken(ctx, raw, ttl)
}
