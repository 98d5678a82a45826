// Package tokencache caches short-lived Skoda Connect access tokens keyed
// by account, reusing them until shortly before their JWT expiry.
package tokencache

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

// expiryMargin is subtracted from the token lifetime so a token is never
// handed out moments before the remote service rejects it.
const expiryMargin = 30 * time.Second

// TokenGetter defines a function type for retrieving new tokens.
type TokenGetter interface {
	GetToken(ctx context.Context, key string) (string, error)
}

// Cache provides JWT token caching functionality.
type Cache struct {
	cache       *cache.Cache
	tokenGetter TokenGetter
}

// New creates a new token cache instance.
func New(defaultExpiration, cleanupInterval time.Duration, tokenGetter TokenGetter) *Cache {
	return &Cache{
		cache:       cache.New(defaultExpiration, cleanupInterval),
		tokenGetter: tokenGetter,
	}
}

// GetToken retrieves an access token for the specified key.
// If the token is not in the cache or has expired, it will fetch a new one.
func (c *Cache) GetToken(ctx context.Context, key string) (string, error) {
	if token, found := c.cache.Get(key); found {
		return token.(string), nil
	}

	token, err := c.tokenGetter.GetToken(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get new token: %w", err)
	}

	expiry, err := extractExpirationFromToken(token)
	if err != nil {
		return "", fmt.Errorf("error extracting expiration from token: %w", err)
	}

	expiryDuration := time.Until(expiry) - expiryMargin
	if expiryDuration < 0 {
		expiryDuration = 0
	}
	c.cache.Set(key, token, expiryDuration)

	return token, nil
}

// Invalidate drops a cached token, forcing the next GetToken to fetch a
// fresh one. Used after logout and on authorization failures.
func (c *Cache) Invalidate(key string) {
	c.cache.Delete(key)
}

// AccountTokenKey returns the cache key for an account's access token.
func AccountTokenKey(username string) string {
	return fmt.Sprintf("account:%s", username)
}

// extractExpirationFromToken parses the JWT token and extracts its expiration time.
func extractExpirationFromToken(tokenString string) (time.Time, error) {
	// Parse the token without verifying the signature
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT token: %w", err)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("JWT token does not contain an expiration claim: %w", err)
	}

	return exp.Time, nil
}
