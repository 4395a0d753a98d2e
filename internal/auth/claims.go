package auth

import (
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
)

// Claims represents the claims stored in an access token.
// These are encrypted in v4.local tokens, so they're not readable without the key.
type Claims struct {
	UserID string       `json:"user_id"`
	Level  domain.Level `json:"level"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Actor returns the actor the token was issued to, calling from ip.
func (c *Claims) Actor(ip string) domain.Actor {
	return domain.Actor{UserID: c.UserID, IP: ip, Level: c.Level}
}
