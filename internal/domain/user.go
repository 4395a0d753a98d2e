package domain

import "time"

// User is an account that can propose or moderate relationships.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Level           Level     `json:"level"`
	BlacklistedTags string    `json:"blacklisted_tags"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
