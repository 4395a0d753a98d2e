package domain

import "time"

// Artist is a profile linked to an artist-category tag by name.
type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OtherNames []string  `json:"other_names,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
