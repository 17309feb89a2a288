package domain

import "time"

// Location is one business presence on the provider side. Credential holds the
// encrypted OAuth refresh token; nil means the location is disconnected.
type Location struct {
	ID         string
	BusinessID string
	PlaceID    string // provider natural id
	Name       string
	Address    *string
	Credential *string
	LastSyncAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
