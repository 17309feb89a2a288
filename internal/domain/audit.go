package domain

import "time"

// AuditEntry is append-only; entries are never updated or deleted.
type AuditEntry struct {
	ID         string
	BusinessID string
	ActorID    string
	Action     string // e.g. review.sync, reply.publish
	EntityType string // location|review|reply
	EntityID   string
	Details    map[string]any
	CreatedAt  time.Time
}

func NewAuditEntry(businessID, actorID, action, entityType, entityID string, details map[string]any) AuditEntry {
	return AuditEntry{
		BusinessID: businessID,
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
}
