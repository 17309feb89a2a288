package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/domain"
)

// appendAudit writes an audit entry, logging (never swallowing) sink errors.
// The pipeline does not fail an operation because its audit write failed.
func appendAudit(ctx context.Context, sink domain.AuditSink, e domain.AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.Append(ctx, e); err != nil {
		log.Error().
			Err(err).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("audit append failed")
	}
}
