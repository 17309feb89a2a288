package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rahullym/GMBpro/internal/domain"
)

// GenerateService turns a review into a fresh draft reply. It is a
// pass-through around the generator plus persistence: the generator's text and
// escalate flag are copied verbatim, and an existing draft is never mutated.
type GenerateService struct {
	reviews domain.ReviewRepository
	replies domain.ReplyRepository
	gen     domain.ReplyGenerator
	audit   domain.AuditSink
}

func NewGenerateService(
	reviews domain.ReviewRepository,
	replies domain.ReplyRepository,
	gen domain.ReplyGenerator,
	audit domain.AuditSink,
) *GenerateService {
	return &GenerateService{reviews: reviews, replies: replies, gen: gen, audit: audit}
}

func (s *GenerateService) Generate(ctx context.Context, reviewID string, voice domain.Voice, businessID, actorID string) (domain.Reply, error) {
	if voice == "" {
		voice = domain.VoicePolite
	}

	review, err := s.reviews.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("load review %s: %w", reviewID, err)
	}

	draft, err := s.gen.Generate(ctx, review.Text, review.Rating, voice)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("generate draft for %s: %w", reviewID, err)
	}

	reply := domain.Reply{
		ID:        uuid.NewString(),
		ReviewID:  reviewID,
		Voice:     voice,
		DraftText: draft.Text,
		Escalate:  draft.Escalate,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.replies.InsertReply(ctx, reply); err != nil {
		return domain.Reply{}, fmt.Errorf("persist draft for %s: %w", reviewID, err)
	}

	appendAudit(ctx, s.audit, domain.NewAuditEntry(businessID, actorID,
		"reply.generate", "reply", reply.ID,
		map[string]any{"review_id": reviewID, "voice": string(voice), "escalate": draft.Escalate}))

	log.Info().
		Str("review_id", reviewID).
		Str("reply_id", reply.ID).
		Bool("escalate", draft.Escalate).
		Msg("draft reply generated")
	return reply, nil
}
