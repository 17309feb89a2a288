package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahullym/GMBpro/internal/domain"
)

// TemplateGenerator drafts replies from voice-specific templates. It stands in
// for a model-backed generator; the pipeline only sees the ReplyGenerator port
// and copies text/escalate verbatim either way.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

// Phrases that push a low-rated review to a human regardless of template.
var escalationTriggers = []string{
	"terrible", "lawsuit", "lawyer", "refund", "health", "sick", "unsafe", "scam",
}

func (g *TemplateGenerator) Generate(ctx context.Context, reviewText string, rating int, voice domain.Voice) (domain.Draft, error) {
	var b strings.Builder

	switch voice {
	case domain.VoiceCasual:
		b.WriteString(fmt.Sprintf("Thanks so much for the %d-star review! ", rating))
	case domain.VoiceProfessional:
		b.WriteString(fmt.Sprintf("Thank you for taking the time to leave a %d-star review. ", rating))
	default: // polite
		b.WriteString(fmt.Sprintf("Thank you for your %d-star review. ", rating))
	}

	switch {
	case rating >= 5:
		b.WriteString("We truly appreciate your kind words and look forward to welcoming you back soon!")
	case rating >= 3:
		b.WriteString("We appreciate your feedback and hope to make your next visit even better.")
	default:
		b.WriteString("We are sorry your experience fell short. Please contact us directly so we can make this right.")
	}

	escalate := false
	if rating <= 2 {
		lower := strings.ToLower(reviewText)
		for _, w := range escalationTriggers {
			if strings.Contains(lower, w) {
				escalate = true
				break
			}
		}
	}

	return domain.Draft{Text: b.String(), Escalate: escalate}, nil
}
