package domain

import "time"

type Voice string

const (
	VoicePolite       Voice = "polite"
	VoiceCasual       Voice = "casual"
	VoiceProfessional Voice = "professional"
)

// Reply is one drafted (and possibly published) response to a review. A review
// may accumulate many drafts but at most one published reply; once published a
// reply is immutable.
type Reply struct {
	ID          string
	ReviewID    string
	Voice       Voice
	DraftText   string
	FinalText   *string
	Escalate    bool
	Published   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Draft is the generator's output: candidate text plus an escalation hint the
// pipeline copies verbatim onto the new Reply.
type Draft struct {
	Text     string
	Escalate bool
}
