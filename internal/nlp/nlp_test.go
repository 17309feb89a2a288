package nlp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rahullym/GMBpro/internal/domain"
	"github.com/rahullym/GMBpro/internal/nlp"
)

func TestClassify_RatingDecidesClearCases(t *testing.T) {
	c := nlp.NewKeywordClassifier()

	cases := []struct {
		text   string
		rating int
		want   domain.Sentiment
	}{
		{"Great!", 5, domain.SentimentPositive},
		{"meh", 4, domain.SentimentPositive},
		{"Terrible", 1, domain.SentimentNegative},
		{"love it actually", 2, domain.SentimentNegative},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.text, tc.rating); got != tc.want {
			t.Fatalf("Classify(%q, %d) = %s, want %s", tc.text, tc.rating, got, tc.want)
		}
	}
}

func TestClassify_KeywordsBreakMiddleTie(t *testing.T) {
	c := nlp.NewKeywordClassifier()

	if got := c.Classify("good food but the wait was awful and horrible", 3); got != domain.SentimentNegative {
		t.Fatalf("expected negative, got %s", got)
	}
	if got := c.Classify("great staff, excellent coffee, slow wifi", 3); got != domain.SentimentPositive {
		t.Fatalf("expected positive, got %s", got)
	}
	if got := c.Classify("it exists", 3); got != domain.SentimentNeutral {
		t.Fatalf("expected neutral, got %s", got)
	}
}

func TestGenerate_VoicesDiffer(t *testing.T) {
	g := nlp.NewTemplateGenerator()
	ctx := context.Background()

	seen := map[string]bool{}
	for _, v := range []domain.Voice{domain.VoicePolite, domain.VoiceCasual, domain.VoiceProfessional} {
		d, err := g.Generate(ctx, "Great!", 5, v)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !strings.Contains(d.Text, "5-star") {
			t.Fatalf("voice %s: expected rating in text, got %q", v, d.Text)
		}
		if seen[d.Text] {
			t.Fatalf("voice %s produced a duplicate opener", v)
		}
		seen[d.Text] = true
	}
}

func TestGenerate_EscalationNeedsBothSignals(t *testing.T) {
	g := nlp.NewTemplateGenerator()
	ctx := context.Background()

	d, err := g.Generate(ctx, "this place is a scam", 1, domain.VoicePolite)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !d.Escalate {
		t.Fatal("expected escalation for low rating + trigger phrase")
	}

	// trigger phrase alone is not enough at a decent rating
	d, err = g.Generate(ctx, "got a refund for a mixed-up order, handled well", 4, domain.VoicePolite)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if d.Escalate {
		t.Fatal("high-rated review must not escalate")
	}

	// low rating alone is not enough without a trigger
	d, err = g.Generate(ctx, "just not my kind of place", 1, domain.VoicePolite)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if d.Escalate {
		t.Fatal("low rating without trigger phrase must not escalate")
	}
}
