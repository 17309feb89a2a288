package nlp

import (
	"strings"

	"github.com/rahullym/GMBpro/internal/domain"
)

// KeywordClassifier is the default SentimentClassifier: rating decides the
// clear cases, keyword counts break the tie for middling ratings. A
// model-backed classifier can replace it behind the same port.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

var (
	positiveWords = []string{"good", "great", "excellent", "amazing", "wonderful", "love", "perfect"}
	negativeWords = []string{"bad", "terrible", "awful", "horrible", "hate", "disappointed", "worst"}
)

func (c *KeywordClassifier) Classify(text string, rating int) domain.Sentiment {
	if rating >= 4 {
		return domain.SentimentPositive
	}
	if rating <= 2 {
		return domain.SentimentNegative
	}

	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return domain.SentimentPositive
	case neg > pos:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}
