package classifier

import (
	"strings"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// Local is a deterministic lexicon-scored classifier. It is the Go-idiomatic
// stand-in for a local model pipeline: no network calls, no external
// dependency, always available.
type Local struct {
	modelName string
}

// NewLocal returns a Local classifier identified by modelName in Analysis
// records.
func NewLocal(modelName string) *Local {
	if modelName == "" {
		modelName = "local-lexicon-v1"
	}
	return &Local{modelName: modelName}
}

var positiveWords = map[string]float64{
	"love": 1, "great": 1, "excellent": 1, "good": 0.6, "amazing": 1,
	"happy": 0.8, "best": 0.8, "awesome": 1, "wonderful": 1, "like": 0.5,
	"nice": 0.5, "fantastic": 1, "perfect": 1, "thanks": 0.4, "thank": 0.4,
}

var negativeWords = map[string]float64{
	"hate": 1, "terrible": 1, "awful": 1, "bad": 0.6, "worst": 1,
	"horrible": 1, "disappointing": 0.8, "sad": 0.6, "angry": 0.8,
	"broken": 0.6, "fail": 0.7, "failed": 0.7, "disgusting": 1, "annoying": 0.6,
}

var emotionLexicon = map[string]string{
	"love": domain.EmotionJoy, "happy": domain.EmotionJoy, "great": domain.EmotionJoy,
	"joy": domain.EmotionJoy, "excited": domain.EmotionJoy,
	"sad": domain.EmotionSadness, "disappointing": domain.EmotionSadness, "cry": domain.EmotionSadness,
	"angry": domain.EmotionAnger, "hate": domain.EmotionAnger, "furious": domain.EmotionAnger,
	"scared": domain.EmotionFear, "afraid": domain.EmotionFear, "worried": domain.EmotionFear,
	"surprised": domain.EmotionSurprise, "shocked": domain.EmotionSurprise, "wow": domain.EmotionSurprise,
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// Sentiment scores text via a fixed positive/negative word lexicon. Empty or
// whitespace-only text yields neutral/0.0, matching the source model's
// handling of blank input.
func (l *Local) Sentiment(_ domain.Context, text string) (domain.SentimentResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.SentimentResult{SentimentLabel: domain.SentimentNeutral, ConfidenceScore: 0.0, ModelName: "none"}, nil
	}

	var pos, neg float64
	for _, tok := range tokenize(trimmed) {
		if w, ok := positiveWords[tok]; ok {
			pos += w
		}
		if w, ok := negativeWords[tok]; ok {
			neg += w
		}
	}

	switch {
	case pos == 0 && neg == 0:
		return domain.SentimentResult{SentimentLabel: domain.SentimentNeutral, ConfidenceScore: 0.5, ModelName: l.modelName}, nil
	case pos >= neg:
		conf := pos / (pos + neg + 1)
		return domain.SentimentResult{SentimentLabel: domain.SentimentPositive, ConfidenceScore: clamp01(0.5 + conf), ModelName: l.modelName}, nil
	default:
		conf := neg / (pos + neg + 1)
		return domain.SentimentResult{SentimentLabel: domain.SentimentNegative, ConfidenceScore: clamp01(0.5 + conf), ModelName: l.modelName}, nil
	}
}

// Emotion picks the lexicon-matched emotion with the most hits; ties go to
// the alphabetically first label. Text shorter
// than 10 runes after trimming returns neutral/0.0, matching the source
// model's short-text rule.
func (l *Local) Emotion(_ domain.Context, text string) (domain.EmotionResult, error) {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < 10 {
		return domain.EmotionResult{Emotion: domain.EmotionNeutral, ConfidenceScore: 0.0, ModelName: "rule-based"}, nil
	}

	counts := map[string]int{}
	for _, tok := range tokenize(trimmed) {
		if e, ok := emotionLexicon[tok]; ok {
			counts[e]++
		}
	}
	if len(counts) == 0 {
		return domain.EmotionResult{Emotion: domain.EmotionNeutral, ConfidenceScore: 0.5, ModelName: l.modelName}, nil
	}

	best, bestCount := domain.EmotionNeutral, 0
	for e, c := range counts {
		if c > bestCount || (c == bestCount && e < best) {
			best, bestCount = e, c
		}
	}
	return domain.EmotionResult{Emotion: best, ConfidenceScore: clamp01(0.5 + float64(bestCount)*0.15), ModelName: l.modelName}, nil
}

// Batch runs Sentiment sequentially, matching the source's synchronous local
// batch path.
func (l *Local) Batch(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	out := make([]domain.SentimentResult, 0, len(texts))
	for _, t := range texts {
		r, err := l.Sentiment(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
