package classifier

import (
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// Composite tries a primary classifier and falls back to a secondary on
// failure, exactly as the capability-set contract requires. The external
// leg is guarded by a per-model circuit breaker so a struggling provider
// doesn't pay a full timeout on every subsequent call.
type Composite struct {
	primary   domain.Classifier
	secondary domain.Classifier
	breakers  *CircuitBreakerManager
	primaryID string
}

// NewComposite builds a Composite. primaryID identifies the primary leg in
// the circuit breaker manager; pass "" if primary is never circuit-guarded
// (e.g. primary is the always-available local classifier).
func NewComposite(primary, secondary domain.Classifier, primaryID string) *Composite {
	return &Composite{
		primary:   primary,
		secondary: secondary,
		breakers:  NewCircuitBreakerManager(),
		primaryID: primaryID,
	}
}

func (c *Composite) primaryAvailable() bool {
	if c.primaryID == "" {
		return true
	}
	return c.breakers.GetBreaker(c.primaryID).ShouldAttempt()
}

func (c *Composite) recordPrimary(err error) {
	if c.primaryID == "" {
		return
	}
	b := c.breakers.GetBreaker(c.primaryID)
	if err != nil {
		b.RecordFailure()
		return
	}
	b.RecordSuccess()
}

// Sentiment tries primary, falling back to secondary if primary's circuit
// is open or the call itself fails.
func (c *Composite) Sentiment(ctx domain.Context, text string) (domain.SentimentResult, error) {
	if c.primaryAvailable() {
		res, err := c.primary.Sentiment(ctx, text)
		c.recordPrimary(err)
		if err == nil {
			return res, nil
		}
	}
	if c.secondary == nil {
		return domain.SentimentResult{}, fmt.Errorf("op=composite.sentiment: %w", domain.ErrInternal)
	}
	return c.secondary.Sentiment(ctx, text)
}

// Emotion tries primary, falling back to secondary on failure.
func (c *Composite) Emotion(ctx domain.Context, text string) (domain.EmotionResult, error) {
	if c.primaryAvailable() {
		res, err := c.primary.Emotion(ctx, text)
		c.recordPrimary(err)
		if err == nil {
			return res, nil
		}
	}
	if c.secondary == nil {
		return domain.EmotionResult{}, fmt.Errorf("op=composite.emotion: %w", domain.ErrInternal)
	}
	return c.secondary.Emotion(ctx, text)
}

// Batch fans Sentiment out across texts.
func (c *Composite) Batch(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	return batchSentiment(ctx, c, texts)
}

// batchSentiment fans single-text Sentiment calls out with a bounded
// sync.WaitGroup, preserving input order in the result slice.
func batchSentiment(ctx domain.Context, c domain.Classifier, texts []string) ([]domain.SentimentResult, error) {
	results := make([]domain.SentimentResult, len(texts))
	errs := make([]error, len(texts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, 8)
	for i, text := range texts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text string) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := c.Sentiment(ctx, text)
			results[i] = res
			errs[i] = err
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("op=classifier.batch: %w", err)
		}
	}
	return results, nil
}
