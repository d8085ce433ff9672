// Package worker implements the Worker Pool (component E): consumes the
// post stream via a named consumer group and converts each entry into a
// Store write plus a pub/sub announcement.
package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-cv-evaluator/pkg/textx"
)

// Config configures a Pool's scheduling and retry behavior.
type Config struct {
	Stream          string
	ConsumerGroup   string
	ConsumerName    string
	UpdatesChannel  string
	BatchSize       int64
	BlockDuration   time.Duration
	ReclaimInterval time.Duration
	ReclaimMinIdle  time.Duration
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
	LogEvery        int64
}

// Pool is the bounded concurrent worker pool described by spec §4.E.
type Pool struct {
	cfg        Config
	log        domain.LogClient
	store      domain.Store
	classifier domain.Classifier

	processed atomic.Int64
	failed    atomic.Int64
	poisoned  atomic.Int64
	retried   atomic.Int64
}

// NewPool constructs a Pool.
func NewPool(cfg Config, log domain.LogClient, store domain.Store, classifier domain.Classifier) *Pool {
	if cfg.LogEvery == 0 {
		cfg.LogEvery = 100
	}
	return &Pool{cfg: cfg, log: log, store: store, classifier: classifier}
}

// postFields is what Append produces on the stream; the producer side
// (synthetic generator) is not part of this module.
type postFields struct {
	PostID    string
	Source    string
	Content   string
	Author    string
	CreatedAt string
}

// Run blocks, reading batches and dispatching them to a bounded goroutine
// pool, joining outstanding tasks before the next read — exactly the
// "tasks join before the next read" scheduling rule. It also starts the
// background XAUTOCLAIM reclaim loop. Returns when ctx is cancelled.
func (p *Pool) Run(ctx domain.Context) error {
	if err := p.log.CreateGroup(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, "0"); err != nil {
		return fmt.Errorf("op=worker.run.creategroup: %w", err)
	}

	go p.reclaimLoop(ctx)
	go p.logCountersLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := p.log.ReadGroup(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, p.cfg.ConsumerName, p.cfg.BatchSize, p.cfg.BlockDuration)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("worker read_group failed", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, entry := range entries {
			wg.Add(1)
			go func(e domain.StreamEntry) {
				defer wg.Done()
				p.process(ctx, e)
			}(entry)
		}
		wg.Wait()
	}
}

func (p *Pool) process(ctx domain.Context, entry domain.StreamEntry) {
	fields, err := decodeFields(entry.Fields)
	if err != nil {
		p.poisoned.Add(1)
		p.failed.Add(1)
		observability.PostsPoisonedTotal.WithLabelValues("decode").Inc()
		slog.Warn("poison message acked without processing", slog.String("entry_id", entry.ID), slog.Any("error", err))
		_ = p.log.Ack(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, entry.ID)
		return
	}

	createdAt, err := time.Parse(time.RFC3339, fields.CreatedAt)
	if err != nil {
		p.poisoned.Add(1)
		p.failed.Add(1)
		observability.PostsPoisonedTotal.WithLabelValues("bad_timestamp").Inc()
		slog.Warn("poison message: bad created_at", slog.String("entry_id", entry.ID))
		_ = p.log.Ack(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, entry.ID)
		return
	}

	sentiment, err := p.retryingSentiment(ctx, fields.Content)
	if err != nil {
		p.retried.Add(1)
		observability.PostsRetriedTotal.WithLabelValues("classify").Inc()
		slog.Warn("retryable classify failure, leaving entry unacked", slog.String("entry_id", entry.ID), slog.Any("error", err))
		return
	}

	emotion, err := p.classifier.Emotion(ctx, fields.Content)
	if err != nil {
		emotion = domain.EmotionResult{Emotion: domain.EmotionNeutral, ConfidenceScore: 0.5, ModelName: "fallback"}
	}

	now := time.Now().UTC()
	post := domain.Post{
		PostID:     fields.PostID,
		Source:     fields.Source,
		Content:    fields.Content,
		Author:     fields.Author,
		CreatedAt:  createdAt,
		IngestedAt: now,
	}
	analysis := domain.Analysis{
		PostID:          fields.PostID,
		ModelName:       sentiment.ModelName,
		SentimentLabel:  sentiment.SentimentLabel,
		ConfidenceScore: sentiment.ConfidenceScore,
		Emotion:         emotion.Emotion,
		AnalyzedAt:      now,
	}

	if err := p.retryingUpsert(ctx, post, analysis); err != nil {
		p.retried.Add(1)
		observability.PostsRetriedTotal.WithLabelValues("store").Inc()
		slog.Warn("retryable store failure, leaving entry unacked", slog.String("entry_id", entry.ID), slog.Any("error", err))
		return
	}

	observability.PostsIngestedTotal.WithLabelValues(fields.Source).Inc()
	observability.SentimentLabelsTotal.WithLabelValues(sentiment.SentimentLabel).Inc()

	p.announce(ctx, post, analysis)

	p.processed.Add(1)
	_ = p.log.Ack(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, entry.ID)
}

func decodeFields(fields map[string]string) (postFields, error) {
	var f postFields
	f.PostID = fields["post_id"]
	f.Source = fields["source"]
	f.Content = textx.SanitizeText(fields["content"])
	f.Author = fields["author"]
	f.CreatedAt = fields["created_at"]
	if f.PostID == "" || f.Source == "" || f.Content == "" || f.Author == "" || f.CreatedAt == "" {
		return postFields{}, fmt.Errorf("op=worker.decode: %w", domain.ErrSchemaInvalid)
	}
	return f, nil
}

func (p *Pool) newBackoff(ctx domain.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.BackoffInitial
	expo.MaxInterval = p.cfg.BackoffMax
	expo.Multiplier = 2
	expo.MaxElapsedTime = p.cfg.BackoffMax * 3
	return backoff.WithContext(expo, ctx)
}

// retryingSentiment retries Classifier.Sentiment with bounded exponential
// backoff before giving up and leaving the message unacked for redelivery.
func (p *Pool) retryingSentiment(ctx domain.Context, content string) (domain.SentimentResult, error) {
	var result domain.SentimentResult
	op := func() error {
		res, err := p.classifier.Sentiment(ctx, content)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, p.newBackoff(ctx)); err != nil {
		return domain.SentimentResult{}, err
	}
	return result, nil
}

// retryingUpsert retries Store.UpsertPostAndAnalysis with bounded
// exponential backoff. Every Store error is treated as transient:
// isPermanent classifies no error as permanent, so a constraint violation
// is retried and then left unacked like any other failure, not acked as
// poison.
func (p *Pool) retryingUpsert(ctx domain.Context, post domain.Post, analysis domain.Analysis) error {
	op := func() error {
		err := p.store.UpsertPostAndAnalysis(ctx, post, analysis)
		if err != nil && (isPermanent(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, p.newBackoff(ctx))
}

func isPermanent(err error) bool {
	return false // no constraint-violation sentinel is surfaced by Store today; all DB errors are treated as transient
}

// announce publishes a best-effort post event; publish failure never
// blocks ack (per spec step 6).
func (p *Pool) announce(ctx domain.Context, post domain.Post, analysis domain.Analysis) {
	payload, err := json.Marshal(map[string]any{
		"post_id":          post.PostID,
		"content":          post.Content,
		"source":           post.Source,
		"sentiment_label":  analysis.SentimentLabel,
		"confidence_score": analysis.ConfidenceScore,
		"emotion":          analysis.Emotion,
		"timestamp":        analysis.AnalyzedAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("announce marshal failed", slog.Any("error", err))
		return
	}
	if err := p.log.Publish(ctx, p.cfg.UpdatesChannel, payload); err != nil {
		slog.Warn("announce publish failed", slog.Any("error", err))
	}
}

func (p *Pool) reclaimLoop(ctx domain.Context) {
	ticker := time.NewTicker(p.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := p.log.Reclaim(ctx, p.cfg.Stream, p.cfg.ConsumerGroup, p.cfg.ConsumerName, p.cfg.ReclaimMinIdle, 50)
			if err != nil {
				slog.Warn("reclaim loop error", slog.Any("error", err))
				continue
			}
			for _, entry := range entries {
				p.process(ctx, entry)
			}
		}
	}
}

func (p *Pool) logCountersLoop(ctx domain.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var lastLogged int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed := p.processed.Load()
			if processed-lastLogged >= p.cfg.LogEvery || (processed > 0 && lastLogged == 0) {
				slog.Info("worker pool counters",
					slog.Int64("processed", processed),
					slog.Int64("failed", p.failed.Load()),
					slog.Int64("poisoned", p.poisoned.Load()),
					slog.Int64("retried", p.retried.Load()))
				lastLogged = processed
			}
		}
	}
}
