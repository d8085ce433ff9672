// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Emotion labels.
const (
	EmotionJoy      = "joy"
	EmotionSadness  = "sadness"
	EmotionAnger    = "anger"
	EmotionFear     = "fear"
	EmotionSurprise = "surprise"
	EmotionNeutral  = "neutral"
)

// Bucket periods accepted by the aggregator.
const (
	PeriodMinute = "minute"
	PeriodHour   = "hour"
	PeriodDay    = "day"
)

// Alert type emitted by the alert monitor.
const AlertTypeHighNegativeRatio = "high_negative_ratio"

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

// Post is a social-media item ingested from the log.
// Invariant: post_id is unique; a second write with the same id updates
// IngestedAt only.
type Post struct {
	PostID     string
	Source     string
	Content    string
	Author     string
	CreatedAt  time.Time
	IngestedAt time.Time
}

// Analysis is the sentiment+emotion enrichment attached to a Post.
// Invariant: an Analysis exists only if its Post exists.
type Analysis struct {
	PostID          string
	ModelName       string
	SentimentLabel  string
	ConfidenceScore float64
	Emotion         string // empty string means absent
	AnalyzedAt      time.Time
}

// Alert is a persisted record that a windowed metric crossed a threshold.
// Append-only; never mutated.
type Alert struct {
	ID             int64
	AlertType      string
	ThresholdValue float64
	ActualValue    float64
	WindowStart    time.Time
	WindowEnd      time.Time
	PostCount      int
	TriggeredAt    time.Time
	Details        map[string]any
}

// PostWithAnalysis pairs a Post with its (possibly absent) Analysis, as
// returned by the posts listing endpoint.
type PostWithAnalysis struct {
	Post     Post
	Analysis *Analysis
}

// BucketCount is one row of a count_by_bucket query.
type BucketCount struct {
	BucketStart      time.Time
	Positive         int
	Negative         int
	Neutral          int
	Total            int
	AverageConfidence float64
}

// DistributionCounts is the result of a distribution(since, source) query.
type DistributionCounts struct {
	Positive       int
	Negative       int
	Neutral        int
	Total          int
	EmotionCounts  map[string]int
}

// WindowCounts is the result of a window_counts(since, until) query, used by
// the alert monitor.
type WindowCounts struct {
	Positive int
	Negative int
	Neutral  int
	Total    int
}

// PostFilter narrows the posts listing query.
type PostFilter struct {
	Source    string
	Sentiment string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// Store is the durable persistence port (component B).
type Store interface {
	// UpsertPostAndAnalysis is atomic. If post_id exists, refresh IngestedAt;
	// if an analysis for that post_id does not exist, insert it; if it does,
	// leave it unchanged.
	UpsertPostAndAnalysis(ctx Context, post Post, analysis Analysis) error
	// ListPosts returns posts left-outer-joined with their analysis, ordered
	// by created_at desc, along with the total matching row count.
	ListPosts(ctx Context, filter PostFilter) ([]PostWithAnalysis, int, error)
	// CountByBucket truncates analyzed_at to the bucket start in UTC.
	// Buckets with zero rows are omitted from the result.
	CountByBucket(ctx Context, period string, start, end time.Time, source string) ([]BucketCount, error)
	// Distribution aggregates over analyzed_at >= since.
	Distribution(ctx Context, since time.Time, source string) (DistributionCounts, error)
	// WindowCounts aggregates over analyzed_at in [since, until).
	WindowCounts(ctx Context, since, until time.Time) (WindowCounts, error)
	// SaveAlert persists an append-only alert record and returns its id.
	SaveAlert(ctx Context, alert Alert) (int64, error)
	// HealthStats returns counts used by the health endpoint.
	HealthStats(ctx Context) (totalPosts, totalAnalyses, recentPosts1h int, err error)
	// Ping checks connectivity for readiness/health probes.
	Ping(ctx Context) error
}

// StreamEntry is one entry returned by LogClient.ReadGroup.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// LogClient is a thin wrapper over a durable append-only log with consumer
// groups, plus a best-effort pub/sub primitive (component A).
type LogClient interface {
	// Append adds fields to stream and returns the assigned entry id.
	Append(ctx Context, stream string, fields map[string]string) (string, error)
	// CreateGroup is idempotent: if the group already exists it succeeds
	// silently.
	CreateGroup(ctx Context, stream, group string, start string) error
	// ReadGroup returns new entries only (">" semantics), blocking up to
	// block when none are ready. Entries already pending for the consumer
	// are not returned; Reclaim hands those back.
	ReadGroup(ctx Context, stream, group, consumer string, max int64, block time.Duration) ([]StreamEntry, error)
	// Ack marks an entry delivered for the group.
	Ack(ctx Context, stream, group, entryID string) error
	// Reclaim hands back to consumer any entries idle longer than minIdle,
	// realizing at-least-once redelivery after a consumer crash.
	Reclaim(ctx Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]StreamEntry, error)
	// Publish is best-effort, unpersisted pub/sub.
	Publish(ctx Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads for the given pub/sub channel.
	// The returned closer must be called to release the subscription.
	Subscribe(ctx Context, channel string) (<-chan []byte, func() error, error)
}

// Cache is a short-TTL key/value store plus channel pub/sub (component C).
// Advisory: every cached response must be reproducible from the Store.
type Cache interface {
	// Get returns the stored blob, or ok=false on miss.
	Get(ctx Context, key string) (blob []byte, ok bool, err error)
	// SetEX overwrites the key atomically with the given TTL.
	SetEX(ctx Context, key string, blob []byte, ttl time.Duration) error
	// Publish is best-effort.
	Publish(ctx Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads; the closer releases it.
	Subscribe(ctx Context, channel string) (<-chan []byte, func() error, error)
	// Ping checks connectivity for readiness/health probes.
	Ping(ctx Context) error
}

// SentimentResult is the outcome of Classifier.Sentiment/Batch.
type SentimentResult struct {
	SentimentLabel  string
	ConfidenceScore float64
	ModelName       string
}

// EmotionResult is the outcome of Classifier.Emotion.
type EmotionResult struct {
	Emotion         string
	ConfidenceScore float64
	ModelName       string
}

// Classifier is the opaque sync text -> sentiment/emotion capability set
// (component D, external collaborator per spec.md §1).
type Classifier interface {
	Sentiment(ctx Context, text string) (SentimentResult, error)
	Emotion(ctx Context, text string) (EmotionResult, error)
	Batch(ctx Context, texts []string) ([]SentimentResult, error)
}
