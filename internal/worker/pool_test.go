package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

type fakeLogClient struct {
	mu      sync.Mutex
	acked   []string
	pubs    [][]byte
	entries []domain.StreamEntry
}

func (f *fakeLogClient) Append(ctx domain.Context, stream string, fields map[string]string) (string, error) {
	return "0-1", nil
}
func (f *fakeLogClient) CreateGroup(ctx domain.Context, stream, group, start string) error { return nil }
func (f *fakeLogClient) ReadGroup(ctx domain.Context, stream, group, consumer string, max int64, block time.Duration) ([]domain.StreamEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.entries
	f.entries = nil
	return out, nil
}
func (f *fakeLogClient) Ack(ctx domain.Context, stream, group, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, entryID)
	return nil
}
func (f *fakeLogClient) Reclaim(ctx domain.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]domain.StreamEntry, error) {
	return nil, nil
}
func (f *fakeLogClient) Publish(ctx domain.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, payload)
	return nil
}
func (f *fakeLogClient) Subscribe(ctx domain.Context, channel string) (<-chan []byte, func() error, error) {
	return nil, func() error { return nil }, nil
}

type fakeStore struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeStore) UpsertPostAndAnalysis(ctx domain.Context, post domain.Post, analysis domain.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}
func (s *fakeStore) ListPosts(ctx domain.Context, filter domain.PostFilter) ([]domain.PostWithAnalysis, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) CountByBucket(ctx domain.Context, period string, start, end time.Time, source string) ([]domain.BucketCount, error) {
	return nil, nil
}
func (s *fakeStore) Distribution(ctx domain.Context, since time.Time, source string) (domain.DistributionCounts, error) {
	return domain.DistributionCounts{}, nil
}
func (s *fakeStore) WindowCounts(ctx domain.Context, since, until time.Time) (domain.WindowCounts, error) {
	return domain.WindowCounts{}, nil
}
func (s *fakeStore) SaveAlert(ctx domain.Context, alert domain.Alert) (int64, error) { return 1, nil }
func (s *fakeStore) HealthStats(ctx domain.Context) (int, int, int, error)           { return 0, 0, 0, nil }
func (s *fakeStore) Ping(ctx domain.Context) error                                   { return nil }

type fakeClassifier struct {
	sentimentErr error
	emotionErr   error
}

func (c *fakeClassifier) Sentiment(ctx domain.Context, text string) (domain.SentimentResult, error) {
	if c.sentimentErr != nil {
		return domain.SentimentResult{}, c.sentimentErr
	}
	return domain.SentimentResult{SentimentLabel: domain.SentimentPositive, ConfidenceScore: 0.9, ModelName: "test"}, nil
}
func (c *fakeClassifier) Emotion(ctx domain.Context, text string) (domain.EmotionResult, error) {
	if c.emotionErr != nil {
		return domain.EmotionResult{}, c.emotionErr
	}
	return domain.EmotionResult{Emotion: domain.EmotionJoy, ConfidenceScore: 0.8, ModelName: "test"}, nil
}
func (c *fakeClassifier) Batch(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	return nil, nil
}

func testConfig() Config {
	return Config{
		Stream:          "posts",
		ConsumerGroup:   "workers",
		ConsumerName:    "w1",
		UpdatesChannel:  "sentiment_updates",
		BatchSize:       10,
		BlockDuration:   100 * time.Millisecond,
		ReclaimInterval: time.Hour,
		ReclaimMinIdle:  30 * time.Second,
		BackoffInitial:  10 * time.Millisecond,
		BackoffMax:      20 * time.Millisecond,
		LogEvery:        1,
	}
}

func TestPool_Process_HappyPath(t *testing.T) {
	log := &fakeLogClient{}
	store := &fakeStore{}
	classifier := &fakeClassifier{}
	p := NewPool(testConfig(), log, store, classifier)

	entry := domain.StreamEntry{ID: "1-1", Fields: map[string]string{
		"post_id": "p1", "source": "twitter", "content": "great", "author": "a1",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}}
	p.process(context.Background(), entry)

	assert.Equal(t, int64(1), p.processed.Load())
	assert.Equal(t, 1, store.calls)
	assert.Contains(t, log.acked, "1-1")
	assert.Len(t, log.pubs, 1)
}

func TestPool_Process_PoisonMissingFields(t *testing.T) {
	log := &fakeLogClient{}
	store := &fakeStore{}
	classifier := &fakeClassifier{}
	p := NewPool(testConfig(), log, store, classifier)

	entry := domain.StreamEntry{ID: "1-2", Fields: map[string]string{"post_id": "p2"}}
	p.process(context.Background(), entry)

	assert.Equal(t, int64(1), p.poisoned.Load())
	assert.Contains(t, log.acked, "1-2")
	assert.Equal(t, 0, store.calls)
}

func TestPool_Process_PoisonBadTimestamp(t *testing.T) {
	log := &fakeLogClient{}
	store := &fakeStore{}
	classifier := &fakeClassifier{}
	p := NewPool(testConfig(), log, store, classifier)

	entry := domain.StreamEntry{ID: "1-3", Fields: map[string]string{
		"post_id": "p3", "source": "twitter", "content": "x", "author": "a", "created_at": "not-a-time",
	}}
	p.process(context.Background(), entry)

	assert.Equal(t, int64(1), p.poisoned.Load())
	assert.Contains(t, log.acked, "1-3")
}

func TestPool_Process_RetryableClassifierFailureLeavesUnacked(t *testing.T) {
	log := &fakeLogClient{}
	store := &fakeStore{}
	classifier := &fakeClassifier{sentimentErr: errors.New("upstream down")}
	cfg := testConfig()
	cfg.BackoffMax = 5 * time.Millisecond
	p := NewPool(cfg, log, store, classifier)

	entry := domain.StreamEntry{ID: "1-4", Fields: map[string]string{
		"post_id": "p4", "source": "twitter", "content": "x", "author": "a",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}}
	p.process(context.Background(), entry)

	assert.Equal(t, int64(1), p.retried.Load())
	assert.NotContains(t, log.acked, "1-4")
	assert.Equal(t, 0, store.calls)
}

func TestDecodeFields_SanitizesContent(t *testing.T) {
	f, err := decodeFields(map[string]string{
		"post_id": "p6", "source": "twitter", "content": "bad\x00 content\x7f",
		"author": "a", "created_at": time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, "bad content", f.Content)
}

func TestPool_Process_EmotionFailureFallsBackToNeutral(t *testing.T) {
	log := &fakeLogClient{}
	store := &fakeStore{}
	classifier := &fakeClassifier{emotionErr: errors.New("emotion model down")}
	p := NewPool(testConfig(), log, store, classifier)

	entry := domain.StreamEntry{ID: "1-5", Fields: map[string]string{
		"post_id": "p5", "source": "twitter", "content": "x", "author": "a",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}}
	p.process(context.Background(), entry)
	require.Equal(t, int64(1), p.processed.Load())
	require.Len(t, log.pubs, 1)
	var pub map[string]any
	require.NoError(t, json.Unmarshal(log.pubs[0], &pub))
	assert.Equal(t, domain.EmotionNeutral, pub["emotion"])
}
