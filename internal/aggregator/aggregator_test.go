package aggregator

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/redisx"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

type fakeStore struct {
	buckets  []domain.BucketCount
	dist     domain.DistributionCounts
	distCall int
}

func (s *fakeStore) UpsertPostAndAnalysis(ctx domain.Context, post domain.Post, analysis domain.Analysis) error {
	return nil
}
func (s *fakeStore) ListPosts(ctx domain.Context, filter domain.PostFilter) ([]domain.PostWithAnalysis, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) CountByBucket(ctx domain.Context, period string, start, end time.Time, source string) ([]domain.BucketCount, error) {
	return s.buckets, nil
}
func (s *fakeStore) Distribution(ctx domain.Context, since time.Time, source string) (domain.DistributionCounts, error) {
	s.distCall++
	return s.dist, nil
}
func (s *fakeStore) WindowCounts(ctx domain.Context, since, until time.Time) (domain.WindowCounts, error) {
	return domain.WindowCounts{}, nil
}
func (s *fakeStore) SaveAlert(ctx domain.Context, alert domain.Alert) (int64, error) { return 0, nil }
func (s *fakeStore) HealthStats(ctx domain.Context) (int, int, int, error)           { return 0, 0, 0, nil }
func (s *fakeStore) Ping(ctx domain.Context) error                                   { return nil }

func newTestAggregator(t *testing.T, store *fakeStore) *Aggregator {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(store, redisx.NewCache(rdb), "sentiment_cache")
}

func TestAggregator_Distribution_ZeroTotal(t *testing.T) {
	a := newTestAggregator(t, &fakeStore{dist: domain.DistributionCounts{}})
	res, err := a.Distribution(context.Background(), 1, "")
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Percentages.Positive)
	require.Equal(t, 0.0, res.Percentages.Negative)
	require.Equal(t, 0.0, res.Percentages.Neutral)
	require.False(t, res.Cached)
}

func TestAggregator_Distribution_CachesSecondCall(t *testing.T) {
	store := &fakeStore{dist: domain.DistributionCounts{Positive: 1, Negative: 1, Neutral: 1, Total: 3}}
	a := newTestAggregator(t, store)

	res1, err := a.Distribution(context.Background(), 24, "twitter")
	require.NoError(t, err)
	require.False(t, res1.Cached)
	require.InDelta(t, 33.33, res1.Percentages.Positive, 0.01)

	res2, err := a.Distribution(context.Background(), 24, "twitter")
	require.NoError(t, err)
	require.True(t, res2.Cached)
	require.Equal(t, 1, store.distCall, "second call should hit cache, not Store")
}

func TestAggregator_Distribution_TopEmotionsLimitedToFive(t *testing.T) {
	store := &fakeStore{dist: domain.DistributionCounts{
		Total: 10,
		EmotionCounts: map[string]int{
			"joy": 5, "sadness": 4, "anger": 3, "fear": 2, "surprise": 1, "neutral": 1,
		},
	}}
	a := newTestAggregator(t, store)
	res, err := a.Distribution(context.Background(), 24, "")
	require.NoError(t, err)
	require.Len(t, res.TopEmotions, 5)
	require.Equal(t, "joy", res.TopEmotions[0].Emotion)
}

func TestAggregator_Aggregate_DefaultWindow(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{buckets: []domain.BucketCount{
		{BucketStart: now, Positive: 2, Negative: 1, Neutral: 1, Total: 4, AverageConfidence: 0.7},
	}}
	a := newTestAggregator(t, store)

	res, err := a.Aggregate(context.Background(), "hour", time.Time{}, time.Time{}, "")
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	require.Equal(t, 4, res.Summary.Total)
	require.WithinDuration(t, res.End.Add(-24*time.Hour), res.Start, time.Second)
}
