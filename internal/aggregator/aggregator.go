// Package aggregator implements the Aggregator (component F): bucketed
// and distribution queries over the Store with a 60s fixed-TTL cache.
package aggregator

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// cacheTTL is fixed at 60s per spec §4.F; it is never configurable.
const cacheTTL = 60 * time.Second

// BucketPoint is one row of an Aggregate response's data[].
type BucketPoint struct {
	Timestamp         time.Time `json:"timestamp"`
	PositiveCount     int       `json:"positive_count"`
	NegativeCount     int       `json:"negative_count"`
	NeutralCount      int       `json:"neutral_count"`
	TotalCount        int       `json:"total_count"`
	PositivePct       float64   `json:"positive_pct"`
	NegativePct       float64   `json:"negative_pct"`
	NeutralPct        float64   `json:"neutral_pct"`
	AverageConfidence float64   `json:"average_confidence"`
}

// Summary carries totals over the aggregate's range.
type Summary struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Total    int `json:"total"`
}

// AggregateResult is the full response of Aggregate.
type AggregateResult struct {
	Period   string        `json:"period"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Data     []BucketPoint `json:"data"`
	Summary  Summary       `json:"summary"`
	Cached   bool          `json:"cached"`
	CachedAt time.Time     `json:"cached_at"`
}

// EmotionCount is one entry of a DistributionResult's top_emotions.
type EmotionCount struct {
	Emotion string `json:"emotion"`
	Count   int    `json:"count"`
}

// Percentages carries the three sentiment label shares of a distribution.
type Percentages struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// DistributionCounts carries the three raw sentiment label counts.
type DistributionCounts struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// DistributionResult is the full response of Distribution.
type DistributionResult struct {
	TimeframeHours float64            `json:"timeframe_hours"`
	Source         string             `json:"source"`
	Distribution   DistributionCounts `json:"distribution"`
	Total          int                `json:"total"`
	Percentages    Percentages        `json:"percentages"`
	TopEmotions    []EmotionCount     `json:"top_emotions"`
	Cached         bool               `json:"cached"`
	CachedAt       time.Time          `json:"cached_at"`
}

// Aggregator implements the cache-aside pattern over Store.
type Aggregator struct {
	store       domain.Store
	cache       domain.Cache
	cachePrefix string
}

// New constructs an Aggregator.
func New(store domain.Store, cache domain.Cache, cachePrefix string) *Aggregator {
	return &Aggregator{store: store, cache: cache, cachePrefix: cachePrefix}
}

// Aggregate serves {period, start, end, data[], summary}. If start is the
// zero Time, it defaults to end-24h; if end is zero, it defaults to
// now-UTC.
func (a *Aggregator) Aggregate(ctx domain.Context, period string, start, end time.Time, source string) (AggregateResult, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}

	sourceKey := source
	if sourceKey == "" {
		sourceKey = "all"
	}
	key := fmt.Sprintf("%s:aggregate:%s:%s:%s:%s", a.cachePrefix, period, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), sourceKey)

	if blob, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var cached AggregateResult
		if err := json.Unmarshal(blob, &cached); err == nil {
			observability.CacheHitsTotal.WithLabelValues("aggregate").Inc()
			cached.Cached = true
			return cached, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues("aggregate").Inc()

	buckets, err := a.store.CountByBucket(ctx, period, start, end, source)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("op=aggregator.aggregate: %w", err)
	}

	result := AggregateResult{Period: period, Start: start, End: end, Cached: false, CachedAt: time.Now().UTC()}
	for _, b := range buckets {
		result.Data = append(result.Data, BucketPoint{
			Timestamp:         b.BucketStart,
			PositiveCount:     b.Positive,
			NegativeCount:     b.Negative,
			NeutralCount:      b.Neutral,
			TotalCount:        b.Total,
			PositivePct:       pct(b.Positive, b.Total),
			NegativePct:       pct(b.Negative, b.Total),
			NeutralPct:        pct(b.Neutral, b.Total),
			AverageConfidence: b.AverageConfidence,
		})
		result.Summary.Positive += b.Positive
		result.Summary.Negative += b.Negative
		result.Summary.Neutral += b.Neutral
		result.Summary.Total += b.Total
	}

	a.writeThrough(ctx, key, result)
	return result, nil
}

// Distribution serves {timeframe_hours, source, distribution, total,
// percentages, top_emotions, cached, cached_at}.
func (a *Aggregator) Distribution(ctx domain.Context, hours float64, source string) (DistributionResult, error) {
	sourceKey := source
	if sourceKey == "" {
		sourceKey = "all"
	}
	key := fmt.Sprintf("%s:distribution:%v:%s", a.cachePrefix, hours, sourceKey)

	if blob, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var cached DistributionResult
		if err := json.Unmarshal(blob, &cached); err == nil {
			observability.CacheHitsTotal.WithLabelValues("distribution").Inc()
			cached.Cached = true
			return cached, nil
		}
	}
	observability.CacheMissesTotal.WithLabelValues("distribution").Inc()

	since := time.Now().UTC().Add(-time.Duration(hours * float64(time.Hour)))
	counts, err := a.store.Distribution(ctx, since, source)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("op=aggregator.distribution: %w", err)
	}

	result := DistributionResult{
		TimeframeHours: hours,
		Source:         sourceKey,
		Distribution:   DistributionCounts{Positive: counts.Positive, Negative: counts.Negative, Neutral: counts.Neutral},
		Total:          counts.Total,
		Percentages: Percentages{
			Positive: pct(counts.Positive, counts.Total),
			Negative: pct(counts.Negative, counts.Total),
			Neutral:  pct(counts.Neutral, counts.Total),
		},
		TopEmotions: topEmotions(counts.EmotionCounts, 5),
		Cached:      false,
		CachedAt:    time.Now().UTC(),
	}

	a.writeThrough(ctx, key, result)
	return result, nil
}

func (a *Aggregator) writeThrough(ctx domain.Context, key string, result any) {
	blob, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = a.cache.SetEX(ctx, key, blob, cacheTTL)
}

// pct computes floating-point percentage, exactly 0.0 when total is zero.
func pct(count, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(count) / float64(total) * 100
}

// topEmotions returns the top-n emotion labels by count, source:
// sorted(...)[:5] in original_source/backend/api/routes.py.
func topEmotions(counts map[string]int, n int) []EmotionCount {
	out := make([]EmotionCount, 0, len(counts))
	for e, c := range counts {
		out = append(out, EmotionCount{Emotion: e, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Emotion < out[j].Emotion
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
