// Package alertmonitor implements the sliding-window ratio evaluator
// (component H): an independent periodic task that watches the recent
// negative/positive sentiment ratio and fires alerts when it crosses a
// threshold.
package alertmonitor

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// Config carries the monitor's tunable parameters, all sourced from
// internal/config.Config.
type Config struct {
	CheckInterval time.Duration
	WindowMinutes int
	Threshold     float64
	MinPosts      int
	AlertsChannel string
}

// Monitor runs the periodic ratio check described by spec §4.H.
type Monitor struct {
	cfg   Config
	store domain.Store
	cache domain.Cache
}

// New constructs a Monitor.
func New(cfg Config, store domain.Store, cache domain.Cache) *Monitor {
	return &Monitor{cfg: cfg, store: store, cache: cache}
}

// Run ticks every cfg.CheckInterval (default 60s) until ctx is canceled,
// matching run_monitoring_loop in original_source/backend/services/alerting.py,
// adapted with a bounded sleep replaced by a stdlib ticker.
func (m *Monitor) Run(ctx domain.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.tick(ctx); err != nil {
				slog.Error("alert monitor tick failed", slog.Any("error", err))
			}
		}
	}
}

// tick runs exactly one evaluation per spec §4.H's five numbered steps.
func (m *Monitor) tick(ctx domain.Context) error {
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(m.cfg.WindowMinutes) * time.Minute)

	counts, err := m.store.WindowCounts(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}
	if counts.Total < m.cfg.MinPosts {
		return nil
	}

	ratio := negativeRatio(counts.Positive, counts.Negative)
	if ratio <= m.cfg.Threshold {
		return nil
	}

	alert := domain.Alert{
		AlertType:      domain.AlertTypeHighNegativeRatio,
		ThresholdValue: m.cfg.Threshold,
		ActualValue:    ratio,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		PostCount:      counts.Total,
		TriggeredAt:    windowEnd,
		Details: map[string]any{
			"positive":       counts.Positive,
			"negative":       counts.Negative,
			"neutral":        counts.Neutral,
			"total":          counts.Total,
			"window_minutes": m.cfg.WindowMinutes,
		},
	}

	id, err := m.store.SaveAlert(ctx, alert)
	if err != nil {
		return err
	}
	alert.ID = id
	observability.AlertsFiredTotal.WithLabelValues(alert.AlertType).Inc()
	slog.Warn("sentiment alert triggered",
		slog.Int64("alert_id", id), slog.Float64("ratio", ratio), slog.Int("post_count", counts.Total))

	m.publish(ctx, alert)
	return nil
}

// negativeRatio implements spec.md §4.H step 4, which deliberately
// supersedes original_source/backend/services/alerting.py's behavior
// (which returns no alert at all when positive==0): ratio=+Inf when
// positive==0 and negative>0, ratio=0 when both are zero.
func negativeRatio(positive, negative int) float64 {
	if positive > 0 {
		return float64(negative) / float64(positive)
	}
	if negative > 0 {
		return math.Inf(1)
	}
	return 0
}

// publish is best-effort: a publish failure never prevents the alert from
// having been persisted.
func (m *Monitor) publish(ctx domain.Context, alert domain.Alert) {
	payload, err := json.Marshal(map[string]any{
		"alert_id":        alert.ID,
		"alert_type":      alert.AlertType,
		"threshold_value": alert.ThresholdValue,
		"actual_value":    alert.ActualValue,
		"window_start":    alert.WindowStart.Format(time.RFC3339),
		"window_end":      alert.WindowEnd.Format(time.RFC3339),
		"post_count":      alert.PostCount,
		"triggered_at":    alert.TriggeredAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("alert publish marshal failed", slog.Any("error", err))
		return
	}
	if err := m.cache.Publish(ctx, m.cfg.AlertsChannel, payload); err != nil {
		slog.Warn("alert publish failed", slog.Any("error", err))
	}
}
