// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PgxPool is a minimal subset of pgxpool used by Store for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// EnsureSchema applies the embedded idempotent schema. It is the module's
// only bootstrap mechanism; migration tooling itself stays out of scope.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=store.ensureschema: %w", err)
	}
	return nil
}

// Store implements domain.Store over PostgreSQL via pgx.
type Store struct {
	Pool PgxPool
}

// NewStore constructs a Store with the given pool.
func NewStore(p PgxPool) *Store { return &Store{Pool: p} }

func span(ctx domain.Context, op, table, sqlOp string) (domain.Context, func()) {
	tracer := otel.Tracer("repo.store")
	ctx, s := tracer.Start(ctx, "store."+op)
	s.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", sqlOp),
		attribute.String("db.sql.table", table),
	)
	return ctx, s.End
}

// UpsertPostAndAnalysis is atomic: if post_id exists, refresh ingested_at;
// insert the analysis only if one doesn't already exist for that post_id
// (idempotent — never overwrite an existing Analysis). Uses an explicit
// transaction with a committed flag and deferred conditional rollback.
func (s *Store) UpsertPostAndAnalysis(ctx domain.Context, post domain.Post, analysis domain.Analysis) error {
	ctx, end := span(ctx, "upsert_post_and_analysis", "posts", "INSERT")
	defer end()

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=store.upsert.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO posts (post_id, source, content, author, created_at, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (post_id) DO UPDATE SET ingested_at = EXCLUDED.ingested_at
	`, post.PostID, post.Source, post.Content, post.Author, post.CreatedAt.UTC(), post.IngestedAt.UTC())
	if err != nil {
		return fmt.Errorf("op=store.upsert.post: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO analyses (post_id, model_name, sentiment_label, confidence_score, emotion, analyzed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (post_id) DO NOTHING
	`, analysis.PostID, analysis.ModelName, analysis.SentimentLabel, analysis.ConfidenceScore, analysis.Emotion, analysis.AnalyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("op=store.upsert.analysis: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=store.upsert.commit: %w", err)
	}
	committed = true
	return nil
}

// ListPosts returns posts left-outer-joined with their analysis, ordered by
// created_at desc, paginated, plus the total matching row count.
func (s *Store) ListPosts(ctx domain.Context, filter domain.PostFilter) ([]domain.PostWithAnalysis, int, error) {
	ctx, end := span(ctx, "list_posts", "posts", "SELECT")
	defer end()

	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Source != "" {
		add("p.source = $%d", filter.Source)
	}
	if filter.Sentiment != "" {
		add("a.sentiment_label = $%d", filter.Sentiment)
	}
	if filter.Start != nil {
		add("p.created_at >= $%d", filter.Start.UTC())
	}
	if filter.End != nil {
		add("p.created_at <= $%d", filter.End.UTC())
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	countQ := "SELECT COUNT(*) FROM posts p LEFT JOIN analyses a ON a.post_id = p.post_id" + whereClause
	var total int
	if err := s.Pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=store.list_posts.count: %w", err)
	}

	limit, offset := filter.Limit, filter.Offset
	pageArgs := append(append([]any{}, args...), limit, offset)
	q := fmt.Sprintf(`
		SELECT p.post_id, p.source, p.content, p.author, p.created_at, p.ingested_at,
		       a.model_name, a.sentiment_label, a.confidence_score, a.emotion, a.analyzed_at
		FROM posts p LEFT JOIN analyses a ON a.post_id = p.post_id
		%s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, len(pageArgs)-1, len(pageArgs))

	rows, err := s.Pool.Query(ctx, q, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("op=store.list_posts.query: %w", err)
	}
	defer rows.Close()

	var out []domain.PostWithAnalysis
	for rows.Next() {
		var p domain.Post
		var modelName, sentimentLabel, emotion *string
		var confidence *float64
		var analyzedAt *time.Time
		if err := rows.Scan(&p.PostID, &p.Source, &p.Content, &p.Author, &p.CreatedAt, &p.IngestedAt,
			&modelName, &sentimentLabel, &confidence, &emotion, &analyzedAt); err != nil {
			return nil, 0, fmt.Errorf("op=store.list_posts.scan: %w", err)
		}
		pwa := domain.PostWithAnalysis{Post: p}
		if sentimentLabel != nil {
			pwa.Analysis = &domain.Analysis{
				PostID:          p.PostID,
				ModelName:       deref(modelName),
				SentimentLabel:  *sentimentLabel,
				ConfidenceScore: derefFloat(confidence),
				Emotion:         deref(emotion),
				AnalyzedAt:      derefTime(analyzedAt),
			}
		}
		out = append(out, pwa)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("op=store.list_posts.rows: %w", err)
	}
	return out, total, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// CountByBucket truncates analyzed_at to the bucket start in UTC for the
// given period and returns per-bucket counts. Buckets with zero rows are
// omitted by construction (GROUP BY over existing rows only).
func (s *Store) CountByBucket(ctx domain.Context, period string, start, end time.Time, source string) ([]domain.BucketCount, error) {
	ctx, end2 := span(ctx, "count_by_bucket", "analyses", "SELECT")
	defer end2()

	trunc := map[string]string{"minute": "minute", "hour": "hour", "day": "day"}[period]
	if trunc == "" {
		trunc = "hour"
	}

	args := []any{start.UTC(), end.UTC()}
	sourceClause := ""
	if source != "" {
		args = append(args, source)
		sourceClause = fmt.Sprintf(" AND p.source = $%d", len(args))
	}

	q := fmt.Sprintf(`
		SELECT date_trunc('%s', a.analyzed_at) AS bucket,
		       COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
		       COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
		       COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
		       COUNT(*),
		       AVG(a.confidence_score)
		FROM analyses a
		JOIN posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1 AND a.analyzed_at <= $2%s
		GROUP BY bucket
		ORDER BY bucket`, trunc, sourceClause)

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=store.count_by_bucket.query: %w", err)
	}
	defer rows.Close()

	var out []domain.BucketCount
	for rows.Next() {
		var bc domain.BucketCount
		var avgConf *float64
		if err := rows.Scan(&bc.BucketStart, &bc.Positive, &bc.Negative, &bc.Neutral, &bc.Total, &avgConf); err != nil {
			return nil, fmt.Errorf("op=store.count_by_bucket.scan: %w", err)
		}
		if avgConf != nil {
			bc.AverageConfidence = *avgConf
		}
		out = append(out, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=store.count_by_bucket.rows: %w", err)
	}
	return out, nil
}

// Distribution computes a single aggregate over analyzed_at >= since.
func (s *Store) Distribution(ctx domain.Context, since time.Time, source string) (domain.DistributionCounts, error) {
	ctx, end := span(ctx, "distribution", "analyses", "SELECT")
	defer end()

	args := []any{since.UTC()}
	sourceClause := ""
	if source != "" {
		args = append(args, source)
		sourceClause = fmt.Sprintf(" AND p.source = $%d", len(args))
	}

	q := fmt.Sprintf(`
		SELECT
		    COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
		    COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
		    COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
		    COUNT(*)
		FROM analyses a
		JOIN posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1%s`, sourceClause)

	var dc domain.DistributionCounts
	if err := s.Pool.QueryRow(ctx, q, args...).Scan(&dc.Positive, &dc.Negative, &dc.Neutral, &dc.Total); err != nil {
		return domain.DistributionCounts{}, fmt.Errorf("op=store.distribution.query: %w", err)
	}

	emotionQ := fmt.Sprintf(`
		SELECT a.emotion, COUNT(*)
		FROM analyses a
		JOIN posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1 AND a.emotion <> ''%s
		GROUP BY a.emotion`, sourceClause)
	rows, err := s.Pool.Query(ctx, emotionQ, args...)
	if err != nil {
		return domain.DistributionCounts{}, fmt.Errorf("op=store.distribution.emotions: %w", err)
	}
	defer rows.Close()

	dc.EmotionCounts = map[string]int{}
	for rows.Next() {
		var e string
		var c int
		if err := rows.Scan(&e, &c); err != nil {
			return domain.DistributionCounts{}, fmt.Errorf("op=store.distribution.emotions_scan: %w", err)
		}
		dc.EmotionCounts[e] = c
	}
	if err := rows.Err(); err != nil {
		return domain.DistributionCounts{}, fmt.Errorf("op=store.distribution.emotions_rows: %w", err)
	}
	return dc, nil
}

// WindowCounts returns sentiment counts over [start, end) for the alert
// monitor's sliding-window ratio computation.
func (s *Store) WindowCounts(ctx domain.Context, start, end time.Time) (domain.WindowCounts, error) {
	ctx, endSpan := span(ctx, "window_counts", "analyses", "SELECT")
	defer endSpan()

	q := `
		SELECT
		    COUNT(*) FILTER (WHERE sentiment_label = 'positive'),
		    COUNT(*) FILTER (WHERE sentiment_label = 'negative'),
		    COUNT(*) FILTER (WHERE sentiment_label = 'neutral'),
		    COUNT(*)
		FROM analyses
		WHERE analyzed_at >= $1 AND analyzed_at < $2`

	var wc domain.WindowCounts
	if err := s.Pool.QueryRow(ctx, q, start.UTC(), end.UTC()).Scan(&wc.Positive, &wc.Negative, &wc.Neutral, &wc.Total); err != nil {
		return domain.WindowCounts{}, fmt.Errorf("op=store.window_counts: %w", err)
	}
	return wc, nil
}

// SaveAlert persists an append-only alert record and returns its id.
func (s *Store) SaveAlert(ctx domain.Context, alert domain.Alert) (int64, error) {
	ctx, end := span(ctx, "save_alert", "alerts", "INSERT")
	defer end()

	details, err := json.Marshal(alert.Details)
	if err != nil {
		return 0, fmt.Errorf("op=store.save_alert.marshal: %w", err)
	}

	var id int64
	q := `
		INSERT INTO alerts (alert_type, threshold_value, actual_value, window_start, window_end, post_count, triggered_at, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	if err := s.Pool.QueryRow(ctx, q, alert.AlertType, alert.ThresholdValue, alert.ActualValue,
		alert.WindowStart.UTC(), alert.WindowEnd.UTC(), alert.PostCount, alert.TriggeredAt.UTC(), details).Scan(&id); err != nil {
		return 0, fmt.Errorf("op=store.save_alert.insert: %w", err)
	}
	return id, nil
}

// HealthStats returns counts used by the health endpoint.
func (s *Store) HealthStats(ctx domain.Context) (int, int, int, error) {
	ctx, end := span(ctx, "health_stats", "posts", "SELECT")
	defer end()

	var totalPosts, totalAnalyses, recentPosts1h int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&totalPosts); err != nil {
		return 0, 0, 0, fmt.Errorf("op=store.health_stats.posts: %w", err)
	}
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&totalAnalyses); err != nil {
		return 0, 0, 0, fmt.Errorf("op=store.health_stats.analyses: %w", err)
	}
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE created_at >= $1`, time.Now().UTC().Add(-time.Hour)).Scan(&recentPosts1h); err != nil {
		return 0, 0, 0, fmt.Errorf("op=store.health_stats.recent: %w", err)
	}
	return totalPosts, totalAnalyses, recentPosts1h, nil
}

// Ping checks connectivity for readiness/health probes.
func (s *Store) Ping(ctx domain.Context) error {
	if err := s.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("op=store.ping: %w", err)
	}
	return nil
}
