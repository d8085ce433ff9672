package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

type fakeStore struct {
	rows     []domain.PostWithAnalysis
	total    int
	pingErr  error
	healthOK bool
}

func (s *fakeStore) UpsertPostAndAnalysis(ctx domain.Context, post domain.Post, analysis domain.Analysis) error {
	return nil
}
func (s *fakeStore) ListPosts(ctx domain.Context, filter domain.PostFilter) ([]domain.PostWithAnalysis, int, error) {
	return s.rows, s.total, nil
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
func (s *fakeStore) HealthStats(ctx domain.Context) (int, int, int, error)           { return 3, 2, 1, nil }
func (s *fakeStore) Ping(ctx domain.Context) error                                   { return s.pingErr }

func TestHealthHandler_Healthy(t *testing.T) {
	store := &fakeStore{}
	srv := &Server{Store: store, StoreCheck: func(ctx domain.Context) error { return nil }, CacheCheck: func(ctx domain.Context) error { return nil }}

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.HealthHandler()(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", w.Code)
	}
	var body healthResponse
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "healthy" {
		t.Fatalf("status field: got %q", body.Status)
	}
	if body.Stats.TotalPosts != 3 {
		t.Fatalf("stats not populated: %+v", body.Stats)
	}
}

func TestHealthHandler_Degraded(t *testing.T) {
	store := &fakeStore{}
	srv := &Server{Store: store, StoreCheck: func(ctx domain.Context) error { return nil }, CacheCheck: func(ctx domain.Context) error { return http.ErrHandlerTimeout }}

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.HealthHandler()(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d want 503", w.Code)
	}
}

func TestPostsHandler_DefaultsAndMapping(t *testing.T) {
	analyzed := domain.Analysis{SentimentLabel: "positive", ConfidenceScore: 0.9, Emotion: "joy", ModelName: "local-lexicon-v1"}
	store := &fakeStore{
		rows: []domain.PostWithAnalysis{
			{Post: domain.Post{PostID: "p1", Source: "twitter", Content: "hi", Author: "a"}, Analysis: &analyzed},
			{Post: domain.Post{PostID: "p2", Source: "reddit", Content: "yo", Author: "b"}, Analysis: nil},
		},
		total: 2,
	}
	srv := &Server{Store: store}

	r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	w := httptest.NewRecorder()
	srv.PostsHandler()(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var body postsResponse
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body.Limit != 50 || body.Offset != 0 {
		t.Fatalf("defaults not applied: %+v", body)
	}
	if len(body.Posts) != 2 || body.Posts[0].Sentiment == nil || body.Posts[1].Sentiment != nil {
		t.Fatalf("sentiment mapping wrong: %+v", body.Posts)
	}
}

func TestPostsHandler_RejectsOutOfRangeLimit(t *testing.T) {
	srv := &Server{Store: &fakeStore{}}
	r := httptest.NewRequest(http.MethodGet, "/api/posts?limit=101", nil)
	w := httptest.NewRecorder()
	srv.PostsHandler()(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", w.Code)
	}
}

func TestDistributionHandler_RejectsOutOfRangeHours(t *testing.T) {
	srv := &Server{Store: &fakeStore{}}
	r := httptest.NewRequest(http.MethodGet, "/api/sentiment/distribution?hours=169", nil)
	w := httptest.NewRecorder()
	srv.DistributionHandler()(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", w.Code)
	}
}

func TestAggregateHandler_RejectsBadPeriod(t *testing.T) {
	srv := &Server{Store: &fakeStore{}}
	r := httptest.NewRequest(http.MethodGet, "/api/sentiment/aggregate?period=fortnight", nil)
	w := httptest.NewRecorder()
	srv.AggregateHandler()(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", w.Code)
	}
}
