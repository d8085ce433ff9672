package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/aggregator"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/pushgateway"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// validationErrors maps a validator.ValidationErrors into a
// lowercase-field-name -> tag map, matching the teacher's upload-handler
// error-reporting shape.
func validationErrors(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// Server holds the dependencies behind the Query API (component I): a
// thin, stateless read façade over Store and the Aggregator.
type Server struct {
	Store   domain.Store
	Cache   domain.Cache
	Agg     *aggregator.Aggregator
	Gateway *pushgateway.Gateway

	StoreCheck func(ctx domain.Context) error
	CacheCheck func(ctx domain.Context) error
}

// NewServer constructs a Server.
func NewServer(store domain.Store, cache domain.Cache, agg *aggregator.Aggregator, gw *pushgateway.Gateway, storeCheck, cacheCheck func(ctx domain.Context) error) *Server {
	return &Server{Store: store, Cache: cache, Agg: agg, Gateway: gw, StoreCheck: storeCheck, CacheCheck: cacheCheck}
}

type serviceHealth struct {
	Database bool `json:"database"`
	Redis    bool `json:"redis"`
}

type healthStats struct {
	TotalPosts    int `json:"total_posts"`
	TotalAnalyses int `json:"total_analyses"`
	RecentPosts1h int `json:"recent_posts_1h"`
}

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Services  serviceHealth `json:"services"`
	Stats     healthStats   `json:"stats"`
}

// HealthHandler implements GET /api/health.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dbOK := s.StoreCheck(ctx) == nil
		redisOK := s.CacheCheck(ctx) == nil

		status := "healthy"
		code := http.StatusOK
		switch {
		case !dbOK && !redisOK:
			status, code = "unhealthy", http.StatusServiceUnavailable
		case !dbOK || !redisOK:
			status, code = "degraded", http.StatusServiceUnavailable
		}

		var stats healthStats
		if dbOK {
			total, analyses, recent, err := s.Store.HealthStats(ctx)
			if err == nil {
				stats = healthStats{TotalPosts: total, TotalAnalyses: analyses, RecentPosts1h: recent}
			}
		}

		writeJSON(w, code, healthResponse{
			Status:    status,
			Timestamp: time.Now().UTC(),
			Services:  serviceHealth{Database: dbOK, Redis: redisOK},
			Stats:     stats,
		})
	}
}

type sentimentView struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Emotion    string  `json:"emotion"`
	ModelName  string  `json:"model_name"`
}

type postView struct {
	PostID    string         `json:"post_id"`
	Source    string         `json:"source"`
	Content   string         `json:"content"`
	Author    string         `json:"author"`
	CreatedAt time.Time      `json:"created_at"`
	Sentiment *sentimentView `json:"sentiment"`
}

type postsResponse struct {
	Posts   []postView        `json:"posts"`
	Total   int               `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	Filters domain.PostFilter `json:"filters"`
}

// postsQueryParams carries the parsed pagination bounds through
// struct-tag validation before a filter is built from them.
type postsQueryParams struct {
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`
}

// PostsHandler implements GET /api/posts.
func (s *Server) PostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		params := postsQueryParams{Limit: 50, Offset: 0}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "limit must be an integer")
				return
			}
			params.Limit = n
		}
		if v := q.Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "offset must be an integer")
				return
			}
			params.Offset = n
		}
		if err := getValidator().Struct(params); err != nil {
			writeError(w, r, domain.ErrInvalidArgument, validationErrors(err))
			return
		}
		limit, offset := params.Limit, params.Offset

		filter := domain.PostFilter{
			Source:    q.Get("source"),
			Sentiment: q.Get("sentiment"),
			Limit:     limit,
			Offset:    offset,
		}
		if v := q.Get("start"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "start must be RFC3339")
				return
			}
			filter.Start = &t
		}
		if v := q.Get("end"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "end must be RFC3339")
				return
			}
			filter.End = &t
		}

		rows, total, err := s.Store.ListPosts(r.Context(), filter)
		if err != nil {
			writeError(w, r, domain.ErrInternal, nil)
			return
		}

		posts := make([]postView, 0, len(rows))
		for _, row := range rows {
			pv := postView{
				PostID:    row.Post.PostID,
				Source:    row.Post.Source,
				Content:   row.Post.Content,
				Author:    row.Post.Author,
				CreatedAt: row.Post.CreatedAt,
			}
			if row.Analysis != nil {
				pv.Sentiment = &sentimentView{
					Label:      row.Analysis.SentimentLabel,
					Confidence: row.Analysis.ConfidenceScore,
					Emotion:    row.Analysis.Emotion,
					ModelName:  row.Analysis.ModelName,
				}
			}
			posts = append(posts, pv)
		}

		writeJSON(w, http.StatusOK, postsResponse{Posts: posts, Total: total, Limit: limit, Offset: offset, Filters: filter})
	}
}

// aggregateQueryParams carries the parsed period through struct-tag
// validation before it's handed to the Aggregator.
type aggregateQueryParams struct {
	Period string `validate:"oneof=minute hour day"`
}

// AggregateHandler implements GET /api/sentiment/aggregate.
func (s *Server) AggregateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		period := q.Get("period")
		if period == "" {
			period = domain.PeriodHour
		}
		if err := getValidator().Struct(aggregateQueryParams{Period: period}); err != nil {
			writeError(w, r, domain.ErrInvalidArgument, validationErrors(err))
			return
		}

		var start, end time.Time
		if v := q.Get("start"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "start must be RFC3339")
				return
			}
			start = t
		}
		if v := q.Get("end"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "end must be RFC3339")
				return
			}
			end = t
		}

		result, err := s.Agg.Aggregate(r.Context(), period, start, end, q.Get("source"))
		if err != nil {
			writeError(w, r, domain.ErrInternal, nil)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// distributionQueryParams carries the parsed lookback window through
// struct-tag validation before it's handed to the Aggregator.
type distributionQueryParams struct {
	Hours float64 `validate:"min=1,max=168"`
}

// DistributionHandler implements GET /api/sentiment/distribution.
func (s *Server) DistributionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		hours := 24.0
		if v := q.Get("hours"); v != "" {
			h, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, r, domain.ErrInvalidArgument, "hours must be a number")
				return
			}
			hours = h
		}
		if err := getValidator().Struct(distributionQueryParams{Hours: hours}); err != nil {
			writeError(w, r, domain.ErrInvalidArgument, validationErrors(err))
			return
		}

		result, err := s.Agg.Distribution(r.Context(), hours, q.Get("source"))
		if err != nil {
			writeError(w, r, domain.ErrInternal, nil)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// WebSocketHandler implements GET /ws/sentiment, delegating to the Push
// Gateway hub.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Gateway.ServeWS(w, r)
	}
}
