// Package pushgateway implements the real-time fan-out channel (component
// G): a WebSocket hub that broadcasts per-post sentiment events and
// periodic aggregate metrics to connected subscribers.
package pushgateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/aggregator"
	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-cv-evaluator/pkg/textx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is the envelope shared by all push gateway messages.
type frame struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// newPostData is the payload of a new_post frame.
type newPostData struct {
	PostID          string  `json:"post_id"`
	Content         string  `json:"content"`
	Source          string  `json:"source"`
	SentimentLabel  string  `json:"sentiment_label"`
	ConfidenceScore float64 `json:"confidence_score"`
	Emotion         string  `json:"emotion"`
	Timestamp       string  `json:"timestamp"`
}

// windowMetrics is one window's counts in a metrics_update frame.
type windowMetrics struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Total    int `json:"total"`
}

// metricsData is the payload of a metrics_update frame.
type metricsData struct {
	LastMinute windowMetrics `json:"last_minute"`
	LastHour   windowMetrics `json:"last_hour"`
	Last24h    windowMetrics `json:"last_24_hours"`
}

// subscriber is one connected WebSocket client, owned entirely by the hub
// goroutine; sends happen only on its own write-pump goroutine.
type subscriber struct {
	conn *websocket.Conn
	send chan frame
}

// Gateway is the WebSocket hub described by spec §4.G. Register,
// unregister and broadcast are all serialized through a single goroutine
// (Run), following the hub pattern in
// codeready-toolchain-tarsy/pkg/api/websocket.go, adapted so each
// subscriber owns its own buffered send channel and write pump instead of
// sharing one connection across broadcast and ping writers.
type Gateway struct {
	log   domain.LogClient
	agg   *aggregator.Aggregator
	chan_ string // sentiment_updates channel name

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan frame
}

// New constructs a Gateway. updatesChannel is the Cache pub/sub channel the
// updates producer subscribes to.
func New(log domain.LogClient, agg *aggregator.Aggregator, updatesChannel string) *Gateway {
	return &Gateway{
		log:         log,
		agg:         agg,
		chan_:       updatesChannel,
		subscribers: make(map[*subscriber]struct{}),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan frame, 256),
	}
}

// Run owns the hub's state and must be started exactly once, in its own
// goroutine, before ServeWS is used. It returns when ctx is canceled.
func (g *Gateway) Run(ctx domain.Context) {
	for {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			for s := range g.subscribers {
				close(s.send)
			}
			g.subscribers = map[*subscriber]struct{}{}
			g.mu.Unlock()
			return

		case s := <-g.register:
			g.mu.Lock()
			g.subscribers[s] = struct{}{}
			observability.PushSubscribersGauge.Set(float64(len(g.subscribers)))
			g.mu.Unlock()

		case s := <-g.unregister:
			g.mu.Lock()
			if _, ok := g.subscribers[s]; ok {
				delete(g.subscribers, s)
				close(s.send)
				observability.PushSubscribersGauge.Set(float64(len(g.subscribers)))
			}
			g.mu.Unlock()

		case f := <-g.broadcast:
			// Under the lock, offer the frame to every subscriber with a
			// non-blocking send; a subscriber whose buffered channel is
			// full is removed here and its channel closed, so this loop
			// never blocks (natural backpressure per spec §4.G/§5).
			g.mu.Lock()
			for s := range g.subscribers {
				select {
				case s.send <- f:
					observability.PushFramesSentTotal.WithLabelValues(f.Type).Inc()
				default:
					// slow subscriber: drop it rather than block the hub
					// (natural backpressure per spec §4.G/§5).
					delete(g.subscribers, s)
					close(s.send)
				}
			}
			observability.PushSubscribersGauge.Set(float64(len(g.subscribers)))
			g.mu.Unlock()
		}
	}
}

// ServeWS upgrades the request to a WebSocket, registers the connection,
// sends the hello frame, and starts its write/read pumps. It blocks until
// the connection closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("push gateway upgrade failed", slog.Any("error", err))
		return
	}

	s := &subscriber{conn: conn, send: make(chan frame, 32)}
	g.register <- s

	go g.writePump(s)
	g.readPump(s)
}

// writePump serializes all writes to one connection onto one goroutine, as
// required by gorilla/websocket.
func (g *Gateway) writePump(s *subscriber) {
	defer s.conn.Close()
	s.send <- frame{Type: "connected", Message: "connected to sentiment stream", Timestamp: time.Now().UTC()}
	for f := range s.send {
		if err := s.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

// readPump drains and discards client frames (no inbound protocol is
// defined) until the connection errors or closes, then deregisters.
func (g *Gateway) readPump(s *subscriber) {
	defer func() { g.unregister <- s }()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RunUpdatesProducer subscribes to the Cache's pub/sub update channel and
// translates each post event into a new_post frame, truncating content to
// the ≤100-char preview contract.
func (g *Gateway) RunUpdatesProducer(ctx domain.Context, cache domain.Cache) {
	payloads, closer, err := cache.Subscribe(ctx, g.chan_)
	if err != nil {
		slog.Error("push gateway updates subscribe failed", slog.Any("error", err))
		return
	}
	defer closer()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-payloads:
			if !ok {
				return
			}
			var post struct {
				PostID          string  `json:"post_id"`
				Content         string  `json:"content"`
				Source          string  `json:"source"`
				SentimentLabel  string  `json:"sentiment_label"`
				ConfidenceScore float64 `json:"confidence_score"`
				Emotion         string  `json:"emotion"`
				Timestamp       string  `json:"timestamp"`
			}
			if err := json.Unmarshal(raw, &post); err != nil {
				slog.Warn("push gateway updates decode failed", slog.Any("error", err))
				continue
			}
			g.broadcast <- frame{
				Type: "new_post",
				Data: newPostData{
					PostID:          post.PostID,
					Content:         textx.Truncate(post.Content, 100),
					Source:          post.Source,
					SentimentLabel:  post.SentimentLabel,
					ConfidenceScore: post.ConfidenceScore,
					Emotion:         post.Emotion,
					Timestamp:       post.Timestamp,
				},
				Timestamp: time.Now().UTC(),
			}
		}
	}
}

// metricsInterval is fixed at 30s per spec §4.G.
const metricsInterval = 30 * time.Second

// RunMetricsProducer emits a metrics_update frame every 30s with three
// distribution windows. last_minute is computed from its own ~1-minute
// call (hours=1.0/60.0), never derived from or equal to last_hour — the
// mandatory correction from spec.md §9.
func (g *Gateway) RunMetricsProducer(ctx domain.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.emitMetrics(ctx)
		}
	}
}

func (g *Gateway) emitMetrics(ctx domain.Context) {
	minute, err := g.agg.Distribution(ctx, 1.0/60.0, "")
	if err != nil {
		slog.Warn("push gateway metrics: last_minute failed", slog.Any("error", err))
		return
	}
	hour, err := g.agg.Distribution(ctx, 1.0, "")
	if err != nil {
		slog.Warn("push gateway metrics: last_hour failed", slog.Any("error", err))
		return
	}
	day, err := g.agg.Distribution(ctx, 24.0, "")
	if err != nil {
		slog.Warn("push gateway metrics: last_24_hours failed", slog.Any("error", err))
		return
	}

	g.broadcast <- frame{
		Type: "metrics_update",
		Data: metricsData{
			LastMinute: toWindowMetrics(minute),
			LastHour:   toWindowMetrics(hour),
			Last24h:    toWindowMetrics(day),
		},
		Timestamp: time.Now().UTC(),
	}
}

func toWindowMetrics(r aggregator.DistributionResult) windowMetrics {
	return windowMetrics{
		Positive: r.Distribution.Positive,
		Negative: r.Distribution.Negative,
		Neutral:  r.Distribution.Neutral,
		Total:    r.Total,
	}
}
