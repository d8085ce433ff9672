package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// External calls a remote HTTP JSON classification endpoint. It posts a
// schema-constrained request body and decodes the reply with
// encoding/json — unlike the Python source this is based on, which fed the
// model's raw textual reply through eval(), External never executes
// untrusted content.
type External struct {
	modelName  string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewExternal returns an External classifier that posts to baseURL.
func NewExternal(modelName, apiKey, baseURL string, timeout time.Duration) *External {
	return &External{
		modelName: modelName,
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type classifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type sentimentResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type emotionResponse struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

func (e *External) post(ctx context.Context, path string, reqBody any, out any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(reqBody); err != nil {
		return fmt.Errorf("op=external.post.encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("op=external.post.newrequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("op=external.post.do: %w: %w", domain.ErrUpstreamTimeout, err)
		}
		return fmt.Errorf("op=external.post.do: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("op=external.post.status: %w", domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 500:
		return fmt.Errorf("op=external.post.status: %w: status=%d", domain.ErrUpstreamTimeout, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("op=external.post.status: %w: status=%d", domain.ErrSchemaInvalid, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("op=external.post.decode: %w: %w", domain.ErrSchemaInvalid, err)
	}
	return nil
}

// Sentiment classifies text via the external endpoint's /sentiment route.
func (e *External) Sentiment(ctx domain.Context, text string) (domain.SentimentResult, error) {
	var out sentimentResponse
	if err := e.post(ctx, "/sentiment", classifyRequest{Model: e.modelName, Text: text}, &out); err != nil {
		return domain.SentimentResult{}, err
	}
	return domain.SentimentResult{
		SentimentLabel:  out.Label,
		ConfidenceScore: clamp01(out.Confidence),
		ModelName:       e.modelName,
	}, nil
}

// Emotion classifies text via the external endpoint's /emotion route.
func (e *External) Emotion(ctx domain.Context, text string) (domain.EmotionResult, error) {
	var out emotionResponse
	if err := e.post(ctx, "/emotion", classifyRequest{Model: e.modelName, Text: text}, &out); err != nil {
		return domain.EmotionResult{}, err
	}
	return domain.EmotionResult{
		Emotion:         out.Emotion,
		ConfidenceScore: clamp01(out.Confidence),
		ModelName:       e.modelName,
	}, nil
}

// Batch fans out Sentiment calls with a bounded WaitGroup, matching the
// plain-sync.WaitGroup fan-out precedent used elsewhere in the pack.
func (e *External) Batch(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	return batchSentiment(ctx, e, texts)
}
