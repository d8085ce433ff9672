package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Sentiment_EmptyText(t *testing.T) {
	l := NewLocal("")
	res, err := l.Sentiment(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "neutral", res.SentimentLabel)
	assert.Equal(t, 0.0, res.ConfidenceScore)
	assert.Equal(t, "none", res.ModelName)
}

func TestLocal_Sentiment_Positive(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Sentiment(context.Background(), "This is great and amazing, I love it")
	require.NoError(t, err)
	assert.Equal(t, "positive", res.SentimentLabel)
	assert.Greater(t, res.ConfidenceScore, 0.5)
	assert.Equal(t, "test-model", res.ModelName)
}

func TestLocal_Sentiment_Negative(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Sentiment(context.Background(), "This is terrible and awful, I hate it")
	require.NoError(t, err)
	assert.Equal(t, "negative", res.SentimentLabel)
}

func TestLocal_Sentiment_NeutralNoMatches(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Sentiment(context.Background(), "the quick brown fox jumps")
	require.NoError(t, err)
	assert.Equal(t, "neutral", res.SentimentLabel)
	assert.Equal(t, 0.5, res.ConfidenceScore)
}

func TestLocal_Emotion_ShortText(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Emotion(context.Background(), "hi joy")
	require.NoError(t, err)
	assert.Equal(t, "neutral", res.Emotion)
	assert.Equal(t, 0.0, res.ConfidenceScore)
}

func TestLocal_Emotion_MatchesLexicon(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Emotion(context.Background(), "I am so happy and full of joy today")
	require.NoError(t, err)
	assert.Equal(t, "joy", res.Emotion)
}

func TestLocal_Emotion_NoLexiconMatch(t *testing.T) {
	l := NewLocal("test-model")
	res, err := l.Emotion(context.Background(), "the weather report mentions clouds today")
	require.NoError(t, err)
	assert.Equal(t, "neutral", res.Emotion)
	assert.Equal(t, 0.5, res.ConfidenceScore)
}

func TestLocal_Batch(t *testing.T) {
	l := NewLocal("test-model")
	results, err := l.Batch(context.Background(), []string{"great", "terrible", ""})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "positive", results[0].SentimentLabel)
	assert.Equal(t, "negative", results[1].SentimentLabel)
	assert.Equal(t, "neutral", results[2].SentimentLabel)
}
