package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("op=store.upsert: %w", domain.ErrConflict)
	assert.True(t, errors.Is(wrapped, domain.ErrConflict))
	assert.False(t, errors.Is(wrapped, domain.ErrNotFound))
}

func TestPostFilterDefaults(t *testing.T) {
	f := domain.PostFilter{Limit: 50}
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 0, f.Offset)
}
