// Package app wires application components and startup helpers.
package app

import (
	"context"

	"github.com/fairyhunter13/ai-cv-evaluator/internal/domain"
)

// BuildReadinessChecks returns the two readiness checks named by spec
// §4.I's health endpoint: Store and Cache connectivity.
func BuildReadinessChecks(store domain.Store, cache domain.Cache) (
	storeCheck func(ctx context.Context) error,
	cacheCheck func(ctx context.Context) error,
) {
	storeCheck = func(ctx context.Context) error {
		return store.Ping(ctx)
	}
	cacheCheck = func(ctx context.Context) error {
		return cache.Ping(ctx)
	}
	return storeCheck, cacheCheck
}
