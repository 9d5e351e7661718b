// Package resolver runs bounded search-then-verify loops.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrExhausted is returned when no query produced a verified candidate.
var ErrExhausted = errors.New("no verified candidate")

// Result describes a successful resolution.
type Result[T any] struct {
	Value    T
	Query    string
	Attempts int
}

// Resolve tries queries in order, at most maxAttempts of them, and returns the
// first verified candidate. attempt returns the candidate for one query and
// whether it passed verification; its errors are recorded and the next query is
// tried. Context cancellation stops the loop immediately.
func Resolve[T any](ctx context.Context, queries []string, maxAttempts int, attempt func(ctx context.Context, query string) (T, bool, error), logger *zap.Logger) (Result[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 || maxAttempts > len(queries) {
		maxAttempts = len(queries)
	}

	var errs []error
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}

		query := queries[i]
		value, ok, err := attempt(ctx, query)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result[T]{}, ctxErr
			}
			logger.Debug("resolver attempt failed", zap.Int("attempt", i+1), zap.String("query", query), zap.Error(err))
			errs = append(errs, fmt.Errorf("query %q: %w", query, err))
			continue
		}
		if !ok {
			logger.Debug("resolver candidate rejected", zap.Int("attempt", i+1), zap.String("query", query))
			continue
		}

		logger.Debug("resolver candidate verified", zap.Int("attempt", i+1), zap.String("query", query))
		return Result[T]{Value: value, Query: query, Attempts: i + 1}, nil
	}

	return Result[T]{}, errors.Join(append([]error{fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)}, errs...)...)
}
