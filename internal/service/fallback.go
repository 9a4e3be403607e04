package service

import (
	"context"
	"errors"

	"earnings-service/internal/apperr"
)

// Path names the write path that produced a ledger mutation.
type Path string

const (
	PathAtomic   Path = "atomic"
	PathFallback Path = "fallback"
)

// Attempt is one try at a write.
type Attempt[T any] func(ctx context.Context) (T, error)

// TryThenFallback runs primary once and, if it fails, fallback once. A
// duplicate from primary means the write already happened and is returned
// without running fallback; so is a cancelled context. When both fail the
// errors are joined.
func TryThenFallback[T any](ctx context.Context, primary, fallback Attempt[T]) (T, Path, error) {
	v, err := primary(ctx)
	if err == nil {
		return v, PathAtomic, nil
	}
	if apperr.Is(err, apperr.KindDuplicate) || ctx.Err() != nil {
		return v, PathAtomic, err
	}

	fv, ferr := fallback(ctx)
	if ferr != nil {
		var zero T
		return zero, PathFallback, errors.Join(err, ferr)
	}
	return fv, PathFallback, nil
}
