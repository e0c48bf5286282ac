package repo

import (
	"context"
	"errors"
)

// ErrConflict is returned by versioned saves when the row changed since it
// was read.
var ErrConflict = errors.New("version conflict")

// CompareAndSwap loads a value, applies mutate and saves it. When save reports
// ErrConflict the value is reloaded and the mutation re-applied, at most
// retries more times; a conflict after that is returned to the caller.
// Errors from load or mutate abort immediately.
func CompareAndSwap[T any](
	ctx context.Context,
	retries int,
	load func(context.Context) (*T, error),
	mutate func(*T) error,
	save func(context.Context, *T) error,
) (*T, error) {
	for attempt := 0; ; attempt++ {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := mutate(v); err != nil {
			return v, err
		}
		err = save(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= retries {
			return nil, err
		}
	}
}
