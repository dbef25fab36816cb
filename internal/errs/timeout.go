// README: Bounded store calls.
package errs

import (
	"context"
	"errors"
	"time"
)

var ErrStoreTimeout = New(CodeStoreTimeout, "store timeout")

// WithTimeout runs fn under a deadline of d. When the deadline (and not the
// caller's own cancellation) ends the call, the result is ErrStoreTimeout.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrStoreTimeout
	}
	return err
}
