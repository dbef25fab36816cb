package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithTimeout_DeadlineBecomesStoreTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return fmt.Errorf("query: %w", ctx.Err())
	})
	assert.ErrorIs(t, err, ErrStoreTimeout)
	assert.Equal(t, CodeStoreTimeout, CodeOf(err))
}

func TestWithTimeout_PassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	err := WithTimeout(context.Background(), time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, WithTimeout(context.Background(), 0, func(context.Context) error { return nil }))
}

func TestWithTimeout_CallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, CodeStoreTimeout, CodeOf(err))
}
