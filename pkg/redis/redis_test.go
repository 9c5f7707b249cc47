package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshwire/bridge/pkg/redis"
)

func TestOpenRejectsBadURLs(t *testing.T) {
	t.Parallel()

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()

		client, err := redis.Open(t.Context(), "")
		assert.Nil(t, client)
		require.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		t.Parallel()

		client, err := redis.Open(t.Context(), "http://localhost:6379")
		assert.Nil(t, client)
		require.ErrorIs(t, err, redis.ErrFailedToParseURL)
	})

	t.Run("unparseable database", func(t *testing.T) {
		t.Parallel()

		client, err := redis.Open(t.Context(), "redis://localhost:6379/notanint")
		assert.Nil(t, client)
		require.ErrorIs(t, err, redis.ErrFailedToParseURL)
	})
}

func TestOpenRetriesThenFails(t *testing.T) {
	t.Parallel()

	// Port 1 refuses immediately; one attempt with a short backoff keeps
	// the test fast.
	client, err := redis.Open(t.Context(), "redis://127.0.0.1:1",
		redis.WithRetry(1, time.Millisecond),
		redis.WithDialTimeout(100*time.Millisecond),
	)
	assert.Nil(t, client)
	require.ErrorIs(t, err, redis.ErrConnectionFailed)
}

func TestOpenHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := redis.Open(ctx, "redis://127.0.0.1:1",
		redis.WithRetry(3, time.Minute),
		redis.WithDialTimeout(100*time.Millisecond),
	)
	assert.Nil(t, client)
	require.ErrorIs(t, err, redis.ErrConnectionFailed)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHealthcheckNilClient(t *testing.T) {
	t.Parallel()

	check := redis.Healthcheck(nil)
	require.ErrorIs(t, check(t.Context()), redis.ErrHealthcheckFailed)
}
