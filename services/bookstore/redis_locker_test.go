package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	locker, err := NewRedisLocker(mr.Addr(), "", "", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })
	return locker, mr
}

func TestNewRedisLocker_Validation(t *testing.T) {
	_, err := NewRedisLocker("  ", "", "", time.Second)
	assert.Error(t, err)

	_, err = NewRedisLocker("localhost:6379", "", "", 0)
	assert.Error(t, err)
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	// Arrange
	locker, mr := newTestRedisLocker(t, 10*time.Second)
	ctx := context.Background()

	// Act
	unlock, err := locker.Lock(ctx, "alice")

	// Assert
	require.NoError(t, err)
	assert.True(t, mr.Exists("bookstore:cart-lock:alice"))

	unlock()
	assert.False(t, mr.Exists("bookstore:cart-lock:alice"))
}

func TestRedisLocker_BlocksUntilReleased(t *testing.T) {
	// Arrange
	locker, _ := newTestRedisLocker(t, 10*time.Second)
	ctx := context.Background()
	unlock, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	// Act
	_, err = locker.Lock(waitCtx, "alice")

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	second, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)
	second()
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	// Arrange
	locker, mr := newTestRedisLocker(t, time.Second)
	ctx := context.Background()
	unlock, err := locker.Lock(ctx, "alice")
	require.NoError(t, err)

	// The lock expires and another instance takes it over.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("bookstore:cart-lock:alice", "other-instance"))

	// Act
	unlock()

	// Assert
	value, err := mr.Get("bookstore:cart-lock:alice")
	require.NoError(t, err)
	assert.Equal(t, "other-instance", value)
}

func TestRedisLocker_ServesCartUseCase(t *testing.T) {
	// Arrange
	ctx := context.Background()
	locker, _ := newTestRedisLocker(t, 10*time.Second)
	store := NewMemoryStore()
	uc := newTestCartUseCase(t, store, store.Catalog(), store.Orders())
	uc.locker = locker
	book := seedBook(t, store, "Dune", "10.00", 2)

	// Act
	_, err := uc.AddToCart(ctx, "alice", book.ID, 2)
	require.NoError(t, err)
	result, err := uc.Checkout(ctx, "alice", validPayment)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, CheckoutCommitted, result.State)
	assert.Equal(t, 0, getBook(t, store, book.ID).CopiesInStock)
}
