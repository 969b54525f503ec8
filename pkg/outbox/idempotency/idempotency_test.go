package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hb:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "notification-worker", "7b1c")
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, "hb:idempotency:evt:processed:notification-worker:7b1c", store.lastKey)
	require.Equal(t, 24*time.Hour, store.lastTTL)
}

func TestCheckAndMarkProcessed_AlreadyProcessed(t *testing.T) {
	manager, err := NewManager(&fakeStore{setNXResult: false}, time.Hour)
	require.NoError(t, err)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "notification-worker", "7b1c")
	require.NoError(t, err)
	require.True(t, already)
}

func TestCheckAndMarkProcessed_Errors(t *testing.T) {
	manager, err := NewManager(&fakeStore{setNXError: errors.New("boom")}, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "notification-worker", "7b1c")
	require.Error(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "notification-worker", "  ")
	require.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "", "7b1c")
	require.Error(t, err)
}

func TestDeleteProcessed(t *testing.T) {
	store := &fakeStore{}
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	require.NoError(t, manager.Delete(context.Background(), "notification-worker", "7b1c"))
	require.Equal(t, "hb:idempotency:evt:processed:notification-worker:7b1c", store.lastDeleted)
}
