package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkyc/internal/audit"
	"simkyc/internal/audit/store"
	"simkyc/pkg/requestcontext"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"

func clientContext() context.Context {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC))
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	return requestcontext.WithClientMetadata(ctx, "10.0.0.7", iphoneUA)
}

func TestPublisher_SyncMode(t *testing.T) {
	s := store.NewInMemory()
	pub, err := audit.NewPublisher(s)
	require.NoError(t, err)
	defer pub.Close()

	pub.Record(clientContext(), audit.ActionComplianceStarted, 3, map[string]any{"step": "terms"})

	events, err := pub.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, audit.ActionComplianceStarted, ev.Action)
	assert.Equal(t, "10.0.0.7", ev.IP)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Contains(t, ev.Browser, "Safari")
	assert.Contains(t, ev.OS, "iPhone OS")
	assert.True(t, ev.IsMobile)
	assert.Equal(t, time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC), ev.CreatedAt)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	s := store.NewInMemory()
	pub, err := audit.NewPublisher(s, audit.WithAsyncBuffer(100))
	require.NoError(t, err)

	for range 10 {
		require.NoError(t, pub.Emit(clientContext(), audit.Event{Action: audit.ActionESIMStarted}))
	}
	pub.Close()

	assert.Len(t, s.All(), 10)
	assert.Error(t, pub.Emit(clientContext(), audit.Event{Action: audit.ActionESIMStarted}), "emit after close is rejected")
	pub.Close()
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }
func (failingStore) ListByRequest(context.Context, int64) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_RecordSwallowsStoreErrors(t *testing.T) {
	pub, err := audit.NewPublisher(failingStore{})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		pub.Record(clientContext(), audit.ActionESIMStarted, 1, nil)
	})
}

func TestNewPublisherRequiresStore(t *testing.T) {
	_, err := audit.NewPublisher(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit store is required")
}

func TestParseUserAgent(t *testing.T) {
	assert.Equal(t, audit.Client{}, audit.ParseUserAgent(""))
	desktop := audit.ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Equal(t, "Chrome 120.0.0.0", desktop.Browser)
	assert.False(t, desktop.IsMobile)
}
