package processing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProcessorDeliversEverythingBeforeClose(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := New(store, 3)
	p.Start()

	for i := 0; i < 100; i++ {
		p.Notify(ctx, "u1", fmt.Sprintf("message %d", i), nil)
	}
	p.Close()

	list, err := store.ListNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 100)
}

func TestProcessorDeliversInlineAfterClose(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := New(store, 1)
	p.Start()
	p.Close()
	p.Close()

	p.Notify(ctx, "u1", "late", nil)

	list, err := store.ListNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type brokenWriter struct{ calls atomic.Int32 }

func (b *brokenWriter) InsertNotification(context.Context, *model.Notification) error {
	b.calls.Add(1)
	return errors.New("insert failed")
}

func TestProcessorSwallowsWriteFailures(t *testing.T) {
	w := &brokenWriter{}
	p := New(w, 2)
	p.Start()
	for i := 0; i < 5; i++ {
		p.Notify(context.Background(), "u1", "x", nil)
	}
	p.Close()
	assert.EqualValues(t, 5, w.calls.Load())
}
