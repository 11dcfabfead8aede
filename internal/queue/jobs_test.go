package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mindstash/internal/model"
)

type ctxWriter struct {
	mu      sync.Mutex
	written []*model.Notification
}

func (w *ctxWriter) InsertNotification(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, n)
	return nil
}

func unreachableClient(t *testing.T) *asynq.Client {
	t.Helper()
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDispatcherFallsBackWhenBrokerIsDown(t *testing.T) {
	w := &ctxWriter{}
	d := NewDispatcher(unreachableClient(t), w)

	related := "mat-1"
	d.Notify(context.Background(), "alice", "Your report was reviewed.", &related)

	require.Len(t, w.written, 1)
	n := w.written[0]
	assert.Equal(t, "alice", n.UserID)
	assert.Equal(t, &related, n.RelatedMaterialID)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Seen)
}

func TestDispatcherFallbackOutlivesCallerContext(t *testing.T) {
	w := &ctxWriter{}
	d := NewDispatcher(unreachableClient(t), w)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, "bob", "You have been banned.", nil)

	require.Len(t, w.written, 1)
	assert.Equal(t, "bob", w.written[0].UserID)
}

func TestDispatcherWithoutFallbackDrops(t *testing.T) {
	d := NewDispatcher(unreachableClient(t), nil)
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), "carol", "hello", nil)
	})
}
