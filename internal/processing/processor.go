// Package processing runs notification delivery on a small goroutine pool so
// moderation requests return without waiting on the notification write.
// Goroutines + channels power the implementation.
package processing

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/notify"
)

const deliverTimeout = 10 * time.Second

// Job is one pending notification. The record already carries its id, so a
// retried write is idempotent.
type Job struct {
	Notification *model.Notification
}

// Processor consumes Jobs and writes them to the datastore. It implements
// notify.Dispatcher.
type Processor struct {
	writer  notify.Writer
	queue   chan Job
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(writer notify.Writer, workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		writer:  writer,
		queue:   make(chan Job, workers*16),
		workers: workers,
	}
}

// Start launches worker goroutines. They exit once Close has been called and
// the queue is drained.
func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Notify queues a notification. When the buffer is full, or the pool is
// closed, the write happens on the caller's goroutine instead of being
// dropped.
func (p *Processor) Notify(ctx context.Context, userID, message string, relatedMaterialID *string) {
	job := Job{Notification: notify.New(userID, message, relatedMaterialID)}

	p.mu.RLock()
	if !p.closed {
		select {
		case p.queue <- job:
			p.mu.RUnlock()
			return
		default:
			log.WithField("user_id", userID).Warn("notification queue full, delivering inline")
		}
	}
	p.mu.RUnlock()
	p.process(context.WithoutCancel(ctx), job)
}

// Close stops accepting jobs and waits for queued ones to be written.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.process(context.Background(), job)
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := notify.Deliver(ctx, p.writer, job.Notification); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":         job.Notification.UserID,
			"notification_id": job.Notification.ID,
		}).Warn("notification delivery failed")
	}
}
