package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_booking/internal/metrics"
)

// Notifier is an outbound channel for booking notifications
type Notifier interface {
	Name() string
	SendBookingConfirmation(ctx context.Context, e Event) error
	SendBookingCancellation(ctx context.Context, e Event) error
	Send(ctx context.Context, e Event) error
}

// Dispatcher queues events in memory and hands them to notifiers from worker goroutines.
// Publish never blocks the caller.
type Dispatcher struct {
	queue        chan Event
	notifiers    []Notifier
	logger       *zap.Logger
	sendTimeout  time.Duration
	now          func() time.Time
	mu           sync.RWMutex
	closed       bool
	wg           sync.WaitGroup
	startOnce    sync.Once
	shutdownOnce sync.Once
}

// NewDispatcher creates a dispatcher with a bounded queue
func NewDispatcher(logger *zap.Logger, buffer int, notifiers ...Notifier) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		queue:       make(chan Event, buffer),
		notifiers:   notifiers,
		logger:      logger,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

// Start launches the delivery workers
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	d.startOnce.Do(func() {
		if workers <= 0 {
			workers = 1
		}
		d.logger.Info("Starting notification dispatcher",
			zap.Int("workers", workers),
			zap.Int("notifiers", len(d.notifiers)),
		)
		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.run(ctx)
		}
	})
}

// Publish enqueues the event. A full queue drops the event.
func (d *Dispatcher) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping notification", zap.String("type", string(e.Type)))
		return
	}

	select {
	case d.queue <- e:
	default:
		metrics.IncNotification("queue", "dropped")
		d.logger.Warn("Notification queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.Int64("booking_id", e.BookingID),
		)
	}
}

// Close stops accepting events and waits until queued ones are delivered
func (d *Dispatcher) Close() {
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
		d.logger.Info("Notification dispatcher stopped")
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for e := range d.queue {
		d.deliver(ctx, e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
		err := route(sendCtx, n, e)
		cancel()

		if err != nil {
			metrics.IncNotification(n.Name(), "failed")
			d.logger.Error("Failed to deliver notification",
				zap.String("notifier", n.Name()),
				zap.String("type", string(e.Type)),
				zap.Int64("booking_id", e.BookingID),
				zap.Int64("appeal_id", e.AppealID),
				zap.Error(err),
			)
			continue
		}
		metrics.IncNotification(n.Name(), "sent")
	}
}

func route(ctx context.Context, n Notifier, e Event) error {
	switch e.Type {
	case EventBookingRequested, EventBookingConfirmed, EventBookingRescheduled:
		return n.SendBookingConfirmation(ctx, e)
	case EventBookingCancelled, EventBookingRefunded:
		return n.SendBookingCancellation(ctx, e)
	default:
		return n.Send(ctx, e)
	}
}
