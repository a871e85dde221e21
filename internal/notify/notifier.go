// Package notify delivers operator messages without ever blocking the
// caller: events are formatted, queued and sent by one worker at a
// rate the transport tolerates.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

// Sender is a message transport.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Notifier struct {
	sender  Sender
	log     *logger.Logger
	limiter *rate.Limiter
	queue   chan string
	timeout time.Duration

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
	dropped   atomic.Int64
}

func New(sender Sender, queueSize, perMinute int, log *logger.Logger) *Notifier {
	if queueSize < 1 {
		queueSize = 1
	}
	if perMinute < 1 {
		perMinute = 20
	}
	return &Notifier{
		sender:  sender,
		log:     log.With(zap.String("component", "notify")),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 3),
		queue:   make(chan string, queueSize),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
}

func (n *Notifier) Start() {
	n.startOnce.Do(func() { go n.loop() })
}

// Stop stops accepting messages and waits up to ctx for the queue to drain.
func (n *Notifier) Stop(ctx context.Context) {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.Start()
	select {
	case <-n.done:
	case <-ctx.Done():
		n.log.Warn("notifier stopped with messages pending", zap.Int("pending", len(n.queue)))
	}
}

func (n *Notifier) loop() {
	defer close(n.done)
	for text := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.limiter.Wait(ctx); err == nil {
			if err := n.sender.Send(ctx, text); err != nil {
				n.log.Warn("notification send failed", zap.Error(err))
			}
		}
		cancel()
	}
}

// Notify formats and enqueues an event. When the queue is full the
// message is dropped and counted.
func (n *Notifier) Notify(_ context.Context, kind models.EventKind, payload any) {
	n.enqueue(Format(kind, payload))
}

// Alert receives log entries flagged for the operator.
func (n *Notifier) Alert(level, msg string, fields map[string]any) {
	n.enqueue(FormatAlert(level, msg, fields))
}

func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

func (n *Notifier) enqueue(text string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.queue <- text:
	default:
		n.dropped.Add(1)
	}
}
