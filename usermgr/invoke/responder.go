package invoke

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultQueueGroup load-balances requests across executor processes.
const DefaultQueueGroup = "usermgr-workers"

// Responder serves a Dispatcher on a NATS subject.
type Responder struct {
	nc         *nats.Conn
	dispatcher *Dispatcher
	subject    string
	queue      string
	timeout    time.Duration

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewResponder creates a responder. An empty queue uses DefaultQueueGroup;
// timeout bounds each request and is unlimited when zero.
func NewResponder(nc *nats.Conn, d *Dispatcher, subject, queue string, timeout time.Duration) *Responder {
	if queue == "" {
		queue = DefaultQueueGroup
	}
	return &Responder{nc: nc, dispatcher: d, subject: subject, queue: queue, timeout: timeout}
}

// Start subscribes to the subject. Requests run under ctx.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return nil
	}

	sub, err := r.nc.QueueSubscribe(r.subject, r.queue, func(msg *nats.Msg) {
		r.handle(ctx, msg)
	})
	if err != nil {
		slog.Error("Failed to subscribe to invoke subject", "subject", r.subject, "err", err)
		return err
	}
	r.sub = sub

	slog.Info("Listening for invoke requests", "subject", r.subject, "queue", r.queue)
	return nil
}

func (r *Responder) handle(ctx context.Context, msg *nats.Msg) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.dispatcher.Handle(ctx, msg.Data)
	if err != nil {
		slog.Error("Failed to encode invoke response", "err", err)
		out = []byte(`{"error":{"code":"InternalError","message":"failed to encode response"}}`)
	}

	if err := msg.Respond(out); err != nil {
		slog.Error("Failed to respond to NATS request", "err", err)
	}
}

// Stop drains the subscription so in-flight requests complete.
func (r *Responder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub == nil {
		return nil
	}
	err := r.sub.Drain()
	r.sub = nil
	return err
}
