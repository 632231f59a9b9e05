package remote

import (
	"context"
	"sync"
	"time"

	"github.com/mulgadc/usermgr/usermgr/config"
	"github.com/mulgadc/usermgr/usermgr/utils"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the request subject served by `usermgr serve nats`.
const DefaultSubject = "usermgr.invoke"

// NATSInvoker sends requests to a responder over NATS request/reply.
type NATSInvoker struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	owned   bool
	once    sync.Once
}

// DialNATS connects to the configured server. The connection is closed with
// the invoker.
func DialNATS(cfg config.NATSConfig) (*NATSInvoker, error) {
	nc, err := utils.ConnectNATS(cfg.Host, cfg.Token)
	if err != nil {
		return nil, err
	}
	inv := NewNATSInvoker(nc, cfg.Subject, cfg.Timeout)
	inv.owned = true
	return inv, nil
}

// NewNATSInvoker wraps an existing connection, which the caller keeps
// ownership of.
func NewNATSInvoker(nc *nats.Conn, subject string, timeout time.Duration) *NATSInvoker {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NATSInvoker{nc: nc, subject: subject, timeout: timeout}
}

func (n *NATSInvoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return utils.NATSRequest(ctx, n.nc, n.subject, payload, n.timeout)
}

func (n *NATSInvoker) Close() error {
	n.once.Do(func() {
		if n.owned {
			n.nc.Close()
		}
	})
	return nil
}
