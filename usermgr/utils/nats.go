package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNATS connects to a NATS server, authenticating with token when set.
func ConnectNATS(host, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("usermgr"),
		nats.MaxReconnects(-1),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("NATS connect failed: %w", err)
	}
	return nc, nil
}

// NATSRequest sends payload to subject and waits for the reply until ctx is
// done. A context without a deadline gets timeout applied.
func NATSRequest(ctx context.Context, conn *nats.Conn, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("NATS request failed: %w", err)
	}
	return msg.Data, nil
}
