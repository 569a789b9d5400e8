package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the subject prefix entries are published under.
const DefaultSubject = "adminrag.audit"

// flushTimeout bounds Publish when ctx has no deadline.
const flushTimeout = 5 * time.Second

// NATSPublisher publishes each entry as JSON on <subject>.<run_id>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher on an existing connection.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("adminrag"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}

// Subject returns the subject an entry for runID is published on.
func (p *NATSPublisher) Subject(runID string) string {
	return p.subject + "." + runID
}

// Publish implements Publisher and waits for the server to acknowledge the
// flush or ctx to end.
func (p *NATSPublisher) Publish(ctx context.Context, e Entry) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	subject := p.Subject(e.RunID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w", subject, err)
	}
	return nil
}
