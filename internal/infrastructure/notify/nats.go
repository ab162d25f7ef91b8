package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"contentgate/internal/ports"
)

type natsPublisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATS publishes approval requests as JSON on a subject suffixed with the
// approver name.
type NATS struct {
	conn    natsPublisher
	subject string
}

var _ ports.Notifier = (*NATS)(nil)

func NewNATS(url string, subject string) (*NATS, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if strings.TrimSpace(url) == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("contentgate"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) NotifyApprovalRequested(ctx context.Context, req ports.ApprovalRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal approval request: %w", err)
	}
	if err := n.conn.Publish(n.subjectFor(req.Approver), data); err != nil {
		return fmt.Errorf("publish approval request: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

func (n *NATS) subjectFor(approver string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, strings.TrimSpace(approver))
	if token == "" {
		return n.subject
	}
	return n.subject + "." + token
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
