package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contentgate/internal/ports"
)

// Ntfy posts plain-text approval requests to an ntfy topic.
type Ntfy struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ ports.Notifier = (*Ntfy)(nil)

func NewNtfy(baseURL string, topic string, token string, timeout time.Duration) (*Ntfy, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if baseURL == "" || topic == "" {
		return nil, fmt.Errorf("ntfy url and topic are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint: baseURL + "/" + topic,
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) NotifyApprovalRequested(ctx context.Context, req ports.ApprovalRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(approvalMessage(req)))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Content-Type", "text/plain; charset=utf-8")
	httpReq.Header.Set("Title", approvalTitle(req))
	httpReq.Header.Set("Tags", strings.Join([]string{"contentgate", string(req.ContentType), "review"}, ","))
	if req.Expedited {
		httpReq.Header.Set("Priority", "high")
	}
	if n.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (n *Ntfy) Close() error {
	n.client.CloseIdleConnections()
	return nil
}
