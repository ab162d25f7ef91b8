package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"contentgate/internal/domain/quality"
	"contentgate/internal/ports"
)

func sampleRequest() ports.ApprovalRequest {
	return ports.ApprovalRequest{
		ContentID:   "c-1",
		Title:       "Budget <vote>",
		ContentType: quality.ContentTypeNews,
		Step:        1,
		TotalSteps:  2,
		Approver:    "chief.editor",
		Decision:    quality.DecisionManualReview,
		Score:       72.5,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNtfyPostsMessage(t *testing.T) {
	var gotPath, gotTitle, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewNtfy(server.URL+"/", "reviews", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewNtfy() error = %v", err)
	}
	defer n.Close()

	if err := n.NotifyApprovalRequested(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("NotifyApprovalRequested() error = %v", err)
	}
	if gotPath != "/reviews" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotTitle != "Review requested (step 1/2)" {
		t.Fatalf("Title header = %q", gotTitle)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
	if !strings.Contains(gotBody, "approver: chief.editor") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestNtfyReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	n, err := NewNtfy(server.URL, "reviews", "", time.Second)
	if err != nil {
		t.Fatalf("NewNtfy() error = %v", err)
	}
	err = n.NotifyApprovalRequested(context.Background(), sampleRequest())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("NotifyApprovalRequested() error = %v", err)
	}
}

func TestNewNtfyRequiresTopic(t *testing.T) {
	if _, err := NewNtfy("https://ntfy.sh", "", "", 0); err == nil {
		t.Fatalf("NewNtfy() expected error for empty topic")
	}
}

type fakeNATS struct {
	subject string
	data    []byte
	closed  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func (f *fakeNATS) FlushWithContext(context.Context) error { return nil }

func (f *fakeNATS) Close() { f.closed = true }

func TestNATSPublishesPerApproverSubject(t *testing.T) {
	conn := &fakeNATS{}
	n := &NATS{conn: conn, subject: "contentgate.approvals"}

	if err := n.NotifyApprovalRequested(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("NotifyApprovalRequested() error = %v", err)
	}
	if conn.subject != "contentgate.approvals.chief_editor" {
		t.Fatalf("subject = %q", conn.subject)
	}

	var got ports.ApprovalRequest
	if err := json.Unmarshal(conn.data, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ContentID != "c-1" || got.Step != 1 {
		t.Fatalf("payload = %+v", got)
	}

	if err := n.Close(); err != nil || !conn.closed {
		t.Fatalf("Close() error = %v closed=%v", err, conn.closed)
	}
}

type fakeTelegram struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, f.err
}

func TestTelegramSendsEscapedHTML(t *testing.T) {
	api := &fakeTelegram{}
	n := &Telegram{api: api, chatID: 42}

	if err := n.NotifyApprovalRequested(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("NotifyApprovalRequested() error = %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent = %d", len(api.sent))
	}
	msg := api.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("message = %+v", msg)
	}
	if !strings.Contains(msg.Text, "Budget &lt;vote&gt;") {
		t.Fatalf("text = %q", msg.Text)
	}

	api.err = errors.New("blocked")
	if err := n.NotifyApprovalRequested(context.Background(), sampleRequest()); err == nil {
		t.Fatalf("NotifyApprovalRequested() expected error")
	}
}

func TestNoopNotifier(t *testing.T) {
	var n ports.Notifier = Noop{}
	if err := n.NotifyApprovalRequested(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("NotifyApprovalRequested() error = %v", err)
	}
	if n.Name() != "none" {
		t.Fatalf("Name() = %q", n.Name())
	}
}
