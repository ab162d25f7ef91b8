package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"contentgate/internal/domain/quality"
	"contentgate/internal/infrastructure/scheduler"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

type stubService struct {
	submitted approval.SubmitInput
	advanced  approval.AdvanceInput
	feedback  approval.FeedbackInput
	err       error
}

func (s *stubService) SubmitDraft(_ context.Context, input approval.SubmitInput) (approval.SubmitResult, error) {
	s.submitted = input
	if s.err != nil {
		return approval.SubmitResult{}, s.err
	}
	return approval.SubmitResult{Item: ports.ContentItem{ContentID: "c-1", State: quality.StateScheduled}}, nil
}

func (s *stubService) EvaluateDraft(context.Context, approval.EvaluateInput) (approval.Evaluation, error) {
	return approval.Evaluation{Decision: quality.Decision{Value: quality.DecisionManualReview}}, s.err
}

func (s *stubService) ListContent(_ context.Context, filter ports.ContentFilter) ([]ports.ContentItem, error) {
	out := make([]ports.ContentItem, 0, len(filter.States))
	for _, state := range filter.States {
		out = append(out, ports.ContentItem{State: state})
	}
	return out, s.err
}

func (s *stubService) GetContentDetail(_ context.Context, contentID string) (approval.ContentDetail, error) {
	if s.err != nil {
		return approval.ContentDetail{}, s.err
	}
	return approval.ContentDetail{Item: ports.ContentItem{ContentID: contentID}}, nil
}

func (s *stubService) AdvanceWorkflow(_ context.Context, input approval.AdvanceInput) (approval.WorkflowSnapshot, error) {
	s.advanced = input
	if s.err != nil {
		return approval.WorkflowSnapshot{}, s.err
	}
	return approval.WorkflowSnapshot{Item: ports.ContentItem{ContentID: input.ContentID, State: quality.StatePublished}}, nil
}

func (s *stubService) BulkAdvance(_ context.Context, input approval.BulkInput) ([]approval.ItemResult, error) {
	out := make([]approval.ItemResult, 0, len(input.ContentIDs))
	for _, id := range input.ContentIDs {
		out = append(out, approval.ItemResult{ContentID: id, State: quality.StateCancelled})
	}
	return out, s.err
}

func (s *stubService) RecordFeedback(_ context.Context, input approval.FeedbackInput) (approval.FeedbackResult, error) {
	s.feedback = input
	return approval.FeedbackResult{Record: quality.FeedbackRecord{ID: "f-1", ImpactScore: 80}}, s.err
}

func (s *stubService) ListSuggestions(context.Context, ports.SuggestionStatus, int) ([]ports.Suggestion, error) {
	return nil, s.err
}

func (s *stubService) ReviewSuggestion(_ context.Context, input approval.ReviewInput) (ports.Suggestion, error) {
	return ports.Suggestion{SuggestionID: input.SuggestionID, Status: ports.SuggestionApproved}, s.err
}

func (s *stubService) ListRules(context.Context, bool) ([]ports.RuleVersion, error) {
	return nil, s.err
}

func (s *stubService) ActiveEngineConfig(context.Context) (quality.EngineConfig, error) {
	return quality.DefaultEngineConfig(), s.err
}

func (s *stubService) UpdateEngineConfig(context.Context, approval.UpdateEngineConfigInput) (quality.EngineConfig, error) {
	return quality.DefaultEngineConfig(), s.err
}

func (s *stubService) ListMetrics(context.Context, int) ([]quality.PerformanceMetrics, error) {
	return nil, s.err
}

func (s *stubService) SweepStatus(context.Context) (map[string]string, error) {
	return map[string]string{"schedule": "ok"}, s.err
}

type stubSweeps struct {
	triggered []string
	err       error
}

func (s *stubSweeps) Trigger(name string) error {
	s.triggered = append(s.triggered, name)
	return s.err
}

func serve(t *testing.T, h http.Handler, method string, target string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestSubmitDraft(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	h := NewHandler(svc, nil, Options{})

	body := `{"external_ref":"feed:1","draft":{"content_type":"news","title":"Budget","body":"Text"},"submitted_by":"writer","process_now":true}`
	resp := serve(t, h, http.MethodPost, "/content", body, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", resp.Code, http.StatusCreated, resp.Body.String())
	}
	if svc.submitted.ExternalRef != "feed:1" || svc.submitted.Draft.ContentType != quality.ContentTypeNews || !svc.submitted.ProcessNow {
		t.Fatalf("submitted = %+v", svc.submitted)
	}

	var item ports.ContentItem
	if err := json.Unmarshal(resp.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if item.ContentID != "c-1" || item.State != quality.StateScheduled {
		t.Fatalf("item = %+v", item)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	h := NewHandler(&stubService{}, nil, Options{})
	resp := serve(t, h, http.MethodPost, "/feedback", `{"content_id":"c-1","stars":5}`, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusBadRequest)
	}
}

func TestAdvanceTakesActionFromPath(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	h := NewHandler(svc, nil, Options{})

	resp := serve(t, h, http.MethodPost, "/content/c-9/approve", `{"actor":"editor","comment":"fine","expected_version":3}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d; body=%s", resp.Code, resp.Body.String())
	}
	if svc.advanced.ContentID != "c-9" || svc.advanced.Action != quality.WorkflowApprove || svc.advanced.ExpectedVersion != 3 {
		t.Fatalf("advanced = %+v", svc.advanced)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: fmt.Errorf("%w: reason required", quality.ErrValidation), want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: content", quality.ErrNotFound), want: http.StatusNotFound},
		{name: "conflict", err: fmt.Errorf("%w: stale", quality.ErrConcurrencyConflict), want: http.StatusConflict},
		{name: "configuration", err: fmt.Errorf("%w: target", quality.ErrConfiguration), want: http.StatusUnprocessableEntity},
		{name: "internal", err: fmt.Errorf("disk full"), want: http.StatusInternalServerError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler(&stubService{err: testCase.err}, nil, Options{})
			resp := serve(t, h, http.MethodGet, "/content/c-1", "", "")
			if resp.Code != testCase.want {
				t.Fatalf("status = %d, want %d", resp.Code, testCase.want)
			}
			var body errorResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("error body = %q, %v", resp.Body.String(), err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	h := NewHandler(&stubService{}, nil, Options{Token: "secret"})

	if resp := serve(t, h, http.MethodGet, "/healthz", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.Code)
	}
	if resp := serve(t, h, http.MethodGet, "/engine-config", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.Code)
	}
	if resp := serve(t, h, http.MethodGet, "/engine-config", "", "wrong"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d", resp.Code)
	}
	if resp := serve(t, h, http.MethodGet, "/engine-config", "", "secret"); resp.Code != http.StatusOK {
		t.Fatalf("status with token = %d", resp.Code)
	}
}

func TestListContentParsesStates(t *testing.T) {
	t.Parallel()

	h := NewHandler(&stubService{}, nil, Options{})
	resp := serve(t, h, http.MethodGet, "/content?state=scheduled,approved&state=published", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var items []ports.ContentItem
	if err := json.Unmarshal(resp.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 3 || items[2].State != quality.StatePublished {
		t.Fatalf("items = %+v", items)
	}
}

func TestTriggerSweep(t *testing.T) {
	t.Parallel()

	sweeps := &stubSweeps{}
	h := NewHandler(&stubService{}, sweeps, Options{})

	resp := serve(t, h, http.MethodPost, "/sweeps/schedule", "", "")
	if resp.Code != http.StatusOK || len(sweeps.triggered) != 1 || sweeps.triggered[0] != "schedule" {
		t.Fatalf("status = %d, triggered = %v", resp.Code, sweeps.triggered)
	}

	sweeps.err = scheduler.ErrJobRunning
	if resp := serve(t, h, http.MethodPost, "/sweeps/schedule", "", ""); resp.Code != http.StatusConflict {
		t.Fatalf("status while running = %d", resp.Code)
	}

	disabled := NewHandler(&stubService{}, nil, Options{})
	if resp := serve(t, disabled, http.MethodPost, "/sweeps/schedule", "", ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without scheduler = %d", resp.Code)
	}
}

func TestRuleSchemaEndpoint(t *testing.T) {
	t.Parallel()

	h := NewHandler(&stubService{}, nil, Options{})
	resp := serve(t, h, http.MethodGet, "/rules/schema", "", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"rules"`) {
		t.Fatalf("status = %d body = %s", resp.Code, resp.Body.String())
	}
}
