package approval

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"contentgate/internal/bootstrap/config"
	"contentgate/internal/bootstrap/database"
	"contentgate/internal/domain/quality"
	"contentgate/internal/infrastructure/cache"
	"contentgate/internal/infrastructure/persistence/sqlite/model"
	"contentgate/internal/infrastructure/persistence/sqlite/repository"
	"contentgate/internal/infrastructure/persistence/sqlite/uow"
	"contentgate/internal/ports"
)

const testProfile = `
version = 1

[defaults]
approvers = ["editor"]

[content_types.opinion]
approval_steps = 2
approvers = ["editor", "chief_editor"]
require_human_approval = true

[content_types.news]
expedited_approver = "duty_editor"
`

type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingNotifier struct {
	requests []ports.ApprovalRequest
	fail     bool
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) NotifyApprovalRequested(_ context.Context, req ports.ApprovalRequest) error {
	n.requests = append(n.requests, req)
	if n.fail {
		return errors.New("delivery failed")
	}
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type testEnv struct {
	svc      *Service
	store    *repository.Store
	notifier *recordingNotifier
	clock    *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "state", "contentgate.sqlite"),
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	profile, err := ParseWorkflowProfile([]byte(testProfile))
	if err != nil {
		t.Fatalf("ParseWorkflowProfile() error = %v", err)
	}

	store := repository.NewStore(db)
	notifier := &recordingNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewService(store, uow.NewUnitOfWork(db), cache.NewSQLiteCache(db), notifier, profile, quality.DefaultEngineConfig(), nil)
	svc.now = func() time.Time { return clock.now }

	return &testEnv{svc: svc, store: store, notifier: notifier, clock: clock}
}

func longBody() string {
	para := strings.Repeat("Council members reviewed the transit budget line by line and published the figures. ", 4)
	return para + "\n\n" + para
}

// trustedDraft scores about 97: three credible sources and a well formed body.
func trustedDraft(contentType quality.ContentType) quality.Draft {
	return quality.Draft{
		ContentType: contentType,
		Title:       "City council approves transit budget",
		Body:        longBody(),
		Sources: []quality.Source{
			{Name: "wire", Credibility: 85},
			{Name: "daily", Credibility: 90},
			{Name: "record", Credibility: 88},
		},
		Entities: []quality.Entity{
			{Text: "City Council", Confidence: 0.98},
			{Text: "Transit Authority", Confidence: 0.95},
			{Text: "Mayor", Confidence: 0.99},
		},
	}
}

// conditionalDraft scores about 85 because only one source backs it.
func conditionalDraft(contentType quality.ContentType) quality.Draft {
	draft := trustedDraft(contentType)
	draft.Sources = draft.Sources[:1]
	return draft
}

// weakDraft scores 45 with default inputs and 37.5 with zero sentiment.
func weakDraft(contentType quality.ContentType) quality.Draft {
	return quality.Draft{
		ContentType: contentType,
		Title:       "Short",
		Body:        "A quick note.",
	}
}

func floatPtr(v float64) *float64 { return &v }

func (e *testEnv) submit(t *testing.T, draft quality.Draft, inputs quality.SignalInputs) ports.ContentItem {
	t.Helper()

	result, err := e.svc.SubmitDraft(context.Background(), SubmitInput{
		Draft:       draft,
		Inputs:      inputs,
		SubmittedBy: "writer",
	})
	if err != nil {
		t.Fatalf("SubmitDraft() error = %v", err)
	}
	return result.Item
}

func (e *testEnv) sweep(t *testing.T) SweepReport {
	t.Helper()

	report, err := e.svc.ProcessDueContent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ProcessDueContent() error = %v", err)
	}
	if report.Failed != 0 {
		t.Fatalf("ProcessDueContent() failed items = %+v", report.Items)
	}
	return report
}

func (e *testEnv) content(t *testing.T, contentID string) ports.ContentItem {
	t.Helper()

	item, err := e.store.GetContent(context.Background(), contentID)
	if err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	return item
}

func TestTrustedNewsIsPublishedBySweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	if item.State != quality.StateScheduled {
		t.Fatalf("submitted state = %s, want scheduled", item.State)
	}

	report := env.sweep(t)
	if report.Advanced != 1 {
		t.Fatalf("report.Advanced = %d, want 1", report.Advanced)
	}

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePublished || got.FinalizedBy != quality.SystemAgent || got.PublishedAt == nil {
		t.Fatalf("content after sweep = %+v", got)
	}
	if len(env.notifier.requests) != 0 {
		t.Fatalf("notifications = %d, want 0", len(env.notifier.requests))
	}

	draft, err := env.store.GetDraft(ctx, got.CurrentDraftID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if draft.Evaluation == nil || draft.Evaluation.Decision.Value != quality.DecisionAutoApprove {
		t.Fatalf("stored evaluation = %+v", draft.Evaluation)
	}
	if draft.Evaluation.Decision.ConfigVersion != 1 {
		t.Fatalf("decision config version = %d, want 1", draft.Evaluation.Decision.ConfigVersion)
	}

	status, found, err := env.svc.cache.Get(ctx, cacheContentStatusPrefix+item.ContentID)
	if err != nil || !found || status != string(quality.StatePublished) {
		t.Fatalf("cached status = %q, %v, %v", status, found, err)
	}

	sweeps, err := env.svc.SweepStatus(ctx)
	if err != nil {
		t.Fatalf("SweepStatus() error = %v", err)
	}
	if !strings.Contains(sweeps[sweepSchedule], "advanced=1") {
		t.Fatalf("SweepStatus() = %v", sweeps)
	}

	if second := env.sweep(t); second.Scanned != 0 {
		t.Fatalf("second sweep scanned %d items, want 0", second.Scanned)
	}
}

func TestLowQualityDraftIsAutoRejected(t *testing.T) {
	env := newTestEnv(t)

	item := env.submit(t, weakDraft(quality.ContentTypeNews), quality.SignalInputs{SentimentConsistency: floatPtr(0)})
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StateRejected {
		t.Fatalf("state = %s, want rejected", got.State)
	}
	if !strings.Contains(got.StateReason, "auto-reject") {
		t.Fatalf("state reason = %q", got.StateReason)
	}
	if got.FinalizedBy != quality.SystemAgent {
		t.Fatalf("finalized by = %q", got.FinalizedBy)
	}
}

func TestFutureDraftWaitsForPublishTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.SubmitDraft(ctx, SubmitInput{
		Draft:       trustedDraft(quality.ContentTypeGuide),
		PublishAt:   env.clock.now.Add(time.Hour),
		SubmittedBy: "writer",
		ProcessNow:  true,
	})
	if err != nil {
		t.Fatalf("SubmitDraft() error = %v", err)
	}
	if result.Item.State != quality.StateScheduled {
		t.Fatalf("state = %s, want scheduled", result.Item.State)
	}
	if report := env.sweep(t); report.Scanned != 0 {
		t.Fatalf("sweep before publish time scanned %d", report.Scanned)
	}

	env.clock.advance(time.Hour)
	env.sweep(t)
	if got := env.content(t, result.Item.ContentID); got.State != quality.StatePublished {
		t.Fatalf("state = %s, want published", got.State)
	}
}

func TestSubmitDraftValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SubmitDraft(ctx, SubmitInput{Draft: trustedDraft("podcast"), SubmittedBy: "writer"})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("unknown content type error = %v", err)
	}
	_, err = env.svc.SubmitDraft(ctx, SubmitInput{Draft: trustedDraft(quality.ContentTypeNews)})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("missing submitter error = %v", err)
	}

	input := SubmitInput{ExternalRef: "feed:1", Draft: trustedDraft(quality.ContentTypeNews), SubmittedBy: "writer"}
	if _, err := env.svc.SubmitDraft(ctx, input); err != nil {
		t.Fatalf("SubmitDraft() error = %v", err)
	}
	_, err = env.svc.SubmitDraft(ctx, input)
	if !errors.Is(err, ports.ErrDuplicate) || !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("duplicate external ref error = %v", err)
	}
}

func TestMultiStepApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeOpinion), quality.SignalInputs{})
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePendingReview || got.CurrentStep != 1 || got.ReviewRound != 1 {
		t.Fatalf("content after sweep = %+v", got)
	}
	if len(env.notifier.requests) != 1 || env.notifier.requests[0].Approver != "editor" || env.notifier.requests[0].TotalSteps != 2 {
		t.Fatalf("notifications = %+v", env.notifier.requests)
	}

	_, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "chief_editor"})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("approve by wrong approver error = %v", err)
	}

	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "editor", Comment: "reads well"})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(step 1) error = %v", err)
	}
	if snapshot.Item.State != quality.StatePendingReview || snapshot.Item.CurrentStep != 2 {
		t.Fatalf("snapshot after step 1 = %+v", snapshot.Item)
	}
	if snapshot.OpenStep == nil || snapshot.OpenStep.Approver != "chief_editor" || snapshot.OpenStep.StepNumber != 2 {
		t.Fatalf("open step = %+v", snapshot.OpenStep)
	}
	if len(env.notifier.requests) != 2 || env.notifier.requests[1].Step != 2 {
		t.Fatalf("notifications = %+v", env.notifier.requests)
	}

	snapshot, err = env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "chief_editor"})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(step 2) error = %v", err)
	}
	if snapshot.Item.State != quality.StatePublished || snapshot.Item.FinalizedBy != "chief_editor" {
		t.Fatalf("snapshot after final step = %+v", snapshot.Item)
	}

	steps, err := env.store.ListSteps(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 || steps[0].Status != quality.StepApproved || steps[1].Status != quality.StepApproved {
		t.Fatalf("steps = %+v", steps)
	}

	_, err = env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowReject, Actor: "editor", Reason: "late"})
	if !errors.Is(err, quality.ErrConcurrencyConflict) {
		t.Fatalf("reject after publish error = %v", err)
	}
}

func TestScheduleKeepsApprovalChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeOpinion), quality.SignalInputs{})
	env.sweep(t)
	publishAt := env.clock.now.Add(time.Hour)

	_, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowSchedule, Actor: "intern", PublishAt: publishAt})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("schedule by non-approver error = %v", err)
	}
	_, err = env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowSchedule, Actor: "editor", PublishAt: publishAt})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("schedule on step 1 of 2 error = %v", err)
	}
	if got := env.content(t, item.ContentID); got.State != quality.StatePendingReview || got.CurrentStep != 1 {
		t.Fatalf("content after refused schedule = %+v", got)
	}

	if _, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "editor"}); err != nil {
		t.Fatalf("AdvanceWorkflow(step 1) error = %v", err)
	}
	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowSchedule, Actor: "chief_editor", PublishAt: publishAt})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(schedule on final step) error = %v", err)
	}
	if snapshot.Item.State != quality.StateScheduled {
		t.Fatalf("snapshot after schedule = %+v", snapshot.Item)
	}

	env.clock.advance(time.Hour)
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePublished || got.FinalizedBy != "chief_editor" {
		t.Fatalf("content after sweep = %+v", got)
	}
	steps, err := env.store.ListSteps(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 || steps[0].DecidedBy != "editor" || steps[1].DecidedBy != "chief_editor" {
		t.Fatalf("steps = %+v", steps)
	}
}

func TestConditionalApprovalUsesExpeditedApprover(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.fail = true

	item := env.submit(t, conditionalDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePendingReview {
		t.Fatalf("state = %s, want pending_review", got.State)
	}
	step, ok, err := env.store.GetOpenStep(context.Background(), item.ContentID)
	if err != nil || !ok {
		t.Fatalf("GetOpenStep() = %v, %v", ok, err)
	}
	if !step.Expedited || step.Approver != "duty_editor" || step.TotalSteps != 1 {
		t.Fatalf("open step = %+v", step)
	}
	if len(env.notifier.requests) != 1 || !env.notifier.requests[0].Expedited {
		t.Fatalf("notifications = %+v", env.notifier.requests)
	}
}

func TestScheduledReviewPublishesWithoutRescoring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	env.sweep(t)

	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{
		ContentID: item.ContentID,
		Action:    quality.WorkflowSchedule,
		Actor:     "editor",
		PublishAt: env.clock.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(schedule) error = %v", err)
	}
	if snapshot.Item.State != quality.StateScheduled || !snapshot.Item.SkipEvaluation {
		t.Fatalf("snapshot after schedule = %+v", snapshot.Item)
	}

	env.clock.advance(2 * time.Hour)
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePublished || got.FinalizedBy != "editor" {
		t.Fatalf("content after sweep = %+v", got)
	}
	drafts, err := env.store.ListDrafts(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("ListDrafts() error = %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(drafts))
	}
}

func TestScheduleWithRescoreEvaluatesAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	env.sweep(t)

	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{
		ContentID: item.ContentID,
		Action:    quality.WorkflowSchedule,
		Actor:     "editor",
		PublishAt: env.clock.now.Add(time.Hour),
		Rescore:   true,
	})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(schedule) error = %v", err)
	}
	if snapshot.Item.SkipEvaluation || snapshot.Item.CurrentDraftID == item.CurrentDraftID {
		t.Fatalf("snapshot after rescore schedule = %+v", snapshot.Item)
	}

	env.clock.advance(time.Hour)
	env.sweep(t)

	got := env.content(t, item.ContentID)
	if got.State != quality.StatePendingReview || got.ReviewRound != 2 {
		t.Fatalf("content after rescore = %+v", got)
	}
}

func TestEditRescoresOpenStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	env.sweep(t)

	edited := trustedDraft("")
	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{
		ContentID: item.ContentID,
		Action:    quality.WorkflowEdit,
		Actor:     "editor",
		Draft:     &edited,
	})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(edit) error = %v", err)
	}
	if snapshot.Item.State != quality.StatePendingReview {
		t.Fatalf("state after edit = %s", snapshot.Item.State)
	}
	if snapshot.Decision == nil || snapshot.Decision.Value != quality.DecisionAutoApprove {
		t.Fatalf("decision after edit = %+v", snapshot.Decision)
	}
	if snapshot.OpenStep == nil || snapshot.OpenStep.DraftID != snapshot.Item.CurrentDraftID {
		t.Fatalf("open step = %+v, current draft %s", snapshot.OpenStep, snapshot.Item.CurrentDraftID)
	}

	draft, err := env.store.GetDraft(ctx, snapshot.Item.CurrentDraftID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if draft.Draft.Version != 2 {
		t.Fatalf("draft version = %d, want 2", draft.Draft.Version)
	}

	news := trustedDraft(quality.ContentTypeNews)
	_, err = env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowEdit, Actor: "editor", Draft: &news})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("edit changing content type error = %v", err)
	}
}

func TestAdvanceWorkflowGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	env.sweep(t)
	current := env.content(t, item.ContentID)

	testCases := []struct {
		name  string
		input AdvanceInput
		want  error
	}{
		{name: "missing actor", input: AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove}, want: quality.ErrValidation},
		{name: "reject without reason", input: AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowReject, Actor: "editor"}, want: quality.ErrValidation},
		{name: "schedule without time", input: AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowSchedule, Actor: "editor"}, want: quality.ErrValidation},
		{name: "unknown action", input: AdvanceInput{ContentID: item.ContentID, Action: "publish", Actor: "editor"}, want: quality.ErrValidation},
		{name: "stale version", input: AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "editor", ExpectedVersion: current.Version - 1}, want: quality.ErrConcurrencyConflict},
		{name: "unknown content", input: AdvanceInput{ContentID: "missing", Action: quality.WorkflowCancel, Actor: "editor"}, want: quality.ErrNotFound},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := env.svc.AdvanceWorkflow(ctx, testCase.input)
			if !errors.Is(err, testCase.want) {
				t.Fatalf("AdvanceWorkflow() error = %v, want %v", err, testCase.want)
			}
		})
	}

	snapshot, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowReject, Actor: "editor", Reason: "off topic", ExpectedVersion: current.Version})
	if err != nil {
		t.Fatalf("AdvanceWorkflow(reject) error = %v", err)
	}
	if snapshot.Item.State != quality.StateRejected || snapshot.Item.StateReason != "off topic" {
		t.Fatalf("snapshot after reject = %+v", snapshot.Item)
	}

	_, err = env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: item.ContentID, Action: quality.WorkflowApprove, Actor: "editor"})
	if !errors.Is(err, quality.ErrConcurrencyConflict) {
		t.Fatalf("approve after reject error = %v", err)
	}
}

func TestBulkAdvanceReportsEachItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	second := env.submit(t, weakDraft(quality.ContentTypeGuide), quality.SignalInputs{})
	env.sweep(t)

	results, err := env.svc.BulkAdvance(ctx, BulkInput{
		ContentIDs: []string{first.ContentID, "missing", second.ContentID},
		Action:     quality.WorkflowCancel,
		Actor:      "editor",
		Reason:     "season over",
	})
	if err != nil {
		t.Fatalf("BulkAdvance() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].State != quality.StateCancelled || results[2].State != quality.StateCancelled {
		t.Fatalf("results = %+v", results)
	}
	if results[1].Error == "" || results[1].ErrorKind != quality.KindNotFound {
		t.Fatalf("missing item result = %+v", results[1])
	}

	steps, err := env.store.ListSteps(ctx, first.ContentID)
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 1 || steps[0].Status != quality.StepRejected {
		t.Fatalf("steps = %+v", steps)
	}
}

func TestBulkApproveReportsConflictForFinishedItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for range 5 {
		ids = append(ids, env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{}).ContentID)
	}
	env.sweep(t)

	if _, err := env.svc.AdvanceWorkflow(ctx, AdvanceInput{ContentID: ids[2], Action: quality.WorkflowCancel, Actor: "editor", Reason: "pulled"}); err != nil {
		t.Fatalf("AdvanceWorkflow(cancel) error = %v", err)
	}

	results, err := env.svc.BulkAdvance(ctx, BulkInput{ContentIDs: ids, Action: quality.WorkflowApprove, Actor: "editor"})
	if err != nil {
		t.Fatalf("BulkAdvance() error = %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("results = %+v", results)
	}
	for i, result := range results {
		if i == 2 {
			if result.ErrorKind != quality.KindConcurrencyConflict || result.State != "" {
				t.Fatalf("finished item result = %+v", result)
			}
			continue
		}
		if result.Error != "" || result.State != quality.StatePublished {
			t.Fatalf("result %d = %+v", i, result)
		}
	}
	if got := env.content(t, ids[2]); got.State != quality.StateCancelled {
		t.Fatalf("cancelled item state = %s", got.State)
	}
}

func TestConfidentFeedbackIsAppliedAutomatically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)

	result, err := env.svc.RecordFeedback(ctx, FeedbackInput{
		ContentID:  item.ContentID,
		ReviewerID: "reviewer-1",
		Type:       quality.FeedbackQualityRating,
		Rating:     1,
		Category:   "fact_check",
	})
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if result.Record.ImpactScore != 100 || !result.Processed {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %+v", result.Adjustments)
	}
	adj := result.Adjustments[0]
	if adj.Status != quality.AdjustmentApplied || adj.Approver != quality.SystemLearningActor || adj.Target != "fact_check_threshold" {
		t.Fatalf("adjustment = %+v", adj)
	}

	cfg, err := env.svc.ActiveEngineConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveEngineConfig() error = %v", err)
	}
	if cfg.Version != 2 || cfg.Ceiling(quality.FactCheck) != 80 {
		t.Fatalf("config = version %d fact_check ceiling %.2f", cfg.Version, cfg.Ceiling(quality.FactCheck))
	}
	latest, err := env.store.LatestEngineConfig(ctx)
	if err != nil {
		t.Fatalf("LatestEngineConfig() error = %v", err)
	}
	if latest.CreatedBy != quality.SystemLearningActor {
		t.Fatalf("config created by %q", latest.CreatedBy)
	}

	adjustments, err := env.svc.RunAdjustmentSweep(ctx, 0)
	if err != nil {
		t.Fatalf("RunAdjustmentSweep() error = %v", err)
	}
	if len(adjustments) != 0 {
		t.Fatalf("sweep reprocessed feedback: %+v", adjustments)
	}
}

func TestUncertainFeedbackBecomesSuggestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)

	result, err := env.svc.RecordFeedback(ctx, FeedbackInput{
		ContentID:       item.ContentID,
		ReviewerID:      "reviewer-1",
		Type:            quality.FeedbackQualityRating,
		Rating:          2,
		Category:        "fact_check",
		DecisionCorrect: true,
	})
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if len(result.Adjustments) != 1 || result.Adjustments[0].Status != quality.AdjustmentProposed {
		t.Fatalf("adjustments = %+v", result.Adjustments)
	}

	pending, err := env.svc.ListSuggestions(ctx, ports.SuggestionPending, 0)
	if err != nil {
		t.Fatalf("ListSuggestions() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending suggestions = %+v", pending)
	}

	_, err = env.svc.ReviewSuggestion(ctx, ReviewInput{SuggestionID: pending[0].SuggestionID, Approve: true})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("review without reviewer error = %v", err)
	}

	reviewed, err := env.svc.ReviewSuggestion(ctx, ReviewInput{SuggestionID: pending[0].SuggestionID, Approve: true, Reviewer: "lead", Note: "agreed"})
	if err != nil {
		t.Fatalf("ReviewSuggestion() error = %v", err)
	}
	if reviewed.Status != ports.SuggestionApproved || reviewed.ReviewedBy != "lead" {
		t.Fatalf("reviewed = %+v", reviewed)
	}

	cfg, err := env.svc.ActiveEngineConfig(ctx)
	if err != nil {
		t.Fatalf("ActiveEngineConfig() error = %v", err)
	}
	if cfg.Version != 2 || cfg.Ceiling(quality.FactCheck) != 80 {
		t.Fatalf("config = version %d fact_check ceiling %.2f", cfg.Version, cfg.Ceiling(quality.FactCheck))
	}

	_, err = env.svc.ReviewSuggestion(ctx, ReviewInput{SuggestionID: pending[0].SuggestionID, Approve: false, Reviewer: "lead"})
	if !errors.Is(err, quality.ErrConcurrencyConflict) {
		t.Fatalf("second review error = %v", err)
	}
}

func TestRuleFeedbackDeactivatesRuleOnApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.LoadRules(ctx, []byte(`
rules:
  - id: transit-tag
    name: Transit tag
    type: auto_tag
    priority: 10
    conditions:
      keywords: [transit]
    actions:
      add_tags: [transport]
`), "ops")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)

	result, err := env.svc.RecordFeedback(ctx, FeedbackInput{
		ContentID:  item.ContentID,
		ReviewerID: "reviewer-2",
		Type:       quality.FeedbackRule,
		Rating:     4,
		Category:   "sentiment_consistency",
		RuleID:     "transit-tag",
	})
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if !result.Processed || len(result.Adjustments) != 1 || result.Adjustments[0].Kind != quality.AdjustmentActivation {
		t.Fatalf("result = %+v", result)
	}

	pending, err := env.svc.ListSuggestions(ctx, ports.SuggestionPending, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListSuggestions() = %+v, %v", pending, err)
	}
	if _, err := env.svc.ReviewSuggestion(ctx, ReviewInput{SuggestionID: pending[0].SuggestionID, Approve: true, Reviewer: "lead"}); err != nil {
		t.Fatalf("ReviewSuggestion() error = %v", err)
	}

	active, err := env.svc.ListRules(ctx, false)
	if err != nil {
		t.Fatalf("ListRules() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active rules = %+v", active)
	}
	history, err := env.svc.RuleHistory(ctx, "transit-tag")
	if err != nil {
		t.Fatalf("RuleHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("rule history = %+v", history)
	}
}

func TestRunAdjustmentSweepProcessesQueuedFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)

	result, err := env.svc.RecordFeedback(ctx, FeedbackInput{
		ContentID:       item.ContentID,
		ReviewerID:      "reviewer-3",
		Type:            quality.FeedbackGeneral,
		Rating:          3,
		DecisionCorrect: true,
	})
	if err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}
	if result.Processed || result.Record.ImpactScore != 50 {
		t.Fatalf("result = %+v", result)
	}

	adjustments, err := env.svc.RunAdjustmentSweep(ctx, 0)
	if err != nil {
		t.Fatalf("RunAdjustmentSweep() error = %v", err)
	}
	if len(adjustments) == 0 {
		t.Fatal("RunAdjustmentSweep() returned no adjustments")
	}
	for _, adj := range adjustments {
		if adj.Status != quality.AdjustmentProposed || adj.FeedbackID != result.Record.ID {
			t.Fatalf("adjustment = %+v", adj)
		}
	}

	again, err := env.svc.RunAdjustmentSweep(ctx, 0)
	if err != nil {
		t.Fatalf("RunAdjustmentSweep() error = %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second sweep adjustments = %+v", again)
	}
}

func TestRecordFeedbackValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.RecordFeedback(ctx, FeedbackInput{ContentID: "missing", ReviewerID: "r", Type: quality.FeedbackGeneral, Rating: 3})
	if !errors.Is(err, quality.ErrNotFound) {
		t.Fatalf("unknown content error = %v", err)
	}

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	_, err = env.svc.RecordFeedback(ctx, FeedbackInput{ContentID: item.ContentID, ReviewerID: "r", Type: quality.FeedbackGeneral, Rating: 9})
	if !errors.Is(err, quality.ErrValidation) {
		t.Fatalf("bad rating error = %v", err)
	}
}

func TestComputePerformanceMetrics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, trustedDraft(quality.ContentTypeNews), quality.SignalInputs{})
	env.sweep(t)
	if _, err := env.svc.RecordFeedback(ctx, FeedbackInput{
		ContentID:       item.ContentID,
		ReviewerID:      "reviewer-1",
		Type:            quality.FeedbackQualityRating,
		Rating:          5,
		DecisionCorrect: true,
	}); err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}

	env.clock.advance(time.Minute)
	metrics, err := env.svc.ComputePerformanceMetrics(ctx, MetricsInput{Window: time.Hour})
	if err != nil {
		t.Fatalf("ComputePerformanceMetrics() error = %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("metrics = %+v", metrics)
	}
	m := metrics[0]
	if m.Agent != quality.SystemAgent || m.ContentType != quality.ContentTypeNews || m.Decisions != 1 || m.Validated != 1 || m.Accuracy != 1 {
		t.Fatalf("metrics = %+v", m)
	}

	stored, err := env.svc.ListMetrics(ctx, 10)
	if err != nil {
		t.Fatalf("ListMetrics() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored metrics = %+v", stored)
	}
}

func TestLoadRulesVersionsChangedRulesOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pack := []byte(`
rules:
  - id: block-rumours
    type: content_filter
    priority: 100
    conditions:
      keywords: [rumour]
    actions:
      reject: true
      reason: unverified rumour
  - id: broken
    type: auto_tag
    actions:
      reject: true
`)
	report, err := env.svc.LoadRules(ctx, pack, "ops")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(report.Saved) != 2 || len(report.Invalid) != 1 || report.Invalid[0].ID != "broken" {
		t.Fatalf("first load report = %+v", report)
	}

	report, err = env.svc.LoadRules(ctx, pack, "ops")
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	if len(report.Saved) != 0 || len(report.Unchanged) != 2 {
		t.Fatalf("second load report = %+v", report)
	}

	_, err = env.svc.LoadRules(ctx, []byte("rules:\n  - id: a\n    type: auto_tag\n  - id: a\n    type: auto_tag\n"), "ops")
	if !errors.Is(err, quality.ErrConfiguration) {
		t.Fatalf("duplicate ids error = %v", err)
	}

	draft := trustedDraft(quality.ContentTypeNews)
	draft.Body += "\n\nA rumour about the budget circulated."
	item := env.submit(t, draft, quality.SignalInputs{})
	env.sweep(t)
	got := env.content(t, item.ContentID)
	if got.State != quality.StateRejected || !strings.Contains(got.StateReason, "block-rumours") {
		t.Fatalf("content = %+v", got)
	}
}

func TestUpdateEngineConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cfg, err := env.svc.UpdateEngineConfig(ctx, UpdateEngineConfigInput{Target: "auto_approve_threshold", Value: 95, Actor: "ops", Reason: "tighten"})
	if err != nil {
		t.Fatalf("UpdateEngineConfig() error = %v", err)
	}
	if cfg.Version != 2 || cfg.Thresholds.AutoApprove != 95 {
		t.Fatalf("config = %+v", cfg)
	}

	_, err = env.svc.UpdateEngineConfig(ctx, UpdateEngineConfigInput{Target: "nonsense", Value: 1, Actor: "ops"})
	if !errors.Is(err, quality.ErrConfiguration) {
		t.Fatalf("unknown target error = %v", err)
	}

	versions, err := env.svc.ListEngineConfigs(ctx, 0)
	if err != nil {
		t.Fatalf("ListEngineConfigs() error = %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}

	adjustments, err := env.svc.ListAdjustments(ctx, 0)
	if err != nil {
		t.Fatalf("ListAdjustments() error = %v", err)
	}
	if len(adjustments) != 1 || adjustments[0].Approver != "ops" {
		t.Fatalf("adjustments = %+v", adjustments)
	}
}

func TestEvaluateDraftDoesNotPersist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eval, err := env.svc.EvaluateDraft(ctx, EvaluateInput{Draft: trustedDraft(quality.ContentTypeOpinion)})
	if err != nil {
		t.Fatalf("EvaluateDraft() error = %v", err)
	}
	if eval.Decision.Value != quality.DecisionAutoApprove || eval.Route.Target != quality.RouteReview || eval.Route.Steps != 2 {
		t.Fatalf("evaluation = %+v", eval)
	}

	items, err := env.svc.ListContent(ctx, ports.ContentFilter{})
	if err != nil {
		t.Fatalf("ListContent() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
}

type fakeSource struct {
	drafts []ports.ExternalDraft
	acked  []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(context.Context) ([]ports.ExternalDraft, error) { return f.drafts, nil }

func (f *fakeSource) Ack(_ context.Context, ref string) error {
	f.acked = append(f.acked, ref)
	return nil
}

func TestIngestExternalIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	source := &fakeSource{drafts: []ports.ExternalDraft{
		{ExternalRef: "feed:1", Draft: trustedDraft(quality.ContentTypeNews)},
		{ExternalRef: "feed:2", Draft: weakDraft("podcast")},
	}}
	env.svc.sources = []ports.ContentSource{source}

	report, err := env.svc.IngestExternal(ctx)
	if err != nil {
		t.Fatalf("IngestExternal() error = %v", err)
	}
	if report.Fetched != 2 || report.Created != 1 || report.Failed != 1 {
		t.Fatalf("first report = %+v", report)
	}

	report, err = env.svc.IngestExternal(ctx)
	if err != nil {
		t.Fatalf("IngestExternal() error = %v", err)
	}
	if report.Created != 0 || report.Duplicates != 1 {
		t.Fatalf("second report = %+v", report)
	}
	if len(source.acked) != 2 || source.acked[0] != "feed:1" || source.acked[1] != "feed:1" {
		t.Fatalf("acked = %v", source.acked)
	}
}

func TestGetContentDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	item := env.submit(t, weakDraft(quality.ContentTypeArticle), quality.SignalInputs{})
	env.sweep(t)

	detail, err := env.svc.GetContentDetail(ctx, item.ContentID)
	if err != nil {
		t.Fatalf("GetContentDetail() error = %v", err)
	}
	if len(detail.Drafts) != 1 || len(detail.Steps) != 1 || len(detail.Events) != 2 {
		t.Fatalf("detail = drafts %d steps %d events %d", len(detail.Drafts), len(detail.Steps), len(detail.Events))
	}

	_, err = env.svc.GetContentDetail(ctx, "missing")
	if !errors.Is(err, quality.ErrNotFound) {
		t.Fatalf("missing content error = %v", err)
	}
}

func TestRuleSchema(t *testing.T) {
	raw, err := RuleSchema()
	if err != nil {
		t.Fatalf("RuleSchema() error = %v", err)
	}
	for _, want := range []string{`"rules"`, `"conditions"`, `"content_filter"`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("RuleSchema() missing %s", want)
		}
	}
}
