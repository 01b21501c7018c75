package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sentinel-project/sentinel/internal/adapter/outbound/memory"
	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/approval"
	"github.com/sentinel-project/sentinel/internal/domain/audit"
	"github.com/sentinel-project/sentinel/internal/domain/mode"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gatewayFixture struct {
	gateway   *GatewayService
	approvals *ApprovalService
	audit     *AuditService
	auditRaw  *memory.AuditStore
	modeCtl   *mode.Controller
}

// newGatewayFixture wires a gateway with the default ruleset and in-memory
// stores. Callers must invoke cleanup (registered on t) before querying the
// audit store so pending records are flushed.
func newGatewayFixture(t *testing.T, m mode.Mode, opts ...GatewayOption) *gatewayFixture {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	policyStore := memory.NewPolicyStore()
	policies, err := NewPolicyService(ctx, policyStore, logger)
	if err != nil {
		t.Fatalf("NewPolicyService() error: %v", err)
	}
	if err := policies.SeedDefaultRules(ctx); err != nil {
		t.Fatalf("SeedDefaultRules() error: %v", err)
	}

	auditStore := memory.NewAuditStoreWithWriter(io.Discard)
	auditSvc := NewAuditService(auditStore, logger, WithFlushInterval(10*time.Millisecond))
	auditSvc.Start(ctx)

	approvals := NewApprovalService(memory.NewApprovalStore(), auditSvc, logger)

	gateway := NewGatewayService(
		policies, approvals, auditSvc, NewStatsService(),
		mode.NewController(m), policy.DefaultThresholds(), logger, opts...)

	t.Cleanup(func() {
		approvals.Stop()
		auditSvc.Stop()
	})

	return &gatewayFixture{
		gateway:   gateway,
		approvals: approvals,
		audit:     auditSvc,
		auditRaw:  auditStore,
		modeCtl:   gateway.Mode(),
	}
}

func TestGatewayService_SmallRefundAllowed(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 100.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictAllow {
		t.Errorf("Decision = %q, want allow", result.Decision)
	}
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %v, want 0", result.RiskScore)
	}
	if result.RiskLevel != policy.RiskLow {
		t.Errorf("RiskLevel = %q, want low", result.RiskLevel)
	}
	if result.Approval != nil {
		t.Error("Approval created for an allowed request")
	}
	if !result.Forwarded {
		t.Error("Forwarded = false for an allowed request, want true")
	}
	if result.RequestID == "" {
		t.Error("RequestID not assigned")
	}
}

func TestGatewayService_LargeRefundDenied(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 750.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictDeny {
		t.Errorf("Decision = %q, want deny", result.Decision)
	}
	if result.RiskScore != 1.0 {
		t.Errorf("RiskScore = %v, want 1.0", result.RiskScore)
	}
	ids := matchedRuleIDs(result.MatchedRules)
	if len(ids) != 1 || ids[0] != "refund_limit_500" {
		t.Errorf("matched rules = %v, want [refund_limit_500]", ids)
	}
	if want := "amount 750 exceeds limit of 500 (refund_limit_500)"; result.Reason != want {
		t.Errorf("Reason = %q, want %q", result.Reason, want)
	}
	if result.Forwarded {
		t.Error("Forwarded = true for a denied request, want false")
	}
}

func TestGatewayService_LargePaymentOpensApproval(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:        "agent-1",
		ActionType:     action.TypePayment,
		TargetResource: "payments_api",
		Parameters:     map[string]interface{}{"amount": 15000.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictPending {
		t.Fatalf("Decision = %q, want pending", result.Decision)
	}
	if result.Approval == nil {
		t.Fatal("no approval attached to pending result")
	}
	if result.Approval.Status != approval.StatusPending {
		t.Errorf("approval Status = %q, want PENDING", result.Approval.Status)
	}
	if result.Approval.RequestID != result.RequestID {
		t.Errorf("approval RequestID = %q, want %q", result.Approval.RequestID, result.RequestID)
	}

	stored, err := fx.approvals.Get(context.Background(), result.Approval.ID)
	if err != nil {
		t.Fatalf("approval not persisted: %v", err)
	}
	if stored.RiskScore != 0.85 {
		t.Errorf("approval RiskScore = %v, want 0.85", stored.RiskScore)
	}
}

func TestGatewayService_MasksPIIBeforeEvaluation(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	req := &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeAPICall,
		Parameters: map[string]interface{}{
			"note": "customer SSN is 123-45-6789",
		},
		Context: map[string]interface{}{
			"contact": "reach me at jane@example.com",
		},
	}
	result, err := fx.gateway.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	if note := req.Parameters["note"].(string); !strings.Contains(note, "<SSN>") || strings.Contains(note, "123-45") {
		t.Errorf("parameters not masked: %q", note)
	}
	if contact := req.Context["contact"].(string); !strings.Contains(contact, "<EMAIL>") {
		t.Errorf("context not masked: %q", contact)
	}

	want := []string{"EMAIL", "SSN"}
	if len(result.PIIEntities) != len(want) {
		t.Fatalf("PIIEntities = %v, want %v", result.PIIEntities, want)
	}
	for i, e := range want {
		if result.PIIEntities[i] != e {
			t.Errorf("PIIEntities[%d] = %q, want %q", i, result.PIIEntities[i], e)
		}
	}
}

func TestGatewayService_ObserveModeAllowsAndRecordsVerdict(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Observe)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeDatabaseWrite,
		Parameters: map[string]interface{}{"table": "users"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictAllow {
		t.Errorf("Decision = %q, want allow in observe mode", result.Decision)
	}
	if result.ObservedDecision != policy.VerdictDeny {
		t.Errorf("ObservedDecision = %q, want deny", result.ObservedDecision)
	}
	if result.Mode != mode.Observe {
		t.Errorf("Mode = %q, want observe", result.Mode)
	}
	if result.Approval != nil {
		t.Error("observe mode opened an approval")
	}
	if !result.Forwarded {
		t.Error("Forwarded = false for an observe-mode allow, want true")
	}
}

func TestGatewayService_ProtectedTableWriteDenied(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeDatabaseWrite,
		Parameters: map[string]interface{}{"table": "payments"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictDeny {
		t.Errorf("Decision = %q, want deny", result.Decision)
	}
	ids := matchedRuleIDs(result.MatchedRules)
	if len(ids) != 1 || ids[0] != "database_write_protection" {
		t.Errorf("matched rules = %v, want [database_write_protection]", ids)
	}
}

func TestGatewayService_InvalidActionType(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	_, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.Type("teleport"),
	})
	if err == nil {
		t.Fatal("Evaluate() accepted an unknown action type")
	}
}

func TestGatewayService_WritesDecisionAuditRecord(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, mode.Enforce)
	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-7",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 750.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}

	// The audit pipeline is async; poll until the record lands.
	deadline := time.Now().Add(2 * time.Second)
	var records []audit.Record
	for time.Now().Before(deadline) {
		records, err = fx.auditRaw.Query(context.Background(), audit.Filter{
			Event:   audit.EventDecision,
			AgentID: "agent-7",
		})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		if len(records) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(records) != 1 {
		t.Fatalf("found %d decision records, want 1", len(records))
	}
	rec := records[0]
	if rec.RequestID != result.RequestID {
		t.Errorf("RequestID = %q, want %q", rec.RequestID, result.RequestID)
	}
	if rec.Decision != string(policy.VerdictDeny) {
		t.Errorf("Decision = %q, want deny", rec.Decision)
	}
	if rec.RiskScore != 1.0 {
		t.Errorf("RiskScore = %v, want 1.0", rec.RiskScore)
	}
	if rec.Forwarded {
		t.Error("audit Forwarded = true for a denied request, want false")
	}
	if reason, _ := rec.Detail["reason"].(string); !strings.Contains(reason, "refund_limit_500") {
		t.Errorf("audit reason = %q, want the denying rule named", reason)
	}
}

// stubForwarder counts Forward calls and can be told to fail.
type stubForwarder struct {
	calls int
	err   error
}

func (f *stubForwarder) Forward(_ context.Context, _ *action.Request) error {
	f.calls++
	return f.err
}

func TestGatewayService_ForwarderSink(t *testing.T) {
	t.Parallel()

	sink := &stubForwarder{}
	fx := newGatewayFixture(t, mode.Enforce, WithForwarder(sink))

	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 100.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if !result.Forwarded {
		t.Error("Forwarded = false with a healthy sink, want true")
	}

	// A denied request never reaches the sink.
	if _, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 750.0},
	}); err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if sink.calls != 1 {
		t.Errorf("sink called %d times after deny, want still 1", sink.calls)
	}
}

func TestGatewayService_ForwarderFailureClearsForwarded(t *testing.T) {
	t.Parallel()

	sink := &stubForwarder{err: context.DeadlineExceeded}
	fx := newGatewayFixture(t, mode.Enforce, WithForwarder(sink))

	result, err := fx.gateway.Evaluate(context.Background(), &action.Request{
		AgentID:    "agent-1",
		ActionType: action.TypeRefund,
		Parameters: map[string]interface{}{"amount": 100.0},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Decision != policy.VerdictAllow {
		t.Fatalf("Decision = %q, want allow", result.Decision)
	}
	if result.Forwarded {
		t.Error("Forwarded = true despite sink failure, want false")
	}
}
