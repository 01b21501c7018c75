package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/approval"
	"github.com/sentinel-project/sentinel/internal/domain/audit"
	"github.com/sentinel-project/sentinel/internal/domain/mode"
	"github.com/sentinel-project/sentinel/internal/domain/pii"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// EvaluationResult is the outcome of one gateway evaluation.
type EvaluationResult struct {
	RequestID string
	// Decision is the effective verdict after mode handling. In observe
	// mode this is always allow.
	Decision policy.Verdict
	// ObservedDecision is what enforcement would have decided. Set only in
	// observe mode when it differs from the effective decision.
	ObservedDecision policy.Verdict
	Mode             mode.Mode
	RiskScore        float64
	RiskLevel        policy.RiskLevel
	MatchedRules     []policy.RuleMatch
	// Reason describes why the highest-precedence matched rule fired.
	// Empty when no rule matched.
	Reason   string
	Warnings []string
	// Forwarded reports whether the request was handed to the target
	// system. True whenever the effective decision is allow, unless the
	// forwarding sink rejected the request.
	Forwarded   bool
	PIIEntities []string
	// Approval is set when the effective decision is pending.
	Approval *approval.Approval
	Latency  time.Duration
}

// Forwarder hands an allowed request to the target system. The gateway
// treats forwarding as a pluggable sink: the default deployment terminates
// at the decision and no sink is installed.
type Forwarder interface {
	Forward(ctx context.Context, req *action.Request) error
}

// GatewayService runs the evaluation pipeline: PII sanitization, rule
// evaluation, threshold decision, mode handling, approval creation, and
// audit recording.
type GatewayService struct {
	policies   *PolicyService
	approvals  *ApprovalService
	audit      *AuditService
	stats      *StatsService
	sanitizer  *pii.Sanitizer
	mode       *mode.Controller
	thresholds policy.Thresholds
	forwarder  Forwarder
	logger     *slog.Logger
}

// GatewayOption configures GatewayService.
type GatewayOption func(*GatewayService)

// WithForwarder installs a forwarding sink for allowed requests.
func WithForwarder(f Forwarder) GatewayOption {
	return func(s *GatewayService) { s.forwarder = f }
}

// NewGatewayService wires the evaluation pipeline.
func NewGatewayService(
	policies *PolicyService,
	approvals *ApprovalService,
	auditSvc *AuditService,
	stats *StatsService,
	modeCtl *mode.Controller,
	thresholds policy.Thresholds,
	logger *slog.Logger,
	opts ...GatewayOption,
) *GatewayService {
	s := &GatewayService{
		policies:   policies,
		approvals:  approvals,
		audit:      auditSvc,
		stats:      stats,
		sanitizer:  pii.NewSanitizer(),
		mode:       modeCtl,
		thresholds: thresholds,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the mode controller.
func (s *GatewayService) Mode() *mode.Controller {
	return s.mode
}

// Thresholds returns the configured decision thresholds.
func (s *GatewayService) Thresholds() policy.Thresholds {
	return s.thresholds
}

// Evaluate runs one request through the pipeline.
//
// The request's parameters and context are PII-sanitized before evaluation,
// so raw identifiers never reach rules, audit records, or webhooks.
func (s *GatewayService) Evaluate(ctx context.Context, req *action.Request) (*EvaluationResult, error) {
	start := time.Now()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = start.UTC()
	}
	if !req.ActionType.IsValid() {
		return nil, fmt.Errorf("invalid action type %q", string(req.ActionType))
	}

	var found map[pii.Entity]int
	req.Parameters, found = s.sanitizer.SanitizeMap(req.Parameters)
	ctxMasked, ctxFound := s.sanitizer.SanitizeMap(req.Context)
	req.Context = ctxMasked
	for e, n := range ctxFound {
		if found == nil {
			found = make(map[pii.Entity]int)
		}
		found[e] += n
	}
	target, targetFound := s.sanitizer.SanitizeString(req.TargetResource)
	req.TargetResource = target
	for e, n := range targetFound {
		if found == nil {
			found = make(map[pii.Entity]int)
		}
		found[e] += n
	}

	snapshot := s.policies.Snapshot()
	assessment := policy.Evaluate(req, snapshot.Rules, start.UTC())
	verdict := s.thresholds.Decide(assessment.Score)

	currentMode := s.mode.Current()
	result := &EvaluationResult{
		RequestID:    req.RequestID,
		Decision:     verdict,
		Mode:         currentMode,
		RiskScore:    assessment.Score,
		RiskLevel:    assessment.Level,
		MatchedRules: assessment.Matched,
		Reason:       assessment.Reason,
		Warnings:     assessment.Warnings,
		PIIEntities:  pii.Entities(found),
	}

	if currentMode == mode.Observe && verdict != policy.VerdictAllow {
		result.ObservedDecision = verdict
		result.Decision = policy.VerdictAllow
	}

	if result.Decision == policy.VerdictAllow {
		result.Forwarded = true
		if s.forwarder != nil {
			if err := s.forwarder.Forward(ctx, req); err != nil {
				s.logger.Warn("forwarding sink rejected request",
					"request_id", req.RequestID, "error", err)
				result.Forwarded = false
			}
		}
	}

	if result.Decision == policy.VerdictPending {
		a, err := s.approvals.Create(ctx, &approval.Approval{
			RequestID:      req.RequestID,
			AgentID:        req.AgentID,
			ActionType:     string(req.ActionType),
			TargetResource: req.TargetResource,
			Parameters:     req.Parameters,
			Context:        req.Context,
			RiskScore:      assessment.Score,
			RiskLevel:      string(assessment.Level),
			MatchedRules:   matchedRuleIDs(assessment.Matched),
		})
		if err != nil {
			return nil, fmt.Errorf("open approval: %w", err)
		}
		result.Approval = a
	}

	result.Latency = time.Since(start)
	s.recordDecision(req, result)

	s.logger.Info("request evaluated",
		"request_id", req.RequestID,
		"agent_id", req.AgentID,
		"action_type", string(req.ActionType),
		"decision", string(result.Decision),
		"observed_decision", string(result.ObservedDecision),
		"risk_score", result.RiskScore,
		"risk_level", string(result.RiskLevel),
		"matched_rules", len(result.MatchedRules),
		"latency_ms", float64(result.Latency.Microseconds())/1000.0)

	return result, nil
}

// recordDecision writes the audit record and updates the stats rollup.
func (s *GatewayService) recordDecision(req *action.Request, result *EvaluationResult) {
	observedDeny := result.ObservedDecision == policy.VerdictDeny ||
		result.ObservedDecision == policy.VerdictPending

	record := audit.Record{
		ID:             uuid.NewString(),
		Event:          audit.EventDecision,
		Timestamp:      time.Now().UTC(),
		RequestID:      req.RequestID,
		AgentID:        req.AgentID,
		ActionType:     string(req.ActionType),
		TargetResource: req.TargetResource,
		Decision:       string(result.Decision),
		ObservedMode:   result.Mode == mode.Observe,
		RiskScore:      result.RiskScore,
		RiskLevel:      string(result.RiskLevel),
		MatchedRules:   matchedRuleIDs(result.MatchedRules),
		PIIEntities:    result.PIIEntities,
		Forwarded:      result.Forwarded,
		LatencyMS:      float64(result.Latency.Microseconds()) / 1000.0,
	}
	if result.ObservedDecision != "" || result.Reason != "" {
		record.Detail = map[string]interface{}{}
		if result.ObservedDecision != "" {
			record.Detail["observed_decision"] = string(result.ObservedDecision)
		}
		if result.Reason != "" {
			record.Detail["reason"] = result.Reason
		}
	}
	s.audit.Record(record)

	if s.stats != nil {
		s.stats.RecordDecision(result.Decision, result.RiskLevel, observedDeny, len(result.PIIEntities), result.Latency)
	}
}

// matchedRuleIDs extracts rule IDs from matches.
func matchedRuleIDs(matches []policy.RuleMatch) []string {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.RuleID
	}
	return ids
}
