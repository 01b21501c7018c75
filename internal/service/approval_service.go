package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-project/sentinel/internal/domain/approval"
	"github.com/sentinel-project/sentinel/internal/domain/audit"
)

const defaultSweepInterval = 30 * time.Second

// Notifier delivers approval lifecycle events to an external endpoint.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, payload interface{}) error
}

// WebhookPayload is the JSON body posted when an approval is requested.
type WebhookPayload struct {
	Event          string                 `json:"event"`
	ApprovalID     string                 `json:"approval_id"`
	RequestID      string                 `json:"request_id"`
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	RiskScore      float64                `json:"risk_score"`
	RiskLevel      string                 `json:"risk_level"`
	MatchedRules   []string               `json:"matched_rules"`
	Parameters     map[string]interface{} `json:"parameters"`
	Context        map[string]interface{} `json:"context"`
	RequestedAt    time.Time              `json:"requested_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
	CallbackURL    string                 `json:"callback_url"`
}

// ApprovalService owns the approval lifecycle: creation with expiry,
// reviewer callbacks, webhook notification, and the expiry sweeper.
type ApprovalService struct {
	store    approval.Store
	notifier Notifier
	audit    *AuditService
	logger   *slog.Logger

	expiry        time.Duration
	sweepInterval time.Duration
	callbackBase  string

	stopChan chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// ApprovalOption configures ApprovalService.
type ApprovalOption func(*ApprovalService)

// WithExpiry sets how long an approval stays pending before expiring.
func WithExpiry(d time.Duration) ApprovalOption {
	return func(s *ApprovalService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithSweepInterval sets how often the expiry sweeper runs.
func WithSweepInterval(d time.Duration) ApprovalOption {
	return func(s *ApprovalService) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithCallbackBase sets the external base URL used to build callback URLs
// in webhook payloads (e.g., "https://sentinel.internal:8080").
func WithCallbackBase(base string) ApprovalOption {
	return func(s *ApprovalService) { s.callbackBase = base }
}

// WithNotifier sets the webhook notifier.
func WithNotifier(n Notifier) ApprovalOption {
	return func(s *ApprovalService) { s.notifier = n }
}

// NewApprovalService creates the service. Default expiry is 24 hours.
func NewApprovalService(store approval.Store, auditSvc *AuditService, logger *slog.Logger, opts ...ApprovalOption) *ApprovalService {
	s := &ApprovalService{
		store:         store,
		audit:         auditSvc,
		logger:        logger,
		expiry:        24 * time.Hour,
		sweepInterval: defaultSweepInterval,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a pending approval for the given evaluation outcome and
// dispatches the webhook notification. Webhook failure does not fail the
// creation; reviewers can still discover pending approvals via the API.
func (s *ApprovalService) Create(ctx context.Context, a *approval.Approval) (*approval.Approval, error) {
	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.Status = approval.StatusPending
	a.RequestedAt = now
	a.ExpiresAt = now.Add(s.expiry)

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval: %w", err)
	}

	s.recordTransition(a, "approval requested")

	if s.notifier != nil && s.notifier.Enabled() {
		payload := s.buildPayload(a)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			notifyCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.notifier.Notify(notifyCtx, payload); err != nil {
				s.logger.Error("approval webhook notification failed",
					"approval_id", a.ID, "error", err)
			}
		}()
	}

	return a.Clone(), nil
}

// Get retrieves an approval by ID.
func (s *ApprovalService) Get(ctx context.Context, id string) (*approval.Approval, error) {
	return s.store.Get(ctx, id)
}

// List returns approvals matching the filter, newest first.
func (s *ApprovalService) List(ctx context.Context, filter approval.Filter) ([]*approval.Approval, error) {
	return s.store.List(ctx, filter)
}

// Resolve applies a reviewer decision to a pending approval.
// Terminal approvals stay unchanged; the current state is returned
// alongside approval.ErrAlreadyResolved so callers can report the conflict.
func (s *ApprovalService) Resolve(ctx context.Context, id string, decision approval.Decision, reviewer, reason string) (*approval.Approval, error) {
	status, err := decision.Status()
	if err != nil {
		return nil, err
	}

	resolved, err := s.store.Resolve(ctx, id, status, reviewer, reason, time.Now().UTC())
	if err != nil {
		return resolved, err
	}

	s.recordTransition(resolved, "approval resolved")
	s.logger.Info("approval resolved",
		"approval_id", resolved.ID,
		"status", string(resolved.Status),
		"reviewer", reviewer)
	return resolved, nil
}

// StartSweeper begins the background goroutine that expires overdue
// pending approvals. It stops when ctx is cancelled or Stop() is called.
func (s *ApprovalService) StartSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// sweep expires pending approvals whose deadline passed.
func (s *ApprovalService) sweep(ctx context.Context) {
	expired, err := s.store.ExpireBefore(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("approval expiry sweep failed", "error", err)
		return
	}
	for _, a := range expired {
		s.recordTransition(a, "approval expired")
	}
	if len(expired) > 0 {
		s.logger.Info("expired overdue approvals", "count", len(expired))
	}
}

// Stop stops the sweeper and waits for in-flight webhook deliveries.
// Safe to call multiple times.
func (s *ApprovalService) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// buildPayload assembles the webhook body for a new approval.
func (s *ApprovalService) buildPayload(a *approval.Approval) WebhookPayload {
	return WebhookPayload{
		Event:          "approval.requested",
		ApprovalID:     a.ID,
		RequestID:      a.RequestID,
		AgentID:        a.AgentID,
		ActionType:     a.ActionType,
		TargetResource: a.TargetResource,
		RiskScore:      a.RiskScore,
		RiskLevel:      a.RiskLevel,
		MatchedRules:   a.MatchedRules,
		Parameters:     a.Parameters,
		Context:        a.Context,
		RequestedAt:    a.RequestedAt,
		ExpiresAt:      a.ExpiresAt,
		CallbackURL:    fmt.Sprintf("%s/api/v1/approvals/%s/callback", s.callbackBase, a.ID),
	}
}

// recordTransition writes an approval lifecycle event to the audit trail.
func (s *ApprovalService) recordTransition(a *approval.Approval, note string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Record{
		ID:             uuid.NewString(),
		Event:          audit.EventApproval,
		Timestamp:      time.Now().UTC(),
		RequestID:      a.RequestID,
		AgentID:        a.AgentID,
		ActionType:     a.ActionType,
		TargetResource: a.TargetResource,
		Decision:       string(a.Status),
		RiskScore:      a.RiskScore,
		RiskLevel:      a.RiskLevel,
		MatchedRules:   a.MatchedRules,
		Detail: map[string]interface{}{
			"note":        note,
			"approval_id": a.ID,
			"reviewer":    a.Reviewer,
		},
	})
}
