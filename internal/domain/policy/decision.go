package policy

// Verdict is the gateway's decision for an evaluated request.
type Verdict string

const (
	// VerdictAllow permits the action.
	VerdictAllow Verdict = "allow"
	// VerdictPending blocks the action until a human approves it.
	VerdictPending Verdict = "pending"
	// VerdictDeny blocks the action outright.
	VerdictDeny Verdict = "deny"
)

// Thresholds holds the risk score cutoffs for the decision engine.
type Thresholds struct {
	// Approval is the score at which an action requires human approval.
	Approval float64
	// Block is the score at which an action is denied outright.
	Block float64
}

// DefaultThresholds returns the standard cutoffs (approval 0.8, block 1.0).
func DefaultThresholds() Thresholds {
	return Thresholds{Approval: 0.8, Block: 1.0}
}

// Decide maps a risk score to a verdict.
// score < Approval => allow; Approval <= score < Block => pending;
// score >= Block => deny. Boundary scores land on the stricter side.
func (t Thresholds) Decide(score float64) Verdict {
	switch {
	case score >= t.Block:
		return VerdictDeny
	case score >= t.Approval:
		return VerdictPending
	default:
		return VerdictAllow
	}
}
