package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
)

// Condition is one typed constraint within a rule. All of a rule's
// conditions must match for the rule to match.
type Condition interface {
	// Key returns the condition's document key (e.g., "max_amount").
	Key() string
	// Matches reports whether the condition holds for the request.
	// now is passed in so time-based conditions stay deterministic in tests.
	Matches(req *action.Request, now time.Time) bool
	// Reason describes why the condition matched the request. Only
	// meaningful when Matches returned true.
	Reason(req *action.Request, now time.Time) string
}

// ExprProgram is a compiled expression condition.
type ExprProgram interface {
	// Eval runs the program against the request.
	Eval(req *action.Request) (bool, error)
}

// ExprCompiler compiles expression condition sources.
// Implementations live in the outbound adapters (CEL).
type ExprCompiler interface {
	Compile(source string) (ExprProgram, error)
}

// MaxAmount matches when parameters.amount exceeds the limit.
// A request without a numeric amount does not match.
type MaxAmount struct {
	Limit float64
}

func (c MaxAmount) Key() string { return "max_amount" }

func (c MaxAmount) Matches(req *action.Request, _ time.Time) bool {
	amount, ok := req.Amount()
	return ok && amount > c.Limit
}

func (c MaxAmount) Reason(req *action.Request, _ time.Time) string {
	amount, _ := req.Amount()
	return fmt.Sprintf("amount %v exceeds limit of %v", amount, c.Limit)
}

// MinAmount matches when parameters.amount is below the floor.
type MinAmount struct {
	Floor float64
}

func (c MinAmount) Key() string { return "min_amount" }

func (c MinAmount) Matches(req *action.Request, _ time.Time) bool {
	amount, ok := req.Amount()
	return ok && amount < c.Floor
}

func (c MinAmount) Reason(req *action.Request, _ time.Time) string {
	amount, _ := req.Amount()
	return fmt.Sprintf("amount %v is below minimum of %v", amount, c.Floor)
}

// ProtectedResources matches when any path segment of the target
// resource is in the set. "payments/refund" matches a protected
// resource named either "payments" or "refund".
type ProtectedResources struct {
	Resources []string
}

func (c ProtectedResources) Key() string { return "protected_resources" }

func (c ProtectedResources) Matches(req *action.Request, _ time.Time) bool {
	return c.matchedSegment(req) != ""
}

func (c ProtectedResources) Reason(req *action.Request, _ time.Time) string {
	return fmt.Sprintf("access to protected resource %q", c.matchedSegment(req))
}

func (c ProtectedResources) matchedSegment(req *action.Request) string {
	for _, seg := range strings.Split(req.TargetResource, "/") {
		if containsFold(c.Resources, seg) {
			return seg
		}
	}
	return ""
}

// ProtectedTables matches when parameters.table is in the set.
type ProtectedTables struct {
	Tables []string
}

func (c ProtectedTables) Key() string { return "protected_tables" }

func (c ProtectedTables) Matches(req *action.Request, _ time.Time) bool {
	table, ok := req.StringParam("table")
	return ok && containsFold(c.Tables, table)
}

func (c ProtectedTables) Reason(req *action.Request, _ time.Time) string {
	table, _ := req.StringParam("table")
	return fmt.Sprintf("access to protected table %q", table)
}

// MaxAffectedRows matches when parameters.affected_rows exceeds the limit.
type MaxAffectedRows struct {
	Limit int
}

func (c MaxAffectedRows) Key() string { return "max_affected_rows" }

func (c MaxAffectedRows) Matches(req *action.Request, _ time.Time) bool {
	rows, ok := req.IntParam("affected_rows")
	return ok && rows > c.Limit
}

func (c MaxAffectedRows) Reason(req *action.Request, _ time.Time) string {
	rows, _ := req.IntParam("affected_rows")
	return fmt.Sprintf("bulk operation affects %d rows, limit is %d", rows, c.Limit)
}

// RequiresFields matches when any listed field is absent or empty in parameters.
// The rule fires on MISSING fields: it raises risk for requests that omit
// required justification, not for well-formed ones.
type RequiresFields struct {
	Fields []string
}

func (c RequiresFields) Key() string { return "requires_fields" }

func (c RequiresFields) Matches(req *action.Request, _ time.Time) bool {
	return c.missingField(req) != ""
}

func (c RequiresFields) Reason(req *action.Request, _ time.Time) string {
	return fmt.Sprintf("required field %q is missing", c.missingField(req))
}

func (c RequiresFields) missingField(req *action.Request) string {
	for _, field := range c.Fields {
		v, ok := req.Parameters[field]
		if !ok {
			return field
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return field
		}
	}
	return ""
}

// BlockedDays matches when the current UTC weekday is in the set.
// Day names are lowercase English ("saturday", "sunday").
type BlockedDays struct {
	Days []string
}

func (c BlockedDays) Key() string { return "blocked_days" }

func (c BlockedDays) Matches(_ *action.Request, now time.Time) bool {
	day := strings.ToLower(now.UTC().Weekday().String())
	return containsFold(c.Days, day)
}

func (c BlockedDays) Reason(_ *action.Request, now time.Time) string {
	return fmt.Sprintf("action attempted on blocked day %s",
		strings.ToLower(now.UTC().Weekday().String()))
}

// BlockedHours matches when the current UTC hour falls inside the
// half-open range [Start, End). A range with Start > End wraps past
// midnight: [22, 6) covers 22:00 through 05:59.
type BlockedHours struct {
	Start int
	End   int
}

func (c BlockedHours) Key() string { return "blocked_hours" }

func (c BlockedHours) Matches(_ *action.Request, now time.Time) bool {
	hour := now.UTC().Hour()
	if c.Start <= c.End {
		return hour >= c.Start && hour < c.End
	}
	return hour >= c.Start || hour < c.End
}

func (c BlockedHours) Reason(_ *action.Request, now time.Time) string {
	return fmt.Sprintf("action attempted at %02d:00 UTC inside blocked hours [%d, %d)",
		now.UTC().Hour(), c.Start, c.End)
}

// Expression wraps a compiled expression program.
type Expression struct {
	Source  string
	Program ExprProgram
}

func (c Expression) Key() string { return "expression" }

func (c Expression) Matches(req *action.Request, _ time.Time) bool {
	ok, err := c.Program.Eval(req)
	if err != nil {
		// Evaluation errors are treated as non-matching; the compile step
		// already rejected malformed sources, so errors here are runtime
		// type mismatches against this particular request.
		return false
	}
	return ok
}

func (c Expression) Reason(_ *action.Request, _ time.Time) string {
	return "expression condition matched"
}

// ParseConditions parses a raw condition document into typed variants.
// Unknown keys are returned separately so the caller can mark the rule
// non-matching and surface a warning. compiler may be nil, in which case
// "expression" counts as unknown.
// Returns an error only for known keys with malformed values; rules with
// such conditions are rejected at write time.
func ParseConditions(doc map[string]interface{}, compiler ExprCompiler) ([]Condition, []string, error) {
	if len(doc) == 0 {
		return nil, nil, nil
	}

	conditions := make([]Condition, 0, len(doc))
	var unknown []string

	for key, value := range doc {
		switch key {
		case "max_amount":
			limit, err := toFloat(value)
			if err != nil {
				return nil, nil, fmt.Errorf("max_amount: %w", err)
			}
			conditions = append(conditions, MaxAmount{Limit: limit})

		case "min_amount":
			floor, err := toFloat(value)
			if err != nil {
				return nil, nil, fmt.Errorf("min_amount: %w", err)
			}
			conditions = append(conditions, MinAmount{Floor: floor})

		case "protected_resources":
			list, err := toStringSlice(value)
			if err != nil {
				return nil, nil, fmt.Errorf("protected_resources: %w", err)
			}
			conditions = append(conditions, ProtectedResources{Resources: list})

		case "protected_tables":
			list, err := toStringSlice(value)
			if err != nil {
				return nil, nil, fmt.Errorf("protected_tables: %w", err)
			}
			conditions = append(conditions, ProtectedTables{Tables: list})

		case "max_affected_rows":
			limit, err := toFloat(value)
			if err != nil {
				return nil, nil, fmt.Errorf("max_affected_rows: %w", err)
			}
			conditions = append(conditions, MaxAffectedRows{Limit: int(limit)})

		case "requires_fields":
			list, err := toStringSlice(value)
			if err != nil {
				return nil, nil, fmt.Errorf("requires_fields: %w", err)
			}
			conditions = append(conditions, RequiresFields{Fields: list})

		case "blocked_days":
			list, err := toStringSlice(value)
			if err != nil {
				return nil, nil, fmt.Errorf("blocked_days: %w", err)
			}
			for i := range list {
				list[i] = strings.ToLower(list[i])
			}
			conditions = append(conditions, BlockedDays{Days: list})

		case "blocked_hours":
			hours, err := toIntSlice(value)
			if err != nil {
				return nil, nil, fmt.Errorf("blocked_hours: %w", err)
			}
			if len(hours) != 2 {
				return nil, nil, fmt.Errorf("blocked_hours: expected [start, end) pair, got %d values", len(hours))
			}
			for _, h := range hours {
				if h < 0 || h > 23 {
					return nil, nil, fmt.Errorf("blocked_hours: hour %d out of range [0, 23]", h)
				}
			}
			conditions = append(conditions, BlockedHours{Start: hours[0], End: hours[1]})

		case "expression":
			src, ok := value.(string)
			if !ok {
				return nil, nil, fmt.Errorf("expression: expected string, got %T", value)
			}
			if compiler == nil {
				unknown = append(unknown, key)
				continue
			}
			prg, err := compiler.Compile(src)
			if err != nil {
				return nil, nil, fmt.Errorf("expression: %w", err)
			}
			conditions = append(conditions, Expression{Source: src, Program: prg})

		default:
			unknown = append(unknown, key)
		}
	}

	return conditions, unknown, nil
}

// toFloat converts JSON/YAML numeric values to float64.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// toStringSlice converts []interface{} or []string values to []string.
func toStringSlice(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", v)
	}
}

// toIntSlice converts []interface{} or []int values to []int.
func toIntSlice(v interface{}) ([]int, error) {
	switch list := v.(type) {
	case []int:
		out := make([]int, len(list))
		copy(out, list)
		return out, nil
	case []interface{}:
		out := make([]int, 0, len(list))
		for _, item := range list {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out = append(out, int(f))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of integers, got %T", v)
	}
}

// containsFold reports whether list contains s, case-insensitively.
func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
