package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
)

// fakeCompiler compiles every source into a program with a fixed result.
type fakeCompiler struct {
	result bool
	err    error
}

func (c *fakeCompiler) Compile(source string) (ExprProgram, error) {
	if c.err != nil {
		return nil, c.err
	}
	return fakeProgram{result: c.result}, nil
}

type fakeProgram struct {
	result bool
}

func (p fakeProgram) Eval(req *action.Request) (bool, error) {
	return p.result, nil
}

func TestParseConditions_KnownKeys(t *testing.T) {
	t.Parallel()

	doc := map[string]interface{}{
		"max_amount":        500.0,
		"protected_tables":  []interface{}{"users", "payments"},
		"max_affected_rows": 100,
		"requires_fields":   []interface{}{"justification"},
		"blocked_days":      []interface{}{"Saturday"},
		"blocked_hours":     []interface{}{0.0, 6.0},
	}

	conditions, unknown, err := ParseConditions(doc, nil)
	if err != nil {
		t.Fatalf("ParseConditions() error: %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
	if len(conditions) != 6 {
		t.Errorf("parsed %d conditions, want 6", len(conditions))
	}
}

func TestParseConditions_UnknownKey(t *testing.T) {
	t.Parallel()

	doc := map[string]interface{}{
		"max_amount":   500.0,
		"max_velocity": 3,
	}

	conditions, unknown, err := ParseConditions(doc, nil)
	if err != nil {
		t.Fatalf("ParseConditions() error: %v", err)
	}
	if len(conditions) != 1 {
		t.Errorf("parsed %d conditions, want 1", len(conditions))
	}
	if len(unknown) != 1 || unknown[0] != "max_velocity" {
		t.Errorf("unknown = %v, want [max_velocity]", unknown)
	}
}

func TestParseConditions_MalformedValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  map[string]interface{}
	}{
		{"max_amount not a number", map[string]interface{}{"max_amount": "five hundred"}},
		{"protected_tables not a list", map[string]interface{}{"protected_tables": "users"}},
		{"requires_fields mixed types", map[string]interface{}{"requires_fields": []interface{}{"ok", 42}}},
		{"expression not a string", map[string]interface{}{"expression": 7}},
		{"blocked_hours not a pair", map[string]interface{}{"blocked_hours": []interface{}{0.0, 1.0, 2.0}}},
		{"blocked_hours out of range", map[string]interface{}{"blocked_hours": []interface{}{22.0, 24.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := ParseConditions(tt.doc, nil); err == nil {
				t.Error("ParseConditions() = nil error, want malformed value error")
			}
		})
	}
}

func TestParseConditions_ExpressionWithoutCompiler(t *testing.T) {
	t.Parallel()

	doc := map[string]interface{}{"expression": `action_type == "payment"`}

	conditions, unknown, err := ParseConditions(doc, nil)
	if err != nil {
		t.Fatalf("ParseConditions() error: %v", err)
	}
	if len(conditions) != 0 {
		t.Errorf("parsed %d conditions, want 0", len(conditions))
	}
	if len(unknown) != 1 || unknown[0] != "expression" {
		t.Errorf("unknown = %v, want [expression]", unknown)
	}
}

func TestParseConditions_ExpressionWithCompiler(t *testing.T) {
	t.Parallel()

	doc := map[string]interface{}{"expression": `amount > 100.0`}

	conditions, unknown, err := ParseConditions(doc, &fakeCompiler{result: true})
	if err != nil {
		t.Fatalf("ParseConditions() error: %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
	if len(conditions) != 1 {
		t.Fatalf("parsed %d conditions, want 1", len(conditions))
	}
	if !conditions[0].Matches(&action.Request{}, time.Now()) {
		t.Error("expression condition did not match")
	}
}

func TestParseConditions_CompileErrorRejectsRule(t *testing.T) {
	t.Parallel()

	doc := map[string]interface{}{"expression": "((("}
	compileErr := errors.New("syntax error")

	if _, _, err := ParseConditions(doc, &fakeCompiler{err: compileErr}); !errors.Is(err, compileErr) {
		t.Errorf("ParseConditions() error = %v, want wrapped compile error", err)
	}
}

func TestMaxAmount_Matches(t *testing.T) {
	t.Parallel()

	c := MaxAmount{Limit: 500}

	tests := []struct {
		name   string
		params map[string]interface{}
		want   bool
	}{
		{"over the limit", map[string]interface{}{"amount": 750.0}, true},
		{"exactly the limit", map[string]interface{}{"amount": 500.0}, false},
		{"under the limit", map[string]interface{}{"amount": 100.0}, false},
		{"integer amount", map[string]interface{}{"amount": 501}, true},
		{"no amount", map[string]interface{}{}, false},
		{"non-numeric amount", map[string]interface{}{"amount": "lots"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := &action.Request{Parameters: tt.params}
			if got := c.Matches(req, time.Now()); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtectedTables_CaseInsensitive(t *testing.T) {
	t.Parallel()

	c := ProtectedTables{Tables: []string{"users", "payments"}}

	req := &action.Request{Parameters: map[string]interface{}{"table": "USERS"}}
	if !c.Matches(req, time.Now()) {
		t.Error("Matches() = false for USERS, want true")
	}

	req = &action.Request{Parameters: map[string]interface{}{"table": "orders"}}
	if c.Matches(req, time.Now()) {
		t.Error("Matches() = true for orders, want false")
	}
}

func TestMaxAffectedRows_Matches(t *testing.T) {
	t.Parallel()

	c := MaxAffectedRows{Limit: 100}

	req := &action.Request{Parameters: map[string]interface{}{"affected_rows": 101.0}}
	if !c.Matches(req, time.Now()) {
		t.Error("Matches() = false for 101 rows, want true")
	}

	req = &action.Request{Parameters: map[string]interface{}{"affected_rows": 100.0}}
	if c.Matches(req, time.Now()) {
		t.Error("Matches() = true for exactly 100 rows, want false")
	}
}

func TestBlockedDays_Matches(t *testing.T) {
	t.Parallel()

	c := BlockedDays{Days: []string{"saturday", "sunday"}}

	saturday := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	if !c.Matches(nil, saturday) {
		t.Error("Matches() = false on Saturday, want true")
	}

	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	if c.Matches(nil, monday) {
		t.Error("Matches() = true on Monday, want false")
	}
}

func TestBlockedHours_Matches(t *testing.T) {
	t.Parallel()

	c := BlockedHours{Start: 0, End: 4}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"inside the range", time.Date(2026, 1, 5, 2, 30, 0, 0, time.UTC), true},
		{"start hour is included", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"end hour is excluded", time.Date(2026, 1, 5, 4, 0, 0, 0, time.UTC), false},
		{"well outside", time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Matches(nil, tt.at); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.at.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestBlockedHours_WrapsPastMidnight(t *testing.T) {
	t.Parallel()

	c := BlockedHours{Start: 22, End: 6}

	lateEvening := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	if !c.Matches(nil, lateEvening) {
		t.Error("Matches() = false at 23:00 UTC, want true")
	}

	earlyMorning := time.Date(2026, 1, 5, 5, 59, 0, 0, time.UTC)
	if !c.Matches(nil, earlyMorning) {
		t.Error("Matches() = false at 05:59 UTC, want true")
	}

	morning := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	if c.Matches(nil, morning) {
		t.Error("Matches() = true at 06:00 UTC, want false")
	}

	afternoon := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	if c.Matches(nil, afternoon) {
		t.Error("Matches() = true at 15:00 UTC, want false")
	}
}

func TestMinAmount_Matches(t *testing.T) {
	t.Parallel()

	c := MinAmount{Floor: 10}

	tests := []struct {
		name   string
		params map[string]interface{}
		want   bool
	}{
		{"below the floor", map[string]interface{}{"amount": 5.0}, true},
		{"exactly the floor", map[string]interface{}{"amount": 10.0}, false},
		{"above the floor", map[string]interface{}{"amount": 50.0}, false},
		{"no amount", map[string]interface{}{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := &action.Request{Parameters: tt.params}
			if got := c.Matches(req, time.Now()); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtectedResources_Matches(t *testing.T) {
	t.Parallel()

	c := ProtectedResources{Resources: []string{"payments_api", "credentials"}}

	req := &action.Request{TargetResource: "payments_api"}
	if !c.Matches(req, time.Now()) {
		t.Error("Matches() = false for payments_api, want true")
	}

	req = &action.Request{TargetResource: "orders"}
	if c.Matches(req, time.Now()) {
		t.Error("Matches() = true for orders, want false")
	}
}

func TestProtectedResources_MatchesPathSegment(t *testing.T) {
	t.Parallel()

	c := ProtectedResources{Resources: []string{"refund", "credentials"}}

	tests := []struct {
		target string
		want   bool
	}{
		{"payments/refund", true},
		{"refund/batch", true},
		{"api/v2/credentials/rotate", true},
		{"payments/refunds", false},
		{"orders", false},
	}

	for _, tt := range tests {
		req := &action.Request{TargetResource: tt.target}
		if got := c.Matches(req, time.Now()); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}
