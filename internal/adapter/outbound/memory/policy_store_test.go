package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/action"
	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

func testRule(id string, priority int) *policy.Rule {
	return &policy.Rule{
		ID:                id,
		ActionTypes:       []action.Type{action.TypePayment},
		Conditions:        map[string]interface{}{"max_amount": 100.0},
		RiskScoreModifier: 0.5,
		Priority:          priority,
		Enabled:           true,
	}
}

func TestPolicyStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.CreateRule(ctx, testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}

	got, err := store.GetRule(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRule() error: %v", err)
	}
	if got.ID != "r1" {
		t.Errorf("GetRule() ID = %q, want r1", got.ID)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on create")
	}
}

func TestPolicyStore_CreateDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.CreateRule(ctx, testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}
	if err := store.CreateRule(ctx, testRule("r1", 20)); !errors.Is(err, policy.ErrRuleExists) {
		t.Errorf("CreateRule() duplicate error = %v, want ErrRuleExists", err)
	}
}

func TestPolicyStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := NewPolicyStore()
	if _, err := store.GetRule(context.Background(), "nope"); !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("GetRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyStore_UpdatePreservesCreatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.CreateRule(ctx, testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}
	created, _ := store.GetRule(ctx, "r1")

	updated := testRule("r1", 99)
	if err := store.UpdateRule(ctx, updated); err != nil {
		t.Fatalf("UpdateRule() error: %v", err)
	}

	got, _ := store.GetRule(ctx, "r1")
	if got.Priority != 99 {
		t.Errorf("Priority = %d, want 99", got.Priority)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestPolicyStore_UpdateMissing(t *testing.T) {
	t.Parallel()

	store := NewPolicyStore()
	if err := store.UpdateRule(context.Background(), testRule("ghost", 1)); !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("UpdateRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.CreateRule(ctx, testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}
	if err := store.DeleteRule(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRule() error: %v", err)
	}
	if _, err := store.GetRule(ctx, "r1"); !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v, want ErrRuleNotFound", err)
	}
	if err := store.DeleteRule(ctx, "r1"); !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("DeleteRule() again error = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyStore_ListSortedByPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	for _, r := range []*policy.Rule{testRule("c", 30), testRule("a", 10), testRule("b", 20)} {
		if err := store.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) error: %v", r.ID, err)
		}
	}

	rules, err := store.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules() error: %v", err)
	}
	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if rules[i].ID != want {
			t.Errorf("rules[%d].ID = %q, want %q", i, rules[i].ID, want)
		}
	}
}

func TestPolicyStore_SubscribeReceivesChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	events, cancel := store.Subscribe()
	defer cancel()

	if err := store.CreateRule(ctx, testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Op != policy.ChangeCreate || ev.RuleID != "r1" {
			t.Errorf("event = %+v, want create r1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no change event received")
	}

	if err := store.DeleteRule(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRule() error: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Op != policy.ChangeDelete {
			t.Errorf("event op = %q, want delete", ev.Op)
		}
	case <-time.After(time.Second):
		t.Fatal("no delete event received")
	}
}

func TestPolicyStore_CancelClosesChannel(t *testing.T) {
	t.Parallel()

	store := NewPolicyStore()
	events, cancel := store.Subscribe()
	cancel()

	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	if err := store.CreateRule(context.Background(), testRule("r1", 10)); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}
}

func TestPolicyStore_CloneIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	rule := testRule("r1", 10)
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error: %v", err)
	}

	// Mutating the caller's copy must not affect the stored rule.
	rule.Conditions["max_amount"] = 999999.0

	got, _ := store.GetRule(ctx, "r1")
	if got.Conditions["max_amount"] != 100.0 {
		t.Errorf("stored conditions mutated through caller reference: %v", got.Conditions)
	}
}
