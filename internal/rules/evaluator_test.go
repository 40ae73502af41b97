package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealguard/pkg/errors"
)

func newTestEvaluator() *Evaluator {
	e := NewEvaluator(nil)
	e.now = func() time.Time {
		return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return e
}

func testRecord(fields map[string]interface{}) Record {
	return Record{ID: "rec-1", Fields: fields}
}

func TestEvaluator_Comparisons(t *testing.T) {
	e := newTestEvaluator()

	tests := []struct {
		name   string
		cond   *Condition
		fields map[string]interface{}
		want   bool
	}{
		{"equals string", Leaf("stage", OpEquals, "Negotiation"), map[string]interface{}{"stage": "Negotiation"}, true},
		{"equals case folded", Leaf("stage", OpEquals, "negotiation"), map[string]interface{}{"stage": " Negotiation "}, true},
		{"equals numeric coercion", Leaf("amount", OpEquals, "100"), map[string]interface{}{"amount": float64(100)}, true},
		{"equals mismatch", Leaf("stage", OpEquals, "Proposal"), map[string]interface{}{"stage": "Negotiation"}, false},
		{"not_equals", Leaf("stage", OpNotEqual, "Proposal"), map[string]interface{}{"stage": "Negotiation"}, true},

		{"greater_than true", Leaf("amount", OpGreaterThan, float64(100)), map[string]interface{}{"amount": float64(101)}, true},
		{"greater_than equal is false", Leaf("amount", OpGreaterThan, float64(100)), map[string]interface{}{"amount": float64(100)}, false},
		{"greater_than string coercion", Leaf("amount", OpGreaterThan, float64(100)), map[string]interface{}{"amount": "250"}, true},
		{"greater_than non numeric", Leaf("amount", OpGreaterThan, float64(100)), map[string]interface{}{"amount": "lots"}, false},
		{"less_than", Leaf("probability", OpLessThan, float64(50)), map[string]interface{}{"probability": float64(20)}, true},
		{"between inclusive", Leaf("probability", OpBetween, []interface{}{float64(40), float64(60)}), map[string]interface{}{"probability": float64(40)}, true},
		{"between outside", Leaf("probability", OpBetween, []interface{}{float64(40), float64(60)}), map[string]interface{}{"probability": float64(70)}, false},
		{"between bad range", Leaf("probability", OpBetween, "40-60"), map[string]interface{}{"probability": float64(50)}, false},

		{"is_empty blank string", Leaf("next_steps", OpIsEmpty, nil), map[string]interface{}{"next_steps": "   "}, true},
		{"is_empty populated", Leaf("next_steps", OpIsEmpty, nil), map[string]interface{}{"next_steps": "call Friday"}, false},
		{"is_empty empty list", Leaf("contacts", OpIsEmpty, nil), map[string]interface{}{"contacts": []interface{}{}}, true},
		{"is_empty number", Leaf("amount", OpIsEmpty, nil), map[string]interface{}{"amount": float64(0)}, false},
		{"is_not_empty", Leaf("owner_name", OpIsNotEmpty, nil), map[string]interface{}{"owner_name": "Sam"}, true},
		{"is_null_or_zero zero", Leaf("amount", OpIsNullOrZero, nil), map[string]interface{}{"amount": float64(0)}, true},
		{"is_null_or_zero nonzero", Leaf("amount", OpIsNullOrZero, nil), map[string]interface{}{"amount": float64(5)}, false},
		{"is_null_or_zero non numeric", Leaf("amount", OpIsNullOrZero, nil), map[string]interface{}{"amount": "n/a"}, false},

		{"in list", Leaf("stage", OpIn, []interface{}{"Proposal", "Negotiation"}), map[string]interface{}{"stage": "Negotiation"}, true},
		{"in list miss", Leaf("stage", OpIn, []interface{}{"Proposal"}), map[string]interface{}{"stage": "Negotiation"}, false},
		{"not_in", Leaf("type", OpNotIn, []interface{}{"Renewal"}), map[string]interface{}{"type": "New Business"}, true},
		{"contains substring", Leaf("next_steps", OpContains, "demo"), map[string]interface{}{"next_steps": "Schedule Demo with VP"}, true},
		{"contains list element", Leaf("tags", OpContains, "priority"), map[string]interface{}{"tags": []interface{}{"priority", "q2"}}, true},
		{"matches", Leaf("contact_email", OpMatches, `.+@.+\..+`), map[string]interface{}{"contact_email": "a@b.com"}, true},
		{"matches bad pattern is false", Leaf("contact_email", OpMatches, "("), map[string]interface{}{"contact_email": "a@b.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, testRecord(tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_TemporalOperators(t *testing.T) {
	e := newTestEvaluator() // clock frozen at 2026-03-15

	tests := []struct {
		name   string
		cond   *Condition
		fields map[string]interface{}
		want   bool
	}{
		{"before", Leaf("close_date", OpBefore, "2026-06-01"), map[string]interface{}{"close_date": "2026-03-01"}, true},
		{"after", Leaf("close_date", OpAfter, "2026-01-01"), map[string]interface{}{"close_date": "2026-03-01"}, true},
		{"is_past yesterday", Leaf("close_date", OpIsPast, nil), map[string]interface{}{"close_date": "2026-03-14"}, true},
		{"is_past today is not past", Leaf("close_date", OpIsPast, nil), map[string]interface{}{"close_date": "2026-03-15"}, false},
		{"is_past later today is not past", Leaf("close_date", OpIsPast, nil), map[string]interface{}{"close_date": "2026-03-15T23:00:00"}, false},
		{"is_future", Leaf("close_date", OpIsFuture, nil), map[string]interface{}{"close_date": "2026-03-16"}, true},
		{"days_since_greater_than fires", Leaf("last_activity_date", OpDaysSinceGreaterThan, float64(14)), map[string]interface{}{"last_activity_date": "2026-02-01"}, true},
		{"days_since_greater_than boundary", Leaf("last_activity_date", OpDaysSinceGreaterThan, float64(14)), map[string]interface{}{"last_activity_date": "2026-03-01"}, false},
		{"within_days inside window", Leaf("close_date", OpWithinDays, float64(30)), map[string]interface{}{"close_date": "2026-04-01"}, true},
		{"within_days past date excluded", Leaf("close_date", OpWithinDays, float64(30)), map[string]interface{}{"close_date": "2026-03-10"}, false},
		{"more_than_days_away", Leaf("close_date", OpMoreThanDaysAway, float64(90)), map[string]interface{}{"close_date": "2026-09-01"}, true},
		{"more_than_days_away close date near", Leaf("close_date", OpMoreThanDaysAway, float64(90)), map[string]interface{}{"close_date": "2026-04-01"}, false},
		{"unparseable date is false", Leaf("close_date", OpIsPast, nil), map[string]interface{}{"close_date": "soonish"}, false},
		{"rfc3339 accepted", Leaf("close_date", OpBefore, "2026-06-01"), map[string]interface{}{"close_date": "2026-03-01T09:00:00Z"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, testRecord(tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_AbsentFields(t *testing.T) {
	e := newTestEvaluator()
	empty := testRecord(map[string]interface{}{})

	// Absence satisfies the emptiness operators and nothing else.
	for _, op := range []Operator{OpIsEmpty, OpIsNullOrZero} {
		got, err := e.Evaluate(Leaf("amount", op, nil), empty)
		require.NoError(t, err)
		assert.True(t, got, string(op))
	}
	for _, cond := range []*Condition{
		Leaf("amount", OpGreaterThan, float64(0)),
		Leaf("stage", OpEquals, "Negotiation"),
		Leaf("close_date", OpIsPast, nil),
		Leaf("owner_name", OpIsNotEmpty, nil),
		Leaf("stage", OpIn, []interface{}{"Proposal"}),
	} {
		got, err := e.Evaluate(cond, empty)
		require.NoError(t, err)
		assert.False(t, got, string(cond.Operator))
	}

	// An explicit null behaves like an absent field.
	got, err := e.Evaluate(Leaf("amount", OpIsNullOrZero, nil), testRecord(map[string]interface{}{"amount": nil}))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluator_FieldNameFallback(t *testing.T) {
	e := newTestEvaluator()

	got, err := e.Evaluate(Leaf("close_date", OpIsEmpty, nil), testRecord(map[string]interface{}{"closeDate": "2026-04-01"}))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = e.Evaluate(Leaf("dealName", OpIsEmpty, nil), testRecord(map[string]interface{}{"deal_name": "Acme"}))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluator_Composites(t *testing.T) {
	e := newTestEvaluator()
	record := testRecord(map[string]interface{}{
		"amount": float64(150000),
		"stage":  "Negotiation",
	})

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"all true", AllOf(Leaf("amount", OpGreaterThan, float64(100000)), Leaf("stage", OpEquals, "Negotiation")), true},
		{"all one false", AllOf(Leaf("amount", OpGreaterThan, float64(100000)), Leaf("stage", OpEquals, "Proposal")), false},
		{"any one true", AnyOf(Leaf("stage", OpEquals, "Proposal"), Leaf("stage", OpEquals, "Negotiation")), true},
		{"any all false", AnyOf(Leaf("stage", OpEquals, "Proposal"), Leaf("stage", OpEquals, "Discovery")), false},
		{"empty all is vacuously true", AllOf(), true},
		{"empty any is vacuously false", AnyOf(), false},
		{"nested", AllOf(Leaf("amount", OpGreaterThan, float64(1)), AnyOf(Leaf("stage", OpEquals, "Negotiation"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_MalformedConditions(t *testing.T) {
	e := newTestEvaluator()
	record := testRecord(map[string]interface{}{"amount": float64(1)})

	for _, cond := range []*Condition{
		nil,
		{Field: "amount"},
		{Operator: OpIsEmpty},
		Leaf("amount", Operator("resembles"), nil),
		AllOf(Leaf("amount", Operator("resembles"), nil)),
	} {
		_, err := e.Evaluate(cond, record)
		require.Error(t, err)
		assert.True(t, errors.IsMalformedRule(err))
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	e := newTestEvaluator()
	cond := AllOf(
		Leaf("amount", OpGreaterThan, float64(1000)),
		Leaf("close_date", OpIsPast, nil),
	)
	record := testRecord(map[string]interface{}{
		"amount":     float64(5000),
		"close_date": "2026-01-01",
	})

	first, err := e.Evaluate(cond, record)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Evaluate(cond, record)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.True(t, first)
}
