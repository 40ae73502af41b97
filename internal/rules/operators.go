package rules

// Operator names a comparison a leaf condition can perform. The set is
// closed; the evaluator owns the semantics, this table is metadata for
// authoring tools.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpNotEqual Operator = "not_equals"

	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"

	OpIsEmpty      Operator = "is_empty"
	OpIsNotEmpty   Operator = "is_not_empty"
	OpIsNullOrZero Operator = "is_null_or_zero"

	OpBefore               Operator = "before"
	OpAfter                Operator = "after"
	OpIsPast               Operator = "is_past"
	OpIsFuture             Operator = "is_future"
	OpDaysSinceGreaterThan Operator = "days_since_greater_than"
	OpWithinDays           Operator = "within_days"
	OpMoreThanDaysAway     Operator = "more_than_days_away"

	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

// ValueType describes the value shape an operator expects.
type ValueType string

const (
	ValueNone   ValueType = "none"
	ValueScalar ValueType = "scalar"
	ValueNumber ValueType = "number"
	ValueDate   ValueType = "date"
	ValueString ValueType = "string"
	ValueRange  ValueType = "range"
	ValueList   ValueType = "list"
)

// OperatorSpec is authoring-tool metadata for one operator. Commutative
// controls whether diagnostics may swap operand order when rendering.
type OperatorSpec struct {
	Name          Operator  `json:"name"`
	Label         string    `json:"label"`
	RequiresValue bool      `json:"requires_value"`
	ValueType     ValueType `json:"value_type"`
	Commutative   bool      `json:"commutative"`
	Example       string    `json:"example"`
}

var operatorSpecs = []OperatorSpec{
	{OpEquals, "equals", true, ValueScalar, true, `{"field": "stage", "operator": "equals", "value": "Negotiation"}`},
	{OpNotEqual, "does not equal", true, ValueScalar, true, `{"field": "forecast_category", "operator": "not_equals", "value": "Omitted"}`},
	{OpGreaterThan, "is greater than", true, ValueNumber, false, `{"field": "amount", "operator": "greater_than", "value": 10000}`},
	{OpLessThan, "is less than", true, ValueNumber, false, `{"field": "probability", "operator": "less_than", "value": 50}`},
	{OpBetween, "is between", true, ValueRange, false, `{"field": "probability", "operator": "between", "value": [40, 60]}`},
	{OpIsEmpty, "is empty", false, ValueNone, false, `{"field": "next_steps", "operator": "is_empty"}`},
	{OpIsNotEmpty, "is not empty", false, ValueNone, false, `{"field": "owner_name", "operator": "is_not_empty"}`},
	{OpIsNullOrZero, "is missing or zero", false, ValueNone, false, `{"field": "amount", "operator": "is_null_or_zero"}`},
	{OpBefore, "is before", true, ValueDate, false, `{"field": "close_date", "operator": "before", "value": "2026-01-01"}`},
	{OpAfter, "is after", true, ValueDate, false, `{"field": "close_date", "operator": "after", "value": "2026-06-30"}`},
	{OpIsPast, "is in the past", false, ValueNone, false, `{"field": "close_date", "operator": "is_past"}`},
	{OpIsFuture, "is in the future", false, ValueNone, false, `{"field": "close_date", "operator": "is_future"}`},
	{OpDaysSinceGreaterThan, "happened more than N days ago", true, ValueNumber, false, `{"field": "last_activity_date", "operator": "days_since_greater_than", "value": 14}`},
	{OpWithinDays, "falls within the next N days", true, ValueNumber, false, `{"field": "close_date", "operator": "within_days", "value": 30}`},
	{OpMoreThanDaysAway, "is more than N days away", true, ValueNumber, false, `{"field": "close_date", "operator": "more_than_days_away", "value": 90}`},
	{OpIn, "is one of", true, ValueList, false, `{"field": "stage", "operator": "in", "value": ["Proposal", "Negotiation"]}`},
	{OpNotIn, "is not one of", true, ValueList, false, `{"field": "type", "operator": "not_in", "value": ["Renewal"]}`},
	{OpContains, "contains", true, ValueString, false, `{"field": "next_steps", "operator": "contains", "value": "demo"}`},
	{OpMatches, "matches pattern", true, ValueString, false, `{"field": "contact_email", "operator": "matches", "value": ".+@.+\\..+"}`},
}

var operatorsByName = func() map[Operator]OperatorSpec {
	m := make(map[Operator]OperatorSpec, len(operatorSpecs))
	for _, spec := range operatorSpecs {
		m[spec.Name] = spec
	}
	return m
}()

// OperatorSpecFor looks up one operator's metadata.
func OperatorSpecFor(op Operator) (OperatorSpec, bool) {
	spec, ok := operatorsByName[op]
	return spec, ok
}

// OperatorCatalog returns the full operator table in stable order.
func OperatorCatalog() []OperatorSpec {
	out := make([]OperatorSpec, len(operatorSpecs))
	copy(out, operatorSpecs)
	return out
}
