package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dealguard/internal/logger"
	"dealguard/pkg/errors"
)

// Evaluator decides whether one condition holds for one record. It is pure
// and total for well-formed conditions: missing fields and failed coercions
// evaluate to false instead of failing, so sparse CRM data never crashes a
// run. The only error it returns is a malformed-rule error for an unknown
// operator or a broken tree.
type Evaluator struct {
	log logger.Logger
	now func() time.Time
}

func NewEvaluator(log logger.Logger) *Evaluator {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Evaluator{
		log: log,
		now: time.Now,
	}
}

// Evaluate returns true when the condition holds, meaning the record
// violates whatever rule carries it.
func (e *Evaluator) Evaluate(cond *Condition, record Record) (bool, error) {
	if cond == nil {
		return false, errors.ErrMalformedRule.WithDetail("message", "condition is missing")
	}

	// Conjunction short-circuits on the first false child. An empty list is
	// vacuously true.
	if cond.All != nil {
		for _, child := range cond.All {
			ok, err := e.Evaluate(child, record)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	// Disjunction short-circuits on the first true child. An empty list is
	// vacuously false.
	if cond.Any != nil {
		for _, child := range cond.Any {
			ok, err := e.Evaluate(child, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	return e.evaluateLeaf(cond, record)
}

func (e *Evaluator) evaluateLeaf(cond *Condition, record Record) (bool, error) {
	if cond.Field == "" || cond.Operator == "" {
		return false, errors.ErrMalformedRule.WithDetail("message", "leaf condition is missing field or operator")
	}
	if _, known := OperatorSpecFor(cond.Operator); !known {
		return false, errors.ErrMalformedRule.
			WithDetail("message", "unknown operator").
			WithDetail("operator", string(cond.Operator)).
			WithDetail("field", cond.Field)
	}

	raw, present := record.Field(cond.Field)
	if !present || raw == nil {
		switch cond.Operator {
		case OpIsEmpty, OpIsNullOrZero:
			return true, nil
		default:
			// Fail open: a sparse record is a data gap, not a violation.
			e.log.Debugw("field absent from record, leaf evaluates false",
				"field", cond.Field, "operator", string(cond.Operator), "record_id", record.ID)
			return false, nil
		}
	}

	switch cond.Operator {
	case OpEquals:
		return valuesEqual(raw, cond.Value), nil
	case OpNotEqual:
		return !valuesEqual(raw, cond.Value), nil

	case OpGreaterThan:
		left, lok := asNumber(raw)
		right, rok := asNumber(cond.Value)
		return lok && rok && left > right, nil
	case OpLessThan:
		left, lok := asNumber(raw)
		right, rok := asNumber(cond.Value)
		return lok && rok && left < right, nil
	case OpBetween:
		low, high, ok := asRange(cond.Value)
		if !ok {
			return false, nil
		}
		v, vok := asNumber(raw)
		return vok && v >= low && v <= high, nil

	case OpIsEmpty:
		return isEmptyValue(raw), nil
	case OpIsNotEmpty:
		return !isEmptyValue(raw), nil
	case OpIsNullOrZero:
		v, ok := asNumber(raw)
		return ok && v == 0, nil

	case OpBefore:
		left, lok := asDate(raw)
		right, rok := asDate(cond.Value)
		return lok && rok && left.Before(right), nil
	case OpAfter:
		left, lok := asDate(raw)
		right, rok := asDate(cond.Value)
		return lok && rok && left.After(right), nil
	case OpIsPast:
		v, ok := asDate(raw)
		return ok && v.Before(e.today()), nil
	case OpIsFuture:
		v, ok := asDate(raw)
		return ok && v.After(e.today()), nil
	case OpDaysSinceGreaterThan:
		v, vok := asDate(raw)
		n, nok := asNumber(cond.Value)
		return vok && nok && daysBetween(v, e.today()) > int(n), nil
	case OpWithinDays:
		v, vok := asDate(raw)
		n, nok := asNumber(cond.Value)
		if !vok || !nok {
			return false, nil
		}
		ahead := daysBetween(e.today(), v)
		return ahead >= 0 && ahead <= int(n), nil
	case OpMoreThanDaysAway:
		v, vok := asDate(raw)
		n, nok := asNumber(cond.Value)
		return vok && nok && daysBetween(e.today(), v) > int(n), nil

	case OpIn:
		return valueInList(raw, cond.Value), nil
	case OpNotIn:
		return !valueInList(raw, cond.Value), nil
	case OpContains:
		return valueContains(raw, cond.Value), nil
	case OpMatches:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			e.log.Debugw("unparseable pattern, leaf evaluates false",
				"field", cond.Field, "pattern", pattern)
			return false, nil
		}
		return re.MatchString(asString(raw)), nil
	}

	return false, errors.ErrMalformedRule.
		WithDetail("message", "unknown operator").
		WithDetail("operator", string(cond.Operator))
}

// today truncates the clock to calendar-date granularity. Temporal operators
// compare dates, not instants: a deal closing later today is not yet past.
func (e *Evaluator) today() time.Time {
	y, m, d := e.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// valuesEqual compares numerically when both sides coerce to numbers,
// otherwise as trimmed, case-folded strings.
func valuesEqual(a, b interface{}) bool {
	an, aok := asNumber(a)
	bn, bok := asNumber(b)
	if aok && bok {
		return an == bn
	}
	return foldString(asString(a)) == foldString(asString(b))
}

func valueInList(v, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(v, item) {
			return true
		}
	}
	return false
}

func valueContains(v, needle interface{}) bool {
	if items, ok := v.([]interface{}); ok {
		for _, item := range items {
			if valuesEqual(item, needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(foldString(asString(v)), foldString(asString(needle)))
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	default:
		return false
	}
}

func asNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asRange(v interface{}) (float64, float64, bool) {
	items, ok := v.([]interface{})
	if !ok || len(items) != 2 {
		return 0, 0, false
	}
	low, lok := asNumber(items[0])
	high, hok := asNumber(items[1])
	if !lok || !hok {
		return 0, 0, false
	}
	return low, high, true
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// asDate parses a calendar date, truncating any time-of-day component.
func asDate(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		y, m, d := val.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func foldString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
