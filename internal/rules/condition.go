package rules

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"dealguard/pkg/errors"
)

// Condition is a boolean expression over one record. It is a tagged union:
// either a leaf comparison (Field + Operator + optional Value) or exactly one
// composite branch (All = conjunction, Any = disjunction). A nil slice means
// the branch is absent; an empty slice is a valid, vacuous composite.
type Condition struct {
	Field    string       `json:"field,omitempty" yaml:"field,omitempty"`
	Operator Operator     `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    interface{}  `json:"value,omitempty" yaml:"value,omitempty"`
	All      []*Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any      []*Condition `json:"any,omitempty" yaml:"any,omitempty"`
}

func Leaf(field string, op Operator, value interface{}) *Condition {
	return &Condition{Field: field, Operator: op, Value: value}
}

func AllOf(children ...*Condition) *Condition {
	if children == nil {
		children = []*Condition{}
	}
	return &Condition{All: children}
}

func AnyOf(children ...*Condition) *Condition {
	if children == nil {
		children = []*Condition{}
	}
	return &Condition{Any: children}
}

func (c *Condition) IsLeaf() bool {
	return c != nil && c.All == nil && c.Any == nil
}

// Validate rejects malformed trees at construction time: a node mixing leaf
// fields with a composite branch, carrying both branches, or carrying
// neither a field nor a branch. Leaves must name a known operator and carry
// a value when the operator requires one.
func (c *Condition) Validate() error {
	if c == nil {
		return errors.ErrMalformedRule.WithDetail("message", "condition is missing")
	}

	hasLeaf := c.Field != "" || c.Operator != ""
	hasAll := c.All != nil
	hasAny := c.Any != nil

	if hasAll && hasAny {
		return errors.ErrMalformedRule.WithDetail("message", "condition declares both all and any")
	}
	if hasLeaf && (hasAll || hasAny) {
		return errors.ErrMalformedRule.WithDetail("message", "condition mixes leaf fields with a composite branch")
	}
	if !hasLeaf && !hasAll && !hasAny {
		return errors.ErrMalformedRule.WithDetail("message", "condition has neither leaf fields nor a composite branch")
	}

	if hasAll || hasAny {
		children := c.All
		if hasAny {
			children = c.Any
		}
		for _, child := range children {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	}

	if c.Field == "" {
		return errors.ErrMalformedRule.WithDetail("message", "leaf condition is missing a field")
	}
	if c.Operator == "" {
		return errors.ErrMalformedRule.WithDetail("message", "leaf condition is missing an operator")
	}
	spec, ok := OperatorSpecFor(c.Operator)
	if !ok {
		return errors.ErrMalformedRule.
			WithDetail("message", "unknown operator").
			WithDetail("operator", string(c.Operator))
	}
	if spec.RequiresValue && c.Value == nil {
		return errors.ErrMalformedRule.
			WithDetail("message", "operator requires a value").
			WithDetail("operator", string(c.Operator)).
			WithDetail("field", c.Field)
	}
	return nil
}

// Clone deep-copies the tree, including slice and map values, so override
// substitution never reaches back into the catalog.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{
		Field:    c.Field,
		Operator: c.Operator,
		Value:    cloneValue(c.Value),
	}
	if c.All != nil {
		out.All = make([]*Condition, len(c.All))
		for i, child := range c.All {
			out.All[i] = child.Clone()
		}
	}
	if c.Any != nil {
		out.Any = make([]*Condition, len(c.Any))
		for i, child := range c.Any {
			out.Any[i] = child.Clone()
		}
	}
	return out
}

// FirstLeaf returns the first leaf in depth-first order, descending into the
// first child of each composite. Used for diagnostic display on violations.
func (c *Condition) FirstLeaf() *Condition {
	if c == nil {
		return nil
	}
	if c.IsLeaf() {
		return c
	}
	children := c.All
	if children == nil {
		children = c.Any
	}
	if len(children) == 0 {
		return nil
	}
	return children[0].FirstLeaf()
}

// WalkLeaves visits every leaf in depth-first order.
func (c *Condition) WalkLeaves(visit func(*Condition)) {
	if c == nil {
		return
	}
	if c.IsLeaf() {
		visit(c)
		return
	}
	for _, child := range c.All {
		child.WalkLeaves(visit)
	}
	for _, child := range c.Any {
		child.WalkLeaves(visit)
	}
}

// MarshalJSON emits the set branch explicitly so an empty composite survives
// a round trip (omitempty would drop "all": []).
func (c *Condition) MarshalJSON() ([]byte, error) {
	if c.All != nil {
		return json.Marshal(map[string]interface{}{"all": c.All})
	}
	if c.Any != nil {
		return json.Marshal(map[string]interface{}{"any": c.Any})
	}
	out := map[string]interface{}{
		"field":    c.Field,
		"operator": c.Operator,
	}
	if c.Value != nil {
		out["value"] = c.Value
	}
	return json.Marshal(out)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Condition(p)
	return c.Validate()
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	type plain Condition
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Condition(p)
	return c.Validate()
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
