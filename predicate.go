package rowscope

import "reflect"

// Op enumerates the comparison operators a Condition can carry.
type Op string

const (
	OpEq Op = "="
	OpIn Op = "in"
)

// Condition is a single backend-neutral comparison. Backends render it
// into their native query form.
type Condition struct {
	Field  string
	Op     Op
	Value  any   // OpEq
	Values []any // OpIn
}

// Matches reports whether a row's field values satisfy the condition.
func (c Condition) Matches(values map[string]any) bool {
	got, ok := values[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return equalValue(got, c.Value)
	case OpIn:
		for _, want := range c.Values {
			if equalValue(got, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Predicate is a boolean row condition. Subtype predicates are conjoined
// onto every query issued through the subtype; equality predicates also
// contribute default field values on create.
type Predicate interface {
	// Conditions returns the flattened conjunction of comparisons.
	Conditions() []Condition
	// Matches reports whether the given field values satisfy the predicate.
	Matches(values map[string]any) bool
	// Defaults returns the field values the predicate implies for new
	// records. Only equality terms imply a value.
	Defaults() map[string]any
	// Fields returns every field the predicate references.
	Fields() []string
}

type eqPredicate struct {
	field string
	value any
}

// Eq builds a field-equality predicate.
func Eq(field string, value any) Predicate {
	return eqPredicate{field: field, value: value}
}

func (p eqPredicate) Conditions() []Condition {
	return []Condition{{Field: p.field, Op: OpEq, Value: p.value}}
}

func (p eqPredicate) Matches(values map[string]any) bool {
	return Condition{Field: p.field, Op: OpEq, Value: p.value}.Matches(values)
}

func (p eqPredicate) Defaults() map[string]any {
	return map[string]any{p.field: p.value}
}

func (p eqPredicate) Fields() []string { return []string{p.field} }

type inPredicate struct {
	field  string
	values []any
}

// In builds a set-membership predicate.
func In(field string, values ...any) Predicate {
	clone := make([]any, len(values))
	copy(clone, values)
	return inPredicate{field: field, values: clone}
}

func (p inPredicate) Conditions() []Condition {
	return []Condition{{Field: p.field, Op: OpIn, Values: p.values}}
}

func (p inPredicate) Matches(values map[string]any) bool {
	return Condition{Field: p.field, Op: OpIn, Values: p.values}.Matches(values)
}

// Defaults returns nil: membership does not imply a single value.
func (p inPredicate) Defaults() map[string]any { return nil }

func (p inPredicate) Fields() []string { return []string{p.field} }

type andPredicate struct {
	preds []Predicate
}

// And conjoins predicates. Nil members are skipped.
func And(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return andPredicate{preds: kept}
}

func (p andPredicate) Conditions() []Condition {
	var conds []Condition
	for _, child := range p.preds {
		conds = append(conds, child.Conditions()...)
	}
	return conds
}

func (p andPredicate) Matches(values map[string]any) bool {
	for _, child := range p.preds {
		if !child.Matches(values) {
			return false
		}
	}
	return true
}

func (p andPredicate) Defaults() map[string]any {
	defaults := make(map[string]any)
	for _, child := range p.preds {
		for k, v := range child.Defaults() {
			defaults[k] = v
		}
	}
	return defaults
}

func (p andPredicate) Fields() []string {
	var fields []string
	for _, child := range p.preds {
		fields = append(fields, child.Fields()...)
	}
	return fields
}

// equalValue compares two field values, tolerating the integer width
// differences that show up between in-memory literals and values
// round-tripped through a storage backend.
func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
