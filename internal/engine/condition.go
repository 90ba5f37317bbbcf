package engine

import (
	"reflect"
	"strconv"
	"strings"

	"decision-service/internal/models"
)

// Evaluate walks a condition tree against a context and returns the boolean
// outcome. Evaluation is pure and total: malformed nodes, missing fields and
// type mismatches all resolve to false rather than panicking, so a broken
// policy fails closed instead of granting access. A nil tree is vacuously
// true. The context is never mutated.
func Evaluate(node *models.ConditionNode, ctx models.Context) bool {
	if node == nil {
		return true
	}
	if node.IsGroup() {
		return evaluateGroup(node, ctx)
	}
	return evaluateRule(node, ctx)
}

func evaluateGroup(node *models.ConditionNode, ctx models.Context) bool {
	switch strings.ToLower(node.Operator) {
	case models.GroupAnd:
		// Empty rule list is vacuously true.
		for i := range node.Rules {
			if !Evaluate(&node.Rules[i], ctx) {
				return false
			}
		}
		return true
	case models.GroupOr:
		// Empty rule list is false.
		for i := range node.Rules {
			if Evaluate(&node.Rules[i], ctx) {
				return true
			}
		}
		return false
	default:
		// Unrecognized group operator fails closed.
		return false
	}
}

func evaluateRule(node *models.ConditionNode, ctx models.Context) bool {
	left, found := ctx.Lookup(node.Field)

	if strings.ToLower(node.Operator) == models.OpExists {
		return found
	}
	if !found {
		// Missing attribute fails closed for every other operator.
		return false
	}

	right := node.Value
	if ref, ok := models.IsFieldRef(node.Value); ok {
		var refFound bool
		right, refFound = ctx.Lookup(ref)
		if !refFound {
			return false
		}
	}

	switch strings.ToLower(node.Operator) {
	case models.OpEq:
		return valuesEqual(left, right)
	case models.OpNeq:
		return !valuesEqual(left, right)
	case models.OpGt:
		return compareNumeric(left, right, func(a, b float64) bool { return a > b })
	case models.OpGte:
		return compareNumeric(left, right, func(a, b float64) bool { return a >= b })
	case models.OpLt:
		return compareNumeric(left, right, func(a, b float64) bool { return a < b })
	case models.OpLte:
		return compareNumeric(left, right, func(a, b float64) bool { return a <= b })
	case models.OpIn:
		list, ok := right.([]interface{})
		if !ok {
			return false
		}
		return listContains(list, left)
	case models.OpNotIn:
		list, ok := right.([]interface{})
		if !ok {
			return false
		}
		return !listContains(list, left)
	case models.OpContains:
		return contains(left, right)
	default:
		return false
	}
}

// valuesEqual compares two values, treating numbers of different widths as
// equal when their numeric values match (JSON round-trips erase int/float
// distinctions).
func valuesEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareNumeric(a, b interface{}, cmp func(a, b float64) bool) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	return cmp(af, bf)
}

func listContains(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

// contains matches array membership when the field value is a list, and
// substring containment when both sides are strings.
func contains(left, right interface{}) bool {
	if list, ok := left.([]interface{}); ok {
		return listContains(list, right)
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Contains(ls, rs)
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
