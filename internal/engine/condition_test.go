package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"decision-service/internal/models"
)

func sampleContext() models.Context {
	return models.Context{
		"user": map[string]interface{}{
			"id":            "u-1",
			"department_id": float64(1),
			"system_level":  "accounting_manager",
		},
		"data": map[string]interface{}{
			"amount":        float64(4000000),
			"department_id": float64(1),
			"tags":          []interface{}{"urgent", "estimate"},
		},
	}
}

// ===========================================
// Group Semantics
// ===========================================

func TestEvaluate_EmptyAndGroupIsTrue(t *testing.T) {
	node := &models.ConditionNode{Operator: "and", Rules: []models.ConditionNode{}}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_EmptyOrGroupIsFalse(t *testing.T) {
	node := &models.ConditionNode{Operator: "or", Rules: []models.ConditionNode{}}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_UnknownGroupOperatorFailsClosed(t *testing.T) {
	node := &models.ConditionNode{
		Operator: "xor",
		Rules: []models.ConditionNode{
			{Field: "user.id", Operator: "exists"},
		},
	}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_AndShortCircuits(t *testing.T) {
	node := &models.ConditionNode{
		Operator: "and",
		Rules: []models.ConditionNode{
			{Field: "data.amount", Operator: "gt", Value: float64(9999999)},
			{Field: "user.id", Operator: "eq", Value: "u-1"},
		},
	}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_OrAnyTrue(t *testing.T) {
	node := &models.ConditionNode{
		Operator: "or",
		Rules: []models.ConditionNode{
			{Field: "user.id", Operator: "eq", Value: "somebody-else"},
			{Field: "user.system_level", Operator: "eq", Value: "accounting_manager"},
		},
	}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_NilNodeIsVacuouslyTrue(t *testing.T) {
	assert.True(t, Evaluate(nil, sampleContext()))
}

// ===========================================
// Missing Fields / Fail-Closed
// ===========================================

func TestEvaluate_MissingFieldFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "x.y", Operator: "eq", Value: float64(1)}
	assert.False(t, Evaluate(node, models.Context{}))
}

func TestEvaluate_ExistsOnMissingField(t *testing.T) {
	node := &models.ConditionNode{Field: "data.missing", Operator: "exists"}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_ExistsOnPresentField(t *testing.T) {
	node := &models.ConditionNode{Field: "data.amount", Operator: "exists"}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_UnknownRuleOperatorFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "data.amount", Operator: "approximately", Value: float64(4000000)}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_NilContext(t *testing.T) {
	node := &models.ConditionNode{Field: "user.id", Operator: "eq", Value: "u-1"}
	assert.False(t, Evaluate(node, nil))
}

// ===========================================
// Operators
// ===========================================

func TestEvaluate_NumericComparisons(t *testing.T) {
	ctx := sampleContext()

	assert.True(t, Evaluate(&models.ConditionNode{Field: "data.amount", Operator: "lte", Value: float64(5000000)}, ctx))
	assert.True(t, Evaluate(&models.ConditionNode{Field: "data.amount", Operator: "gte", Value: float64(4000000)}, ctx))
	assert.False(t, Evaluate(&models.ConditionNode{Field: "data.amount", Operator: "gt", Value: float64(4000000)}, ctx))
	assert.True(t, Evaluate(&models.ConditionNode{Field: "data.amount", Operator: "lt", Value: float64(4000001)}, ctx))
}

func TestEvaluate_NumericComparisonOnNonNumberFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "user.system_level", Operator: "gt", Value: float64(10)}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_EqCoercesNumericWidths(t *testing.T) {
	node := &models.ConditionNode{Field: "data.amount", Operator: "eq", Value: 4000000}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_Neq(t *testing.T) {
	assert.True(t, Evaluate(&models.ConditionNode{Field: "user.id", Operator: "neq", Value: "u-2"}, sampleContext()))
	assert.False(t, Evaluate(&models.ConditionNode{Field: "user.id", Operator: "neq", Value: "u-1"}, sampleContext()))
}

func TestEvaluate_InOperator(t *testing.T) {
	node := &models.ConditionNode{
		Field:    "user.system_level",
		Operator: "in",
		Value:    []interface{}{"accounting_manager", "executive"},
	}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_InWithNonArrayValueFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "user.system_level", Operator: "in", Value: "accounting_manager"}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_NotInWithNonArrayValueFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "user.system_level", Operator: "not_in", Value: "executive"}
	assert.False(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_NotIn(t *testing.T) {
	node := &models.ConditionNode{
		Field:    "user.system_level",
		Operator: "not_in",
		Value:    []interface{}{"executive", "director"},
	}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_ContainsOnArray(t *testing.T) {
	node := &models.ConditionNode{Field: "data.tags", Operator: "contains", Value: "urgent"}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_ContainsOnString(t *testing.T) {
	node := &models.ConditionNode{Field: "user.system_level", Operator: "contains", Value: "manager"}
	assert.True(t, Evaluate(node, sampleContext()))
}

// ===========================================
// Field References
// ===========================================

func TestEvaluate_FieldReferenceValue(t *testing.T) {
	node := &models.ConditionNode{Field: "user.department_id", Operator: "eq", Value: "data.department_id"}
	assert.True(t, Evaluate(node, sampleContext()))
}

func TestEvaluate_FieldReferenceUnresolvedFailsClosed(t *testing.T) {
	node := &models.ConditionNode{Field: "user.department_id", Operator: "eq", Value: "data.nonexistent"}
	assert.False(t, Evaluate(node, sampleContext()))
}

// Combined policy from a real flow: amount cap and same-department check.
func TestEvaluate_AmountAndDepartmentPolicy(t *testing.T) {
	node := &models.ConditionNode{
		Operator: "and",
		Rules: []models.ConditionNode{
			{Field: "data.amount", Operator: "lte", Value: float64(5000000)},
			{Field: "user.department_id", Operator: "eq", Value: "data.department_id"},
		},
	}

	match := models.Context{
		"user": map[string]interface{}{"department_id": float64(1)},
		"data": map[string]interface{}{"amount": float64(4000000), "department_id": float64(1)},
	}
	assert.True(t, Evaluate(node, match))

	otherDept := models.Context{
		"user": map[string]interface{}{"department_id": float64(2)},
		"data": map[string]interface{}{"amount": float64(4000000), "department_id": float64(1)},
	}
	assert.False(t, Evaluate(node, otherDept))
}

// ===========================================
// Purity
// ===========================================

func TestEvaluate_DeterministicAndNonMutating(t *testing.T) {
	node := &models.ConditionNode{
		Operator: "and",
		Rules: []models.ConditionNode{
			{Field: "data.amount", Operator: "lte", Value: float64(5000000)},
			{Field: "user.department_id", Operator: "eq", Value: "data.department_id"},
		},
	}
	ctx := sampleContext()

	first := Evaluate(node, ctx)
	second := Evaluate(node, ctx)

	assert.Equal(t, first, second)
	assert.Equal(t, sampleContext(), ctx)
	assert.Equal(t, "and", node.Operator)
	assert.Len(t, node.Rules, 2)
}
