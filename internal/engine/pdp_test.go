package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"decision-service/internal/models"
)

func approveEstimateOp() Operation {
	return Operation{BusinessCode: "estimate", Action: "approve", ResourceType: "estimate"}
}

func allowPolicy(name string, priority int, conditions string) models.Policy {
	return models.Policy{
		Name:         name,
		BusinessCode: "estimate",
		Action:       "approve",
		ResourceType: "estimate",
		Conditions:   datatypes.JSON(conditions),
		Effect:       models.EffectAllow,
		Priority:     priority,
		IsActive:     true,
	}
}

func denyPolicy(name string, priority int, conditions string) models.Policy {
	p := allowPolicy(name, priority, conditions)
	p.Effect = models.EffectDeny
	return p
}

// ===========================================
// Verdicts
// ===========================================

func TestDecide_SingleAllow(t *testing.T) {
	policies := []models.Policy{
		allowPolicy("managers-approve", 10, `{"field": "user.system_level", "operator": "eq", "value": "accounting_manager"}`),
	}
	ctx := models.Context{"user": map[string]interface{}{"system_level": "accounting_manager"}}

	assert.Equal(t, VerdictAllow, Decide(policies, approveEstimateOp(), ctx))
}

func TestDecide_DenyOverridesAllow(t *testing.T) {
	// The allow carries the higher priority; deny must still win.
	policies := []models.Policy{
		allowPolicy("managers-approve", 100, `{"field": "user.system_level", "operator": "eq", "value": "accounting_manager"}`),
		denyPolicy("freeze-large-amounts", 1, `{"field": "data.amount", "operator": "gt", "value": 10000000}`),
	}
	ctx := models.Context{
		"user": map[string]interface{}{"system_level": "accounting_manager"},
		"data": map[string]interface{}{"amount": float64(25000000)},
	}

	assert.Equal(t, VerdictDeny, Decide(policies, approveEstimateOp(), ctx))
}

func TestDecide_NoMatchIsIndeterminate(t *testing.T) {
	policies := []models.Policy{
		allowPolicy("managers-approve", 10, `{"field": "user.system_level", "operator": "eq", "value": "accounting_manager"}`),
	}
	ctx := models.Context{"user": map[string]interface{}{"system_level": "site_worker"}}

	assert.Equal(t, VerdictIndeterminate, Decide(policies, approveEstimateOp(), ctx))
}

func TestDecide_NoPoliciesIsIndeterminate(t *testing.T) {
	assert.Equal(t, VerdictIndeterminate, Decide(nil, approveEstimateOp(), models.Context{}))
}

func TestDecide_NilConditionsAlwaysMatch(t *testing.T) {
	policies := []models.Policy{allowPolicy("open-gate", 0, `null`)}

	assert.Equal(t, VerdictAllow, Decide(policies, approveEstimateOp(), models.Context{}))
}

// ===========================================
// Applicability Filters
// ===========================================

func TestDecide_FiltersByOperation(t *testing.T) {
	policies := []models.Policy{allowPolicy("open-gate", 0, `null`)}

	otherAction := Operation{BusinessCode: "estimate", Action: "delete", ResourceType: "estimate"}
	assert.Equal(t, VerdictIndeterminate, Decide(policies, otherAction, models.Context{}))

	otherCode := Operation{BusinessCode: "purchase_order", Action: "approve", ResourceType: "estimate"}
	assert.Equal(t, VerdictIndeterminate, Decide(policies, otherCode, models.Context{}))
}

func TestDecide_EmptyResourceTypeMatchesAny(t *testing.T) {
	p := allowPolicy("open-gate", 0, `null`)
	p.ResourceType = ""

	assert.Equal(t, VerdictAllow, Decide([]models.Policy{p}, approveEstimateOp(), models.Context{}))
}

func TestDecide_InactivePolicyIgnored(t *testing.T) {
	p := allowPolicy("open-gate", 0, `null`)
	p.IsActive = false

	assert.Equal(t, VerdictIndeterminate, Decide([]models.Policy{p}, approveEstimateOp(), models.Context{}))
}

func TestDecide_MalformedConditionsNeverMatch(t *testing.T) {
	p := denyPolicy("broken-deny", 0, `{"operator": "and", "rules": [`)

	// A broken deny cannot fire; with nothing else matching the verdict is
	// indeterminate and the caller applies its own default.
	assert.Equal(t, VerdictIndeterminate, Decide([]models.Policy{p}, approveEstimateOp(), models.Context{}))
}

// ===========================================
// Explain Ordering
// ===========================================

func TestExplain_DenialsFirstThenPriority(t *testing.T) {
	policies := []models.Policy{
		allowPolicy("allow-low", 5, `null`),
		allowPolicy("allow-high", 50, `null`),
		denyPolicy("deny-low", 1, `null`),
		denyPolicy("deny-high", 20, `null`),
	}

	verdict, matches := Explain(policies, approveEstimateOp(), models.Context{})

	assert.Equal(t, VerdictDeny, verdict)
	assert.Len(t, matches, 4)
	assert.Equal(t, "deny-high", matches[0].Policy.Name)
	assert.Equal(t, "deny-low", matches[1].Policy.Name)
	assert.Equal(t, "allow-high", matches[2].Policy.Name)
	assert.Equal(t, "allow-low", matches[3].Policy.Name)
}

func TestExplain_NoMatchReturnsNoMatches(t *testing.T) {
	verdict, matches := Explain(nil, approveEstimateOp(), models.Context{})

	assert.Equal(t, VerdictIndeterminate, verdict)
	assert.Empty(t, matches)
}
