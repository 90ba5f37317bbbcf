package engine

import (
	"sort"

	"decision-service/internal/models"
)

// Verdict is the three-valued outcome of policy decision.
type Verdict string

const (
	VerdictAllow         Verdict = "allow"
	VerdictDeny          Verdict = "deny"
	VerdictIndeterminate Verdict = "indeterminate"
)

// Operation identifies the action a policy decision is requested for.
type Operation struct {
	BusinessCode string `json:"businessCode"`
	Action       string `json:"action"`
	ResourceType string `json:"resourceType,omitempty"`
}

// PolicyMatch is one matching policy in an explanation, ordered so the first
// entry is the one reported as "winning" for audit purposes.
type PolicyMatch struct {
	Policy *models.Policy `json:"policy"`
	Effect string         `json:"effect"`
}

// Decide evaluates the candidate policies for an operation and context.
// Deny overrides allow regardless of priority; when no policy matches the
// verdict is indeterminate and the caller applies its own default.
func Decide(policies []models.Policy, op Operation, ctx models.Context) Verdict {
	verdict, _ := Explain(policies, op, ctx)
	return verdict
}

// Explain returns the verdict along with every matching policy, denials
// first and higher priority first within the same effect. Priority orders
// the explanation only; it never lets an allow beat a deny.
func Explain(policies []models.Policy, op Operation, ctx models.Context) (Verdict, []PolicyMatch) {
	var matches []PolicyMatch
	for i := range policies {
		p := &policies[i]
		if !policyApplies(p, op) {
			continue
		}
		condition, err := p.ConditionTree()
		if err != nil {
			// Malformed conditions never match.
			continue
		}
		if !Evaluate(condition, ctx) {
			continue
		}
		matches = append(matches, PolicyMatch{Policy: p, Effect: p.Effect})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Effect != matches[j].Effect {
			return matches[i].Effect == models.EffectDeny
		}
		return matches[i].Policy.Priority > matches[j].Policy.Priority
	})

	switch {
	case len(matches) == 0:
		return VerdictIndeterminate, nil
	case matches[0].Effect == models.EffectDeny:
		return VerdictDeny, matches
	default:
		return VerdictAllow, matches
	}
}

func policyApplies(p *models.Policy, op Operation) bool {
	if !p.IsActive {
		return false
	}
	if p.BusinessCode != op.BusinessCode {
		return false
	}
	if p.Action != op.Action {
		return false
	}
	if p.ResourceType != "" && p.ResourceType != op.ResourceType {
		return false
	}
	return true
}
