package models

import (
	"strings"
)

// Group operators for condition nodes.
const (
	GroupAnd = "and"
	GroupOr  = "or"
)

// Rule operators for condition leaves.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNotIn    = "not_in"
	OpExists   = "exists"
	OpContains = "contains"
)

// ConditionNode is a recursive boolean rule tree. A node is either a group
// (Operator "and"/"or" over Rules) or a leaf rule comparing a context field
// against a value. The JSON shape is the interchange format with storage:
//
//	{"operator": "and", "rules": [...]}
//	{"field": "user.department_id", "operator": "eq", "value": 1}
//
// A leaf Value may be a literal or a reference to another context field
// (e.g. "data.department_id"), resolved during evaluation.
type ConditionNode struct {
	Operator string          `json:"operator,omitempty"`
	Rules    []ConditionNode `json:"rules,omitempty"`
	Field    string          `json:"field,omitempty"`
	Value    interface{}     `json:"value,omitempty"`
}

// IsGroup reports whether the node is a group rather than a leaf rule.
// Leaves always carry a field path; groups never do.
func (n *ConditionNode) IsGroup() bool {
	return n.Field == ""
}

// Context is the read-only attribute bag condition trees are evaluated
// against. Top-level keys are the context roots (user, position, department,
// data); nested maps are addressed with dot paths. Callers assemble a fresh
// Context per evaluation and must not mutate it afterwards.
type Context map[string]interface{}

// Context roots recognized as field-reference prefixes in rule values.
var contextRoots = []string{"user.", "position.", "department.", "data."}

// Lookup resolves a dot path against the context. The second return is false
// when any segment of the path is missing or a non-map value is traversed,
// making "missing attribute" an explicit case instead of a panic.
func (c Context) Lookup(path string) (interface{}, bool) {
	if c == nil || path == "" {
		return nil, false
	}
	var current interface{} = map[string]interface{}(c)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// IsFieldRef reports whether a rule value names another context field rather
// than a literal. Only strings with a recognized context-root prefix are
// treated as references.
func IsFieldRef(value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	for _, root := range contextRoots {
		if strings.HasPrefix(s, root) {
			return s, true
		}
	}
	return "", false
}
