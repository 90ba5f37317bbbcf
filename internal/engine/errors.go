package engine

import "errors"

// Expected-at-runtime failures. These cross the service boundary as typed
// results and map to user-facing messages; none of them should be retried
// without changing the actor, step or request state.
var (
	ErrNotCurrentStep         = errors.New("step is not the request's current step")
	ErrNotAuthorizedApprover  = errors.New("user is not an authorized approver for this step")
	ErrRequestAlreadyTerminal = errors.New("request is already in a terminal status")
	ErrDelegationNotAllowed   = errors.New("delegation is not allowed on this step")
	ErrNoEligibleApprover     = errors.New("no eligible approver for this step")
	ErrDeniedByPolicy         = errors.New("action is denied by policy")
)

// Programmer-error inputs, distinct from the runtime failures above.
var (
	ErrStepNotInFlow  = errors.New("step does not belong to the request's flow")
	ErrFlowHasNoSteps = errors.New("flow has no active steps")
	ErrUnknownAction  = errors.New("unknown approval action")
)
