package engine

import (
	"fmt"

	"taskline/internal/domain"
	"taskline/internal/policy"
)

// AuthorizationError means the policy denied the action. It is terminal:
// callers must not retry without a change of identity or resource state.
type AuthorizationError struct {
	Identity domain.Identity
	Action   policy.Action
}

func (e *AuthorizationError) Error() string {
	return policy.Describe(e.Identity, e.Action, policy.Deny)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// MutationFailedError means the store rejected a write before it committed.
// No audit entry exists for the attempt.
type MutationFailedError struct {
	Op  string
	Err error
}

func (e *MutationFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationFailedError) Unwrap() error { return e.Err }

// AuditWriteFailedError means the mutation committed but the trail append did
// not. The call that produced it still returns the mutated resource, so the
// caller can retry just the append without re-running the mutation.
type AuditWriteFailedError struct {
	Action string
	Err    error
}

func (e *AuditWriteFailedError) Error() string {
	return fmt.Sprintf("mutation committed but audit append failed for %q: %v", e.Action, e.Err)
}

func (e *AuditWriteFailedError) Unwrap() error { return e.Err }
