package types

import (
	"errors"
	"fmt"
)

// Domain error kinds. Transport layers map these onto HTTP statuses and
// refusal reasons; the pipeline converts invariant violations into refusals,
// never into fabricated content.
var (
	// ErrVerificationUnsupported rejects a transition to VERIFIED that lacks
	// the required anchored source.
	ErrVerificationUnsupported = errors.New("verification unsupported: no anchored source")

	// ErrBranchViolation rejects any write whose confidence and branch fall
	// in different partition cells.
	ErrBranchViolation = errors.New("branch violation: confidence outside branch partition")

	// ErrNotFound reports an absent node or checkpoint id.
	ErrNotFound = errors.New("not found")

	// ErrAdapterUnavailable marks a council adapter that cannot serve
	// requests. Non-fatal: the member is skipped.
	ErrAdapterUnavailable = errors.New("adapter unavailable")

	// ErrAdapterTimeout marks a council adapter call that exceeded its
	// deadline. Non-fatal: counted as a non-response.
	ErrAdapterTimeout = errors.New("adapter timeout")

	// ErrConsensusNotReached surfaces as a NO_CONSENSUS refusal.
	ErrConsensusNotReached = errors.New("consensus not reached")

	// ErrDeadlineExceeded surfaces as a TIMEOUT refusal.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrPersistenceFailure is fatal and propagated unchanged.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// NotFoundError wraps ErrNotFound with the missing entity's identity.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
