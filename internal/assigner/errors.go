package assigner

import "errors"

// Sentinel errors for the Assigner Controller's error kinds (spec.md §7).
// Callers use errors.Is to distinguish them; each is wrapped with
// fmt.Errorf("%w: ...") at the point of occurrence so the message carries
// task-specific context.
var (
	// ErrMissingClaim: no Cloud-Task row exists for the task; caller
	// contract violation.
	ErrMissingClaim = errors.New("assigner: missing cloud-task claim")

	// ErrBadMetadata: required per-task metadata (expectedRW[self] or
	// priorityMap[self]) is missing; recoverable on retry.
	ErrBadMetadata = errors.New("assigner: bad decision metadata")

	// ErrLocatorFailed: the Replica Locator returned failure after
	// retries during T1 scoring; fatal for this decision.
	ErrLocatorFailed = errors.New("assigner: replica locator failed")

	// ErrZeroWeight: weighted choice degenerated to total weight 0.
	ErrZeroWeight = errors.New("assigner: zero total weight in weighted choice")

	// ErrSubscriptionRequired: the T2 path was chosen but the
	// Subscription Planner declined or failed.
	ErrSubscriptionRequired = errors.New("assigner: subscription required but planner declined")

	// ErrNoCandidates: every cloud was filtered out before or after
	// scoring.
	ErrNoCandidates = errors.New("assigner: no candidate clouds")

	// ErrCommitFailed: the Cloud-Task row write was rejected.
	ErrCommitFailed = errors.New("assigner: commit failed")
)
