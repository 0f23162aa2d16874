package observation

import "fmt"

// NotFoundError reports a lookup for an observation id that does not exist.
// It enables typed error discrimination via errors.As.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("observation %s not found", e.ID)
}

// AlreadyResolvedError reports a resolve call against an observation that is
// already resolved. Resolved is terminal, so the reconciler logs and skips
// these rather than failing a cycle.
type AlreadyResolvedError struct {
	ID string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("observation %s is already resolved", e.ID)
}
