package boundary

import "context"

// StaticIdentity implements internal/subplanner.Identity with a single
// fixed caller DN. Real DN
// resolution is proxy/auth plumbing explicitly out of scope per spec.md §1;
// a gridassignd process runs under one service identity for its lifetime,
// so "static" is the whole adapter.
type StaticIdentity struct {
	DN string
}

// CallerDN implements the Identity collaborator.
func (s StaticIdentity) CallerDN(ctx context.Context) (string, error) {
	return s.DN, nil
}
