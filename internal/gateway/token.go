package gateway

import "context"

// StaticTokenSource is a TokenSource for Gateway backends that have no real
// bearer-token lifecycle (the Postgres backend authenticates via its
// connection string, not a refreshable token). Refresh is a no-op: the
// AuthExpired branch of Retrying is unreachable against this backend, but
// the interface must still be satisfied so Retrying can wrap it uniformly
// with a future REST-backed Gateway that does expire tokens.
type StaticTokenSource struct {
	token string
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token() string { return s.token }

func (s *StaticTokenSource) Refresh(ctx context.Context) error { return nil }

var _ TokenSource = (*StaticTokenSource)(nil)
