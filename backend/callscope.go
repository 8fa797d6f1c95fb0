package backend

import "context"

// callScope stands in for the teacher's thread-local request-scratch space
// (proxy/proxy.go keeps one buffer per goroutine keyed off goroutine id via
// its onceKey helper). Go has no thread-locals, so the scope is carried
// explicitly on the context instead. Connection.Call never creates one; a
// caller stamps its context once (prefetch workers do so once per worker)
// and every Call made with that context shares the scope.
type callScope struct {
	id string
}

type callScopeKey struct{}

// WithCallScope returns a context carrying a fresh per-call scope, keyed by
// id (typically a request or job UUID). Passing the same id twice
// intentionally shares one scope's throttling state across both calls.
func WithCallScope(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callScopeKey{}, &callScope{id: id})
}

func callScopeFromContext(ctx context.Context) *callScope {
	s, _ := ctx.Value(callScopeKey{}).(*callScope)
	return s
}
