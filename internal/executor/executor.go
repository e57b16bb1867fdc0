// Package executor declares the GraphQL subscription executor contract
// the handler depends on. The real execution engine is out of scope
// (spec.md §1); this package only names the interface plus the Func
// adapter for plain functions. See internal/watermillexec
// for an example real-ish implementation.
package executor

import (
	"context"

	"graphqlws/internal/protocol"
)

// Executor runs a GraphQL subscription request and returns a channel of
// responses. Both channels must be closed when the subscription ends
// (normally or due to ctx cancellation): the handler sends complete only
// once respCh and errCh are both closed. An executor that fails outright
// should close respCh and report the failure on errCh instead of panicking
// (spec.md §6 executor contract, §5 cancellation).
type Executor interface {
	ExecuteSubscription(ctx context.Context, req protocol.GraphQLRequest) (respCh <-chan protocol.GraphQLResponse, errCh <-chan error)
}

// Func adapts a plain function to an Executor.
type Func func(ctx context.Context, req protocol.GraphQLRequest) (<-chan protocol.GraphQLResponse, <-chan error)

func (f Func) ExecuteSubscription(ctx context.Context, req protocol.GraphQLRequest) (<-chan protocol.GraphQLResponse, <-chan error) {
	return f(ctx, req)
}
