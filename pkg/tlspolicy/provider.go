package tlspolicy

import "context"

// Operation is a named external option source. Implementations may block and
// may perform arbitrary external work (network fetches, file reads); callers
// bound latency through ctx.
type Operation func(ctx context.Context, args ...any) (Options, error)

// OperationLookup resolves DynamicCall targets to operations. The providers
// package supplies the standard registry implementation.
type OperationLookup interface {
	Lookup(target string) (Operation, bool)
}

// Provider is a deferred source of extra TLS options, invoked once per
// resolution. It is a closed union: DynamicCall and Closure are the only
// variants, each with a single invocation path.
type Provider interface {
	isProvider()
}

// DynamicCall names an operation to invoke with a fixed argument list.
type DynamicCall struct {
	Target string
	Args   []any
}

func (DynamicCall) isProvider() {}

// Closure is a zero-argument callable provider.
type Closure func(ctx context.Context) (Options, error)

func (Closure) isProvider() {}
