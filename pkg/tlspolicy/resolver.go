package tlspolicy

import (
	"context"
	"errors"
	"fmt"
)

// Mode is the terminal outcome of a resolution.
type Mode string

const (
	// ModeDisabled instructs the transport to connect in plaintext.
	ModeDisabled Mode = "disabled"
	// ModeRequired instructs the transport to reject connections that do
	// not negotiate TLS with the decision's options.
	ModeRequired Mode = "required"
	// ModeOptional instructs the transport to accept both plaintext and
	// TLS-negotiated connections.
	ModeOptional Mode = "optional"
	// ModeFailed instructs the transport to abort the connection attempt
	// and surface the cause. It is never downgraded to ModeDisabled.
	ModeFailed Mode = "failed"
)

// Config is the static security configuration resolved per connection
// attempt. Zero value means TLS disabled.
type Config struct {
	Enabled     bool
	Optional    bool
	Provider    Provider
	BaseOptions Options
}

// Decision is the resolver output consumed by the transport layer. Options
// is populated only for ModeRequired and ModeOptional; Cause only for
// ModeFailed.
type Decision struct {
	Mode    Mode
	Options Options
	Cause   error
}

// ErrUnknownTarget is returned when a DynamicCall names an operation the
// resolver's lookup does not know.
var ErrUnknownTarget = errors.New("unknown provider target")

// Resolver computes connection decisions from static configuration. It holds
// no mutable state; a single Resolver is safe for concurrent use and distinct
// resolutions never interact.
type Resolver struct {
	ops OperationLookup
}

// NewResolver constructs a Resolver. ops may be nil when no DynamicCall
// providers are in play.
func NewResolver(ops OperationLookup) *Resolver {
	return &Resolver{ops: ops}
}

// Resolve produces the connection decision for cfg.
//
// When cfg.Enabled is false the decision is ModeDisabled and no other field
// is read; the provider is never invoked. Otherwise the provider (if any) is
// invoked exactly once. An explicit provider error yields ModeFailed carrying
// that error unmodified. On success the provider's extra options are
// concatenated ahead of cfg.BaseOptions, so extra options win duplicate-key
// lookups, and the mode follows cfg.Optional.
//
// Panics raised by provider implementations are not recovered here; they
// propagate to the caller. The resolver guards against recoverable
// configuration errors, not against defective providers.
func (r *Resolver) Resolve(ctx context.Context, cfg Config) Decision {
	if !cfg.Enabled {
		return Decision{Mode: ModeDisabled}
	}

	extra, err := r.invoke(ctx, cfg.Provider)
	if err != nil {
		return Decision{Mode: ModeFailed, Cause: err}
	}

	merged := extra.Merge(cfg.BaseOptions)
	if cfg.Optional {
		return Decision{Mode: ModeOptional, Options: merged}
	}
	return Decision{Mode: ModeRequired, Options: merged}
}

// invoke dispatches on the closed provider union. A nil provider is success
// with no extra options.
func (r *Resolver) invoke(ctx context.Context, provider Provider) (Options, error) {
	switch p := provider.(type) {
	case nil:
		return nil, nil
	case Closure:
		if p == nil {
			return nil, errors.New("closure provider is nil")
		}
		return p(ctx)
	case DynamicCall:
		if r.ops == nil {
			return nil, fmt.Errorf("dynamic call %q: no operation lookup configured: %w", p.Target, ErrUnknownTarget)
		}
		op, ok := r.ops.Lookup(p.Target)
		if !ok {
			return nil, fmt.Errorf("dynamic call %q: %w", p.Target, ErrUnknownTarget)
		}
		return op(ctx, p.Args...)
	default:
		return nil, fmt.Errorf("unsupported provider variant %T", provider)
	}
}
