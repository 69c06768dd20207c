package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

const defaultEntrypoint = "tlsgate/decision"

// GateOptions control gate construction.
type GateOptions struct {
	// Entrypoint is the Rego decision path (e.g. "tlsgate/decision").
	Entrypoint string
	// Modules contains the Rego modules to load, keyed by filename.
	Modules map[string]string
}

// Verdict is the outcome of auditing a resolved decision.
type Verdict struct {
	Allow  bool
	Reason string
}

// Gate audits resolved connection decisions with embedded OPA modules.
// A Gate is safe for concurrent use.
type Gate struct {
	entrypoint  string
	moduleOrder []string
	parsed      map[string]*ast.Module
	queries     map[string]*rego.PreparedEvalQuery
	mu          sync.RWMutex
}

// NewGate parses and compiles the supplied Rego modules. The default
// entrypoint is warmed eagerly so syntax errors surface at startup rather
// than on the first audited connection.
func NewGate(ctx context.Context, opts GateOptions) (*Gate, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	if len(opts.Modules) == 0 {
		return nil, errors.New("audit gate requires at least one rego module")
	}

	order := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		order = append(order, name)
	}
	sort.Strings(order)

	parsed := make(map[string]*ast.Module, len(opts.Modules))
	for _, name := range order {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	gate := &Gate{
		entrypoint:  entry,
		moduleOrder: order,
		parsed:      parsed,
		queries:     make(map[string]*rego.PreparedEvalQuery),
	}

	if _, err := gate.preparedQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}
	return gate, nil
}

// Check audits a resolved decision against the loaded modules. A missing
// or undefined decision document allows the connection: the gate only
// blocks what a rule explicitly denies.
func (g *Gate) Check(ctx context.Context, decision tlspolicy.Decision) (Verdict, error) {
	prepared, err := g.preparedQuery(ctx, g.entrypoint)
	if err != nil {
		return Verdict{}, fmt.Errorf("prepare query: %w", err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(decisionInput(decision)))
	if err != nil {
		return Verdict{}, fmt.Errorf("audit decision: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Verdict{Allow: true}, nil
	}

	payload, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Verdict{}, fmt.Errorf("audit decision: unexpected result type %T", results[0].Expressions[0].Value)
	}

	allow, _ := payload["allow"].(bool)
	reason, _ := payload["reason"].(string)
	return Verdict{Allow: allow, Reason: reason}, nil
}

// decisionInput flattens a resolved decision into the Rego input document.
// Options keep their resolved order; duplicate keys stay visible so rules
// can audit shadowed entries.
func decisionInput(decision tlspolicy.Decision) map[string]any {
	options := make([]map[string]any, 0, len(decision.Options))
	for _, opt := range decision.Options {
		options = append(options, map[string]any{
			"key":   opt.Key,
			"value": opt.Value,
		})
	}

	input := map[string]any{
		"mode":    string(decision.Mode),
		"options": options,
	}
	if decision.Cause != nil {
		input["cause"] = decision.Cause.Error()
	}
	return input
}

func (g *Gate) preparedQuery(ctx context.Context, entry string) (*rego.PreparedEvalQuery, error) {
	g.mu.RLock()
	if prepared, ok := g.queries[entry]; ok {
		g.mu.RUnlock()
		return prepared, nil
	}
	g.mu.RUnlock()

	query := "data." + strings.ReplaceAll(entry, "/", ".")

	opts := make([]func(*rego.Rego), 0, len(g.parsed)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range g.moduleOrder {
		opts = append(opts, rego.ParsedModule(g.parsed[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Another goroutine may have prepared the query first; keep its entry.
	if existing, ok := g.queries[entry]; ok {
		return existing, nil
	}
	g.queries[entry] = &prepared
	return &prepared, nil
}
