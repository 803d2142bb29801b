package engine

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.donorhub.authz.allow"

//go:embed authz.rego
var defaultPolicy string

// RoleEvaluator evaluates the role policy with OPA Rego. The query is
// prepared once; evaluations are safe for concurrent use.
type RoleEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewRoleEvaluator compiles the embedded role policy.
func NewRoleEvaluator(ctx context.Context) (*RoleEvaluator, error) {
	return NewRoleEvaluatorFromModule(ctx, defaultPolicy)
}

// NewRoleEvaluatorFromModule compiles module, which must define
// data.donorhub.authz.allow.
func NewRoleEvaluatorFromModule(ctx context.Context, module string) (*RoleEvaluator, error) {
	pq, err := rego.New(
		rego.Query(allowQuery),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile role policy: %w", err)
	}
	return &RoleEvaluator{query: pq}, nil
}

// Allowed reports whether role may perform action. Anything other than a
// boolean true result denies.
func (e *RoleEvaluator) Allowed(ctx context.Context, role, action string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":   role,
		"action": action,
	}))
	if err != nil {
		return false, fmt.Errorf("eval role policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck evaluates a known input and verifies the expected decision.
func (e *RoleEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.Allowed(ctx, "admin", ActionSessionsClear)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("role policy denied admin %s", ActionSessionsClear)
	}
	return nil
}
