package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/sentinel-project/sentinel/internal/domain/action"
)

// NewPolicyEnvironment creates a CEL environment for expression conditions.
// It exposes the evaluated request's fields as variables:
//   - action_type, target_resource, agent_id, request_id: strings
//   - amount: double, 0.0 when the request carries no numeric amount
//   - parameters, context: map<string, dyn>
//   - request_time: timestamp
//
// plus a glob(pattern, name) function for wildcard matching.
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("action_type", cel.StringType),
		cel.Variable("target_resource", cel.StringType),
		cel.Variable("agent_id", cel.StringType),
		cel.Variable("request_id", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("parameters", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request_time", cel.TimestampType),

		// glob: wildcard pattern matching for resource names.
		// Usage: glob("prod-*", target_resource)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// buildActivation maps a request onto the environment's variables.
func buildActivation(req *action.Request) map[string]interface{} {
	amount, _ := req.Amount()

	parameters := req.Parameters
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	reqContext := req.Context
	if reqContext == nil {
		reqContext = map[string]interface{}{}
	}

	return map[string]interface{}{
		"action_type":     string(req.ActionType),
		"target_resource": req.TargetResource,
		"agent_id":        req.AgentID,
		"request_id":      req.RequestID,
		"amount":          amount,
		"parameters":      parameters,
		"context":         reqContext,
		"request_time":    req.ReceivedAt,
	}
}
