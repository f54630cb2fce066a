// Package dispatch validates incoming tool calls and executes them. The
// validator normalizes a raw call against the catalog and session context;
// the executor routes the normalized call to its execution strategy.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/platform"
	"toolgate/internal/infra/registry"
)

// EnvToken is the environment-level token fallback.
const EnvToken = "TOOLGATE_TOKEN"

const authGuidance = "No platform token is available for this call. Pass one in call metadata under \"token\", configure it on the server, or export " + EnvToken + ". Tokens are created in the platform console under Settings / API tokens."

const detailGuidance = "Use the fetch-actor-details tool to inspect the tool's input schema."

// Policy is the deployment's authentication stance.
type Policy struct {
	// Token is the statically configured fallback token.
	Token string

	// AllowUnauthenticated permits calls with no resolvable token.
	AllowUnauthenticated bool
}

// UserResolver resolves a token to its owning user id. Satisfied by
// *platform.Caches.
type UserResolver interface {
	UserID(ctx context.Context, token string) (string, error)
}

// Validator turns raw call requests into normalized calls, failing fast at
// the first violated precondition. Every user-facing rejection is logged
// before it is returned: some clients silently drop protocol error text.
type Validator struct {
	catalog  *registry.Catalog
	users    UserResolver
	policy   Policy
	envToken func() string
	logger   *zap.Logger
}

// NewValidator builds a validator over the catalog.
func NewValidator(catalog *registry.Catalog, users UserResolver, policy Policy, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		catalog:  catalog,
		users:    users,
		policy:   policy,
		envToken: func() string { return os.Getenv(EnvToken) },
		logger:   logger.Named("validator"),
	}
}

// Validate applies the validation steps strictly in order. A missing session
// id is a host defect and fails hard; everything after that is a user/client
// error reported back over the protocol.
func (v *Validator) Validate(ctx context.Context, req *domain.CallRequest) (*domain.NormalizedCall, error) {
	if req.Meta.SessionID == "" {
		v.logger.Error("call arrived without a session id", zap.String("tool", req.Name))
		return nil, domain.ErrMissingSession
	}

	name := normalizeToolName(req.Name)

	token := firstNonEmpty(req.Meta.Token, v.policy.Token, v.envToken())
	if token == "" && !v.policy.AllowUnauthenticated {
		return nil, v.reject(name, authGuidance)
	}

	userID := ""
	if token != "" && v.users != nil {
		id, err := v.users.UserID(ctx, token)
		if err != nil {
			return nil, v.reject(name, "The platform token could not be verified: %v. "+authGuidance, err)
		}
		userID = id
	}

	tool, ok := v.catalog.Resolve(name)
	if !ok {
		return nil, v.reject(name, "Tool %q is not available. Available tools: %s.", name, availableNames(v.catalog))
	}

	if req.Arguments == nil {
		return nil, v.reject(name, "Call to %q carries no arguments object; pass one even when empty. %s", name, detailGuidance)
	}

	args := platform.DecodeArgumentKeys(req.Arguments)

	if tool.Validator != nil {
		if violations := tool.Validator(args); len(violations) > 0 {
			return nil, v.reject(name, "Arguments for %q failed validation:\n%s\n%s", name, formatViolations(violations), detailGuidance)
		}
	}

	if req.Task != nil && !tool.SupportsTasks() {
		return nil, v.reject(name, "Tool %q does not support task-mode execution; drop the task parameter or pick a tool that does.", name)
	}

	entitlements := make(map[string]struct{}, len(req.Meta.Entitlements))
	for _, id := range req.Meta.Entitlements {
		entitlements[id] = struct{}{}
	}

	return &domain.NormalizedCall{
		Tool:          tool,
		Args:          args,
		Token:         token,
		UserID:        userID,
		SessionID:     req.Meta.SessionID,
		ProgressToken: req.Meta.ProgressToken,
		Entitlements:  entitlements,
		Task:          req.Task,
	}, nil
}

func (v *Validator) reject(tool, format string, args ...any) error {
	err := domain.NewInvalidParams(format, args...)
	v.logger.Warn("call rejected", zap.String("tool", tool), zap.String("reason", err.Message))
	return err
}

// normalizeToolName strips namespace prefixes some clients prepend, e.g.
// "local__tools__fetch-actor-details" becomes "fetch-actor-details".
func normalizeToolName(name string) string {
	parts := strings.Split(name, "__")
	return parts[len(parts)-1]
}

func availableNames(catalog *registry.Catalog) string {
	names := catalog.Names()
	if len(names) == 0 {
		return "none"
	}
	if len(names) > domain.MaxNamesInNotFound {
		names = names[:domain.MaxNamesInNotFound]
	}
	return strings.Join(names, ", ")
}

func formatViolations(violations []domain.SchemaViolation) string {
	lines := make([]string, 0, len(violations))
	for _, violation := range violations {
		path := violation.Path
		if path == "" {
			path = "(arguments)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", path, violation.Reason))
	}
	return strings.Join(lines, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
