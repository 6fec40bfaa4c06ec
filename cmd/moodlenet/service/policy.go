package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HuongNV13/moodle/common/cache"
	"github.com/HuongNV13/moodle/common/config"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/google/cel-go/cel"
)

// roleCacheTTL bounds how long a capability decision may lag behind an
// enrolment change
const roleCacheTTL = 5 * time.Minute

// roleSource resolves the role a user holds in a course
type roleSource interface {
	GetUserRole(ctx context.Context, userID, courseID int64) (string, error)
}

// PolicyService decides whether a user may share a course's content. The
// decision is a CEL expression over the site toggle and the user's role, so
// deployments can tighten or loosen the rule without a code change.
type PolicyService struct {
	expression string
	enabled    bool
	roles      roleSource
	roleCache  cache.Cache
	log        *logger.Logger

	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewPolicyService creates a policy service for the configured share policy
func NewPolicyService(cfg *config.Config, roles roleSource, roleCache cache.Cache, log *logger.Logger) *PolicyService {
	return &PolicyService{
		expression: cfg.MoodleNet.SharePolicy,
		enabled:    cfg.MoodleNet.Enabled,
		roles:      roles,
		roleCache:  roleCache,
		log:        log,
		programs:   make(map[string]cel.Program),
	}
}

// Allows reports whether the user may share content from the course
func (s *PolicyService) Allows(ctx context.Context, userID, courseID int64) (bool, error) {
	role, err := s.userRole(ctx, userID, courseID)
	if err != nil {
		return false, err
	}

	return s.evaluate(s.expression, map[string]interface{}{
		"enabled":  s.enabled,
		"role":     role,
		"userid":   userID,
		"courseid": courseID,
	})
}

// userRole resolves the user's role in the course, caching positive and
// negative answers alike
func (s *PolicyService) userRole(ctx context.Context, userID, courseID int64) (string, error) {
	key := fmt.Sprintf("role:%d:%d", userID, courseID)

	if cached, ok, err := s.roleCache.Get(ctx, key); err == nil && ok {
		return string(cached), nil
	}

	role, err := s.roles.GetUserRole(ctx, userID, courseID)
	if err != nil {
		return "", err
	}

	if err := s.roleCache.Set(ctx, key, []byte(role), roleCacheTTL); err != nil {
		s.log.Warn("failed to cache user role", "key", key, "error", err)
	}

	return role, nil
}

// evaluate compiles the expression on first use and evaluates it against the
// given variables
func (s *PolicyService) evaluate(expr string, vars map[string]interface{}) (bool, error) {
	s.mu.RLock()
	prg, exists := s.programs[expr]
	s.mu.RUnlock()

	if !exists {
		var err error
		prg, err = compilePolicy(expr)
		if err != nil {
			return false, err
		}

		s.mu.Lock()
		s.programs[expr] = prg
		s.mu.Unlock()
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("policy evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// compilePolicy compiles a share-policy expression
func compilePolicy(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("enabled", cel.BoolType),
		cel.Variable("role", cel.StringType),
		cel.Variable("userid", cel.IntType),
		cel.Variable("courseid", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy program: %w", err)
	}

	return prg, nil
}
