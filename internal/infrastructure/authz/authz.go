package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"go.uber.org/zap"
)

// Mode controls whether policy decisions are applied
type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ParseMode accepts enforce, shadow or disabled; empty means enforce
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeEnforce, nil
	case ModeEnforce, ModeShadow, ModeDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("authz: invalid mode %q (expected enforce|shadow|disabled)", raw)
	}
}

// Objects and actions named by the policy
const (
	ObjPeriod     = "payroll.period"
	ObjPayment    = "payroll.payment"
	ObjRecord     = "payroll.record"
	ObjPayslip    = "payroll.payslip"
	ObjEmployee   = "employee"
	ObjChannel    = "employee.channel"
	ObjDocument   = "employee.document"
	ObjDeduction  = "deduction"
	ObjAuth       = "auth"
	ActRead       = "read"
	ActWrite      = "write"
	ActProcess    = "process"
	ActApprove    = "approve"
	ActPay        = "pay"
	ActRevoke     = "revoke"
)

// Decision is the outcome of one authorization check
type Decision struct {
	Allowed  bool
	Enforced bool
}

// Authorizer checks role permissions against a casbin policy
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
	logger   *zap.Logger
}

// NewAuthorizer loads the model and file policy
func NewAuthorizer(modelPath, policyPath string, mode Mode, logger *zap.Logger) (*Authorizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enforcer, err := casbin.NewEnforcer(modelPath, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, fmt.Errorf("authz: load policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer, mode: mode, logger: logger.Named("authz")}, nil
}

// Subject maps a role claim to its policy subject
func Subject(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "anonymous"
	}
	return "role:" + role
}

// Authorize allows the request when any of roles may perform act on obj.
// In shadow mode denials are logged and reported as not enforced.
func (a *Authorizer) Authorize(roles []string, obj, act string) (Decision, error) {
	if a.mode == ModeDisabled {
		return Decision{Allowed: true}, nil
	}

	allowed := false
	for _, role := range roles {
		ok, err := a.enforcer.Enforce(Subject(role), obj, act)
		if err != nil {
			return Decision{}, fmt.Errorf("authz: enforce: %w", err)
		}
		if ok {
			allowed = true
			break
		}
	}

	switch a.mode {
	case ModeEnforce:
		return Decision{Allowed: allowed, Enforced: true}, nil
	case ModeShadow:
		if !allowed {
			a.logger.Warn("shadow mode denial",
				zap.Strings("roles", roles),
				zap.String("object", obj),
				zap.String("action", act),
			)
		}
		return Decision{Allowed: allowed}, nil
	default:
		return Decision{}, errors.New("authz: unknown mode")
	}
}

// Mode returns the configured mode
func (a *Authorizer) Mode() Mode {
	return a.mode
}
