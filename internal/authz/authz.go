package authz

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

//go:embed model.conf
var defaultModel string

//go:embed policy.csv
var defaultPolicy []byte

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ParseMode accepts enforce, shadow or disabled; empty means enforce
func ParseMode(raw string) (Mode, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow, ModeDisabled:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("authz: invalid mode %q (expected enforce|shadow|disabled)", raw)
	}
}

// Config selects the model and policy. Empty paths use the embedded defaults.
type Config struct {
	Mode       Mode
	ModelPath  string
	PolicyPath string
}

// Authorizer checks a role against a route template and HTTP method
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(cfg Config) (*Authorizer, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeEnforce
	}

	var (
		enforcer *casbin.Enforcer
		err      error
	)
	if cfg.ModelPath != "" || cfg.PolicyPath != "" {
		enforcer, err = fromFiles(cfg.ModelPath, cfg.PolicyPath)
	} else {
		enforcer, err = fromEmbedded()
	}
	if err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: cfg.Mode}, nil
}

func fromFiles(modelPath, policyPath string) (*casbin.Enforcer, error) {
	if modelPath == "" || policyPath == "" {
		return nil, errors.New("authz: model_path and policy_path must be set together")
	}
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}
	enforcer.SetAdapter(fileadapter.NewAdapter(policyPath))
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: load policy: %w", err)
	}
	return enforcer, nil
}

func fromEmbedded() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("authz: parse model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(defaultPolicy))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		params := make([]interface{}, 0, len(fields)-1)
		for _, f := range fields[1:] {
			params = append(params, f)
		}

		switch fields[0] {
		case "p":
			_, err = enforcer.AddPolicy(params...)
		case "g":
			_, err = enforcer.AddGroupingPolicy(params...)
		default:
			err = fmt.Errorf("unknown policy type %q", fields[0])
		}
		if err != nil {
			return nil, fmt.Errorf("authz: policy line %q: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func SubjectFromRole(role entity.Role) string {
	slug := strings.TrimSpace(strings.ToLower(string(role)))
	if slug == "" {
		slug = "anonymous"
	}
	return "role:" + slug
}

// Authorize reports whether role may call method on the route template
// object. enforced is false in shadow and disabled modes, where callers
// should let the request through regardless of allowed.
func (a *Authorizer) Authorize(role entity.Role, object, method string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeShadow:
		ok, err := a.enforcer.Enforce(SubjectFromRole(role), object, method)
		if err != nil {
			return false, false, err
		}
		return ok, false, nil
	case ModeEnforce:
		ok, err := a.enforcer.Enforce(SubjectFromRole(role), object, method)
		if err != nil {
			return false, true, err
		}
		return ok, true, nil
	default:
		return false, false, errors.New("authz: unknown mode")
	}
}

func (a *Authorizer) Mode() Mode { return a.mode }
