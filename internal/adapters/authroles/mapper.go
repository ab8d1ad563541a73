// Package authroles extracts the application role from identity provider
// metadata. The claim location is a JMESPath expression so a deployment can
// remap it without code changes.
package authroles

import (
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// DefaultExpression reads the role claim written at sign-up. App metadata
// wins over user metadata because only privileged backend jobs can write it.
const DefaultExpression = "app_metadata.rol || user_metadata.rol"

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// MapperOptions groups dependencies for Mapper.
type MapperOptions struct {
	// Expression is the JMESPath over the identity metadata document.
	// Empty means DefaultExpression.
	Expression string
	// Default is the role used when the expression yields nothing usable.
	// Empty means RoleCiudadano.
	Default   domainauth.Role
	Evaluator JMESPathEvaluator
	Logger    *slog.Logger
}

// Mapper resolves an application role from provider metadata claims.
type Mapper struct {
	expr string
	def  domainauth.Role
	jems JMESPathEvaluator
	log  *slog.Logger
}

var _ ports.RoleMapper = (*Mapper)(nil)

// NewMapper creates a Mapper, validating the expression up front.
func NewMapper(opts MapperOptions) (*Mapper, error) {
	expr := strings.TrimSpace(opts.Expression)
	if expr == "" {
		expr = DefaultExpression
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	if err := jems.Validate(expr); err != nil {
		return nil, err
	}
	def := opts.Default
	if def == "" {
		def = domainauth.RoleCiudadano
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{expr: expr, def: def, jems: jems, log: logger}, nil
}

// Map evaluates the expression against the identity's metadata. Anything
// other than a known role string falls back to the default role.
func (m *Mapper) Map(identity domainauth.Identity) domainauth.Role {
	doc := map[string]any{
		"id":            identity.ID,
		"email":         identity.Email,
		"app_metadata":  identity.AppMetadata,
		"user_metadata": identity.UserMetadata,
	}

	result, err := m.jems.Evaluate(m.expr, doc)
	if err != nil {
		m.log.Warn("role expression failed, using default role",
			"expression", m.expr,
			"user_id", identity.ID,
			"error", err)
		return m.def
	}

	claim, ok := result.(string)
	if !ok || strings.TrimSpace(claim) == "" {
		return m.def
	}
	return domainauth.ParseRole(claim)
}

// StaticMapper returns the same role for every identity. Used by dev mode
// and tests where claims do not matter.
type StaticMapper struct {
	Role domainauth.Role
}

var _ ports.RoleMapper = StaticMapper{}

func (m StaticMapper) Map(domainauth.Identity) domainauth.Role {
	if m.Role == "" {
		return domainauth.RoleCiudadano
	}
	return m.Role
}
