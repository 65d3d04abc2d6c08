package models

import (
	"errors"
	"fmt"
)

// ScopeKind tells whether an installation covers a whole enterprise grid or a single team.
type ScopeKind string

const (
	ScopeEnterprise ScopeKind = "enterprise"
	ScopeTeam       ScopeKind = "team"
)

var errEmptyScopeID = errors.New("scope id is required")

// TenantScope identifies one tenant. Build it with EnterpriseScope or TeamScope.
type TenantScope struct {
	kind ScopeKind
	id   string
}

func EnterpriseScope(id string) TenantScope {
	return TenantScope{kind: ScopeEnterprise, id: id}
}

func TeamScope(id string) TenantScope {
	return TenantScope{kind: ScopeTeam, id: id}
}

func (s TenantScope) Kind() ScopeKind { return s.kind }
func (s TenantScope) ID() string      { return s.id }

// Key is the tenant identifier stored on users and ledger entries.
func (s TenantScope) Key() string {
	switch s.kind {
	case ScopeEnterprise:
		return "E:" + s.id
	case ScopeTeam:
		return "T:" + s.id
	default:
		return ""
	}
}

func (s TenantScope) String() string { return s.Key() }

// Validate reports whether the scope was built through a constructor with a non-empty id.
func (s TenantScope) Validate() error {
	switch s.kind {
	case ScopeEnterprise, ScopeTeam:
		if s.id == "" {
			return fmt.Errorf("%s scope: %w", s.kind, errEmptyScopeID)
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %q", s.kind)
	}
}

// ParseScope rebuilds a scope from its stored kind and id columns.
func ParseScope(kind, id string) (TenantScope, error) {
	s := TenantScope{kind: ScopeKind(kind), id: id}
	if err := s.Validate(); err != nil {
		return TenantScope{}, err
	}
	return s, nil
}
