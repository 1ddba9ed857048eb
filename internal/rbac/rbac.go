// Package rbac answers the two authorization questions the ledger asks:
// may a user perform an action on a resource, and which technology
// directions may a user approve change requests for.
package rbac

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Resources and actions checked at the HTTP boundary.
const (
	ResourceBudgets        = "budgets"
	ResourceRates          = "rates"
	ResourceTransactions   = "transactions"
	ResourceChangeRequests = "change_requests"
	ResourceSavings        = "savings"

	ActionRead     = "read"
	ActionWrite    = "write"
	ActionActivate = "activate"
	ActionApprove  = "approve"
)

// Wildcard matches any resource or action in a permission string.
const Wildcard = "*"

// Scope is the set of technology directions a user may approve for.
type Scope struct {
	ApproveAllDirections   bool
	TechnologyDirectionIDs []string
}

// Empty reports whether the scope grants nothing.
func (s Scope) Empty() bool {
	return !s.ApproveAllDirections && len(s.TechnologyDirectionIDs) == 0
}

// Allows reports whether a line in technology direction directionID is approvable.
// Lines whose expense has no direction only fall under the blanket capability.
func (s Scope) Allows(directionID *string) bool {
	if s.ApproveAllDirections {
		return true
	}
	if directionID == nil {
		return false
	}
	for _, id := range s.TechnologyDirectionIDs {
		if id == *directionID {
			return true
		}
	}
	return false
}

// Role is one named grant in the policy file.
type Role struct {
	Name                   string   `yaml:"name"`
	ApproveAllDirections   bool     `yaml:"approve_all_directions"`
	TechnologyDirectionIDs []string `yaml:"technology_direction_ids"`
	Permissions            []string `yaml:"permissions"`
}

// Policy is the on-disk shape of the approver policy.
type Policy struct {
	Roles []Role              `yaml:"roles"`
	Users map[string][]string `yaml:"users"`
}

// Registry holds roles and user bindings in memory.
type Registry struct {
	mu        sync.RWMutex
	roles     map[string]Role
	userRoles map[string][]string
}

// NewRegistry creates an empty registry that denies everything.
func NewRegistry() *Registry {
	return &Registry{
		roles:     make(map[string]Role),
		userRoles: make(map[string][]string),
	}
}

// LoadFile reads a YAML policy from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rbac policy: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML policy bytes.
func Parse(data []byte) (*Registry, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse rbac policy: %w", err)
	}
	r := NewRegistry()
	if err := r.Load(policy); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the registry contents with policy.
func (r *Registry) Load(policy Policy) error {
	roles := make(map[string]Role, len(policy.Roles))
	for _, role := range policy.Roles {
		if role.Name == "" {
			return fmt.Errorf("rbac policy: role without a name")
		}
		if _, dup := roles[role.Name]; dup {
			return fmt.Errorf("rbac policy: duplicate role %q", role.Name)
		}
		roles[role.Name] = role
	}

	users := make(map[string][]string, len(policy.Users))
	for user, names := range policy.Users {
		for _, name := range names {
			if _, ok := roles[name]; !ok {
				return fmt.Errorf("rbac policy: user %q bound to unknown role %q", user, name)
			}
		}
		users[user] = append([]string(nil), names...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = roles
	r.userRoles = users
	return nil
}

// DefineRole adds or replaces a role.
func (r *Registry) DefineRole(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.Name] = role
}

// AssignRole binds userID to an existing role.
func (r *Registry) AssignRole(userID, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[roleName]; !ok {
		return fmt.Errorf("unknown role %q", roleName)
	}
	for _, existing := range r.userRoles[userID] {
		if existing == roleName {
			return nil
		}
	}
	r.userRoles[userID] = append(r.userRoles[userID], roleName)
	return nil
}

// RolesFor returns the role names bound to userID.
func (r *Registry) RolesFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.userRoles[userID]...)
}

// ApproverScopeFor unions the approval scoping of every role bound to userID.
func (r *Registry) ApproverScopeFor(userID string) Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scope Scope
	seen := make(map[string]bool)
	for _, name := range r.userRoles[userID] {
		role := r.roles[name]
		if role.ApproveAllDirections {
			return Scope{ApproveAllDirections: true}
		}
		for _, id := range role.TechnologyDirectionIDs {
			if !seen[id] {
				seen[id] = true
				scope.TechnologyDirectionIDs = append(scope.TechnologyDirectionIDs, id)
			}
		}
	}
	return scope
}

// CanAct reports whether any role bound to userID grants resource:action.
func (r *Registry) CanAct(userID, resource, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.userRoles[userID] {
		for _, perm := range r.roles[name].Permissions {
			if permits(perm, resource, action) {
				return true
			}
		}
	}
	return false
}

// permits matches "resource:action" with "*" allowed on either side.
func permits(perm, resource, action string) bool {
	if perm == Wildcard {
		return true
	}
	res, act, ok := strings.Cut(perm, ":")
	if !ok {
		return false
	}
	return (res == Wildcard || res == resource) && (act == Wildcard || act == action)
}
