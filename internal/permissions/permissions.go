// Package permissions holds the static role→permission table. The table
// is fixed configuration loaded once at startup and injected read-only;
// nothing in this subsystem computes permissions.
package permissions

import (
	"encoding/json"
	"fmt"
	"os"
)

// Permission names used by the security admin surface.
const (
	PermAlertsRead     = "security.alerts.read"
	PermAlertsResolve  = "security.alerts.resolve"
	PermDevicesRead    = "security.devices.read"
	PermDevicesBlock   = "security.devices.block"
	PermAttemptsRead   = "security.attempts.read"
	PermSessionsRevoke = "security.sessions.revoke"
)

// Table maps roles to their granted permissions. Immutable after Load.
type Table struct {
	grants map[string]map[string]bool
}

// Default returns the built-in role table for the warehouse domain.
func Default() *Table {
	return fromGrants(map[string][]string{
		"admin": {
			PermAlertsRead, PermAlertsResolve,
			PermDevicesRead, PermDevicesBlock,
			PermAttemptsRead, PermSessionsRevoke,
		},
		"manager": {
			PermAlertsRead,
			PermDevicesRead,
			PermAttemptsRead,
		},
		"employee": {},
	})
}

// Load reads a role table from a JSON file of {"role": ["perm", ...]}.
// An empty path returns the built-in defaults.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission table: %w", err)
	}

	var grants map[string][]string
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("parse permission table: %w", err)
	}
	return fromGrants(grants), nil
}

func fromGrants(grants map[string][]string) *Table {
	t := &Table{grants: make(map[string]map[string]bool, len(grants))}
	for role, perms := range grants {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		t.grants[role] = set
	}
	return t
}

// Allows reports whether the role holds the permission.
func (t *Table) Allows(role, permission string) bool {
	perms, ok := t.grants[role]
	if !ok {
		return false
	}
	return perms[permission]
}
