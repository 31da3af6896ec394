package extract

import (
	"testing"

	"provenance-scan/internal/domain"
)

func TestClassifyAccountRoles(t *testing.T) {
	roles := classifyAccountRoles("root", 0, "/bin/bash")
	if !hasRole(roles, domain.RoleRoot) {
		t.Errorf("root account missing RoleRoot: %v", roles)
	}

	roles = classifyAccountRoles("daemon", 1, "/usr/sbin/nologin")
	if !hasRole(roles, domain.RoleSystem) {
		t.Errorf("nologin shell account missing RoleSystem: %v", roles)
	}

	roles = classifyAccountRoles("alice", 1000, "/bin/bash")
	if !hasRole(roles, domain.RoleHuman) || !hasRole(roles, domain.RoleInteractive) {
		t.Errorf("interactive shell account missing human/interactive roles: %v", roles)
	}

	roles = classifyAccountRoles("www-data", 33, "")
	if !hasRole(roles, domain.RoleSystem) {
		t.Errorf("low-uid account with no shell missing RoleSystem: %v", roles)
	}
}

func hasRole(roles []domain.AccountRole, want domain.AccountRole) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
