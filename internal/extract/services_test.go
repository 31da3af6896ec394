package extract

import (
	"testing"

	"provenance-scan/internal/domain"
)

func TestClassifyProcessType(t *testing.T) {
	cases := map[string]domain.ProcessType{
		"root":        domain.ProcessSystem,
		"SYSTEM":      domain.ProcessSystem,
		"_www":        domain.ProcessSystem,
		"alice":       domain.ProcessUser,
		"":            domain.ProcessUnknown,
	}
	for user, want := range cases {
		if got := classifyProcessType(user); got != want {
			t.Errorf("classifyProcessType(%q) = %v, want %v", user, got, want)
		}
	}
}

func TestClassifyProcessRole(t *testing.T) {
	cases := map[string]domain.ProcessRole{
		"/usr/local/bin/provenance-agent --collect": domain.ProcessRoleScanner,
		"/bin/bash":                                 domain.ProcessRoleShell,
		"-zsh":                                      domain.ProcessRoleNone,
		"/usr/sbin/sshd -D":                         domain.ProcessRoleNone,
		"":                                          domain.ProcessRoleNone,
	}
	for cmdline, want := range cases {
		if got := classifyProcessRole(cmdline); got != want {
			t.Errorf("classifyProcessRole(%q) = %v, want %v", cmdline, got, want)
		}
	}
}
