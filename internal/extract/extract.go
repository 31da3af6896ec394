// Package extract implements the per-section host extractors the Remote
// Agent runs: OS, hardware, network, users, services, software, routing,
// and virtualization. The scanner binary does not call them for its own
// host; its local facts come from bootstrap evidence. Each extractor
// is a pure function of the local machine returning a typed domain
// record; none of them ever abort -- a failure degrades the record's
// Err field instead, so the agent can always write its two output files.
package extract

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// quickTimeout bounds the shell-outs every extractor makes to a local
// system tool; none of these should ever legitimately run long.
const quickTimeout = 3 * time.Second

// runCmd runs name with args under a short timeout and returns trimmed
// stdout, or ("", err) on any failure -- the same "never abort, degrade"
// discipline the extractors themselves follow, reused at the shell-out
// layer since most extraction on Linux is a thin wrapper over a system
// tool.
func runCmd(name string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func hasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
