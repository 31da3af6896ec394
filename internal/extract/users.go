package extract

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"provenance-scan/internal/domain"
)

var (
	humanShells  = []string{"/bin/bash", "/bin/zsh", "/bin/sh", "/bin/fish", "/bin/csh", "/bin/tcsh"}
	systemShells = []string{"/usr/sbin/nologin", "/sbin/nologin", "/bin/false", "/usr/bin/false"}
)

// Users gathers logged-in sessions and configured accounts the way the
// original's users_extractor does: psutil.users() for sessions, then a
// platform-specific account source -- /etc/passwd on Linux, dscl on
// macOS, net user on Windows.
func Users() domain.UsersInfo {
	info := domain.UsersInfo{}

	sessions, err := host.Users()
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "users.sessions", Error: errString(err)}
	} else {
		for _, s := range sessions {
			info.Sessions = append(info.Sessions, domain.SessionRecord{
				Username:  s.User,
				TTY:       s.Terminal,
				Source:    s.Host,
				StartedAt: strconv.FormatUint(uint64(s.Started), 10),
			})
		}
	}

	switch runtime.GOOS {
	case "linux":
		accounts, err := linuxAccounts()
		if err != nil && info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "users.accounts", Error: errString(err)}
		}
		info.Accounts = accounts
	case "darwin":
		accounts, err := darwinAccounts()
		if err != nil && info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "users.accounts", Error: errString(err)}
		}
		info.Accounts = accounts
	case "windows":
		accounts, err := windowsAccounts()
		if err != nil && info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "users.accounts", Error: errString(err)}
		}
		info.Accounts = accounts
	}

	return info
}

func linuxAccounts() ([]domain.AccountRecord, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var accounts []domain.AccountRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		shell := fields[6]
		accounts = append(accounts, domain.AccountRecord{
			Username: fields[0],
			UID:      uid,
			Shell:    shell,
			Roles:    classifyAccountRoles(fields[0], uid, shell),
			Source:   "passwd",
		})
	}
	return accounts, scanner.Err()
}

func darwinAccounts() ([]domain.AccountRecord, error) {
	out, err := runCmd("dscl", quickTimeout, ".", "-list", "/Users")
	if err != nil {
		return nil, err
	}
	var accounts []domain.AccountRecord
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		accounts = append(accounts, domain.AccountRecord{
			Username: name,
			Roles:    classifyAccountRoles(name, -1, ""),
			Source:   "dscl",
		})
	}
	return accounts, nil
}

func windowsAccounts() ([]domain.AccountRecord, error) {
	out, err := runCmd("net", quickTimeout, "user")
	if err != nil {
		return nil, err
	}
	var accounts []domain.AccountRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || strings.Contains(line, "command completed") ||
			strings.Contains(line, "User accounts for") {
			continue
		}
		for _, name := range strings.Fields(line) {
			accounts = append(accounts, domain.AccountRecord{
				Username: name,
				Roles:    classifyAccountRoles(name, -1, ""),
				Source:   "net_user",
			})
		}
	}
	return accounts, nil
}

// classifyAccountRoles applies a role cascade to account records:
// root/Administrator first, then shell-derived system vs. human/interactive,
// falling back to service for anything with a recognizable daemon-style
// uid range.
func classifyAccountRoles(username string, uid int, shell string) []domain.AccountRole {
	lower := strings.ToLower(username)
	if lower == "root" || lower == "administrator" {
		return []domain.AccountRole{domain.RoleRoot, domain.RoleAdmin}
	}
	if isNologinShell(shell) {
		return []domain.AccountRole{domain.RoleSystem}
	}
	if isHumanShell(shell) {
		return []domain.AccountRole{domain.RoleHuman, domain.RoleInteractive}
	}
	if uid >= 0 && uid < 1000 {
		return []domain.AccountRole{domain.RoleSystem, domain.RoleService}
	}
	return []domain.AccountRole{domain.RoleHuman}
}

func isHumanShell(shell string) bool {
	for _, s := range humanShells {
		if shell == s {
			return true
		}
	}
	return false
}

func isNologinShell(shell string) bool {
	for _, s := range systemShells {
		if shell == s {
			return true
		}
	}
	return false
}
