package extract

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"provenance-scan/internal/domain"
)

// OS gathers the hostname, kernel/platform identity, and release
// metadata: gopsutil's host.Info plus a direct /etc/os-release parse on
// Linux for the key/value map the graph builder attaches to the
// OSInstance node.
func OS() domain.OSInfo {
	info := domain.OSInfo{
		Architecture: runtime.GOARCH,
	}

	hostname, err := os.Hostname()
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "os.hostname", Error: errString(err)}
	}
	info.Hostname = hostname
	info.FQDN = resolveFQDN(hostname)

	hi, err := host.Info()
	if err != nil {
		if info.Err == nil {
			info.Err = &domain.ExtractorError{Source: "os.host_info", Error: errString(err)}
		}
		info.SystemName = runtime.GOOS
		return info
	}

	info.SystemName = hi.OS
	info.Release = hi.KernelVersion
	info.Version = hi.PlatformVersion

	if runtime.GOOS == "linux" {
		info.OSRelease = readOSRelease("/etc/os-release")
	}

	return info
}

func resolveFQDN(hostname string) string {
	if hostname == "" {
		return ""
	}
	out, err := runCmd("hostname", quickTimeout, "-f")
	if err == nil && out != "" {
		return out
	}
	return ""
}

func readOSRelease(path string) map[string]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		value := strings.Trim(parts[1], `"`)
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
