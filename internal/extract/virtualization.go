package extract

import (
	"os"
	"runtime"
	"strings"

	"provenance-scan/internal/domain"
)

var virtProviderByDetectVirt = map[string]string{
	"oracle":    "virtualbox",
	"kvm":       "kvm",
	"qemu":      "kvm",
	"vmware":    "vmware",
	"microsoft": "hyperv",
}

var linuxGuestTools = []string{"VBoxControl", "vmtoolsd", "qemu-ga"}

// Virtualization gathers hypervisor and guest-tooling evidence:
// systemd-detect-virt plus /sys/class/dmi/id/product_uuid on Linux, WMI
// Manufacturer/Model and Win32_ComputerSystemProduct UUID on Windows.
func Virtualization() domain.VirtualizationInfo {
	info := domain.VirtualizationInfo{}

	switch runtime.GOOS {
	case "linux":
		linuxVirtualization(&info)
	case "windows":
		windowsVirtualization(&info)
	case "darwin":
		// Apple hardware is never a hypervisor guest in practice; the
		// original's macOS extractor is a stub for the same reason.
	}

	return info
}

func linuxVirtualization(info *domain.VirtualizationInfo) {
	if !hasCommand("systemd-detect-virt") {
		info.Err = &domain.ExtractorError{Source: "virtualization.detect_virt", Error: "systemd-detect-virt not available"}
		return
	}

	out, err := runCmd("systemd-detect-virt", quickTimeout)
	result := strings.ToLower(strings.TrimSpace(out))
	if err != nil && result == "" {
		result = "none"
	}
	if result != "none" && result != "" {
		info.Virtualized = true
		info.Hypervisor = result
		if provider, ok := virtProviderByDetectVirt[result]; ok {
			info.Provider = provider
		} else {
			info.Provider = "unknown"
		}
	}

	if data, err := os.ReadFile("/sys/class/dmi/id/product_uuid"); err == nil {
		info.VMUUID = strings.TrimSpace(string(data))
	}

	for _, tool := range linuxGuestTools {
		if hasCommand(tool) {
			info.GuestTools = append(info.GuestTools, tool)
		}
	}
}

func windowsVirtualization(info *domain.VirtualizationInfo) {
	out, err := runCmd("powershell", quickTimeout, "-NoProfile", "-Command",
		"(Get-CimInstance Win32_ComputerSystem).Manufacturer + '|' + (Get-CimInstance Win32_ComputerSystem).Model")
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "virtualization.wmi", Error: errString(err)}
		return
	}
	parts := strings.SplitN(strings.TrimSpace(out), "|", 2)
	manufacturer := ""
	model := ""
	if len(parts) == 2 {
		manufacturer, model = strings.ToLower(parts[0]), strings.ToLower(parts[1])
	}

	switch {
	case strings.Contains(manufacturer, "vmware") || strings.Contains(model, "vmware"):
		info.Virtualized, info.Hypervisor, info.Provider = true, "vmware", "vmware"
	case strings.Contains(model, "virtualbox"):
		info.Virtualized, info.Hypervisor, info.Provider = true, "virtualbox", "virtualbox"
	case strings.Contains(manufacturer, "microsoft") && strings.Contains(model, "virtual"):
		info.Virtualized, info.Hypervisor, info.Provider = true, "hyperv", "hyperv"
	case strings.Contains(model, "kvm"):
		info.Virtualized, info.Hypervisor, info.Provider = true, "kvm", "kvm"
	}

	if uuidOut, err := runCmd("powershell", quickTimeout, "-NoProfile", "-Command",
		"(Get-CimInstance Win32_ComputerSystemProduct).UUID"); err == nil {
		info.VMUUID = strings.TrimSpace(uuidOut)
	}

	for _, svc := range []string{"VBoxService", "VMTools", "vmicheartbeat"} {
		if out, err := runCmd("sc", quickTimeout, "query", svc); err == nil && out != "" {
			info.GuestTools = append(info.GuestTools, svc)
		}
	}
}
