package extract

import (
	"runtime"
	"strings"
	"time"

	"provenance-scan/internal/domain"
)

const softwareTimeout = 10 * time.Second

// Software gathers installed packages per platform: dpkg-query/rpm on
// Linux (high confidence, system scope), registry Uninstall keys on
// Windows (medium confidence; Win32_Product is not queried), and brew on
// macOS (high confidence, user scope).
func Software() domain.SoftwareInfo {
	info := domain.SoftwareInfo{}

	switch runtime.GOOS {
	case "linux":
		pkgs, err := dpkgPackages()
		if err == nil {
			info.Packages = append(info.Packages, pkgs...)
		}
		rpmPkgs, err := rpmPackages()
		if err == nil {
			info.Packages = append(info.Packages, rpmPkgs...)
		}
		if len(info.Packages) == 0 {
			info.Err = &domain.ExtractorError{Source: "software.linux", Error: "no dpkg or rpm package database found"}
		}
	case "darwin":
		pkgs, err := brewPackages()
		if err != nil {
			info.Err = &domain.ExtractorError{Source: "software.brew", Error: errString(err)}
		}
		info.Packages = pkgs
	case "windows":
		pkgs, err := windowsRegistryPackages()
		if err != nil {
			info.Err = &domain.ExtractorError{Source: "software.registry", Error: errString(err)}
		}
		info.Packages = pkgs
	}

	return info
}

func dpkgPackages() ([]domain.SoftwarePackage, error) {
	if !hasCommand("dpkg-query") {
		return nil, errNotAvailable
	}
	out, err := runCmd("dpkg-query", softwareTimeout, "-W", "-f", `${Package}\t${Version}\n`)
	if err != nil {
		return nil, err
	}
	var pkgs []domain.SoftwarePackage
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		pkgs = append(pkgs, domain.SoftwarePackage{
			Name: fields[0], Version: fields[1],
			Source: "dpkg", Scope: "system", Confidence: domain.ConfidenceHigh,
		})
	}
	return pkgs, nil
}

func rpmPackages() ([]domain.SoftwarePackage, error) {
	if !hasCommand("rpm") {
		return nil, errNotAvailable
	}
	out, err := runCmd("rpm", softwareTimeout, "-qa", "--qf", `%{NAME}\t%{VERSION}\n`)
	if err != nil {
		return nil, err
	}
	var pkgs []domain.SoftwarePackage
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 || fields[0] == "" {
			continue
		}
		pkgs = append(pkgs, domain.SoftwarePackage{
			Name: fields[0], Version: fields[1],
			Source: "rpm", Scope: "system", Confidence: domain.ConfidenceHigh,
		})
	}
	return pkgs, nil
}

func brewPackages() ([]domain.SoftwarePackage, error) {
	if !hasCommand("brew") {
		return nil, errNotAvailable
	}
	out, err := runCmd("brew", softwareTimeout, "list", "--versions")
	if err != nil {
		return nil, err
	}
	var pkgs []domain.SoftwarePackage
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pkgs = append(pkgs, domain.SoftwarePackage{
			Name: fields[0], Version: fields[len(fields)-1],
			Source: "brew", Scope: "user", Confidence: domain.ConfidenceHigh,
		})
	}
	return pkgs, nil
}

func windowsRegistryPackages() ([]domain.SoftwarePackage, error) {
	script := `Get-ItemProperty HKLM:\Software\Microsoft\Windows\CurrentVersion\Uninstall\*,` +
		`HKLM:\Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Uninstall\* ` +
		`| Where-Object { $_.DisplayName } | ForEach-Object { "$($_.DisplayName)\t$($_.DisplayVersion)" }`
	out, err := runCmd("powershell", softwareTimeout, "-NoProfile", "-Command", script)
	if err != nil {
		return nil, err
	}
	var pkgs []domain.SoftwarePackage
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), "\t", 2)
		if len(fields) == 0 || fields[0] == "" {
			continue
		}
		pkg := domain.SoftwarePackage{Name: fields[0], Source: "registry", Scope: "system", Confidence: domain.ConfidenceMedium}
		if len(fields) == 2 {
			pkg.Version = fields[1]
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

var errNotAvailable = &extractUnavailable{}

type extractUnavailable struct{}

func (e *extractUnavailable) Error() string { return "tool not available on this host" }
