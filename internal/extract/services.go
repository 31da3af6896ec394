package extract

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"provenance-scan/internal/domain"
)

// scannerMarkers and shellNames ground ProcessRole classification: a
// cmdline mentioning the scanner or its remote agent is "scanner", a
// bare shell invocation is "shell", everything else is "none". The fuller
// process_type/process_role/platform-service fields are built from
// gopsutil's process_iter plus a platform service-manager query.
var (
	scannerMarkers = []string{"provenance-scan", "provenance-agent"}
	shellNames     = []string{"bash", "zsh", "sh", "fish", "csh", "tcsh", "cmd.exe", "powershell.exe", "pwsh"}
)

func Services() domain.ServicesInfo {
	info := domain.ServicesInfo{}

	pids, err := process.Pids()
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "services.processes", Error: errString(err)}
		return info
	}

	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		rec := domain.ProcessRecord{PID: int(pid)}
		if ppid, err := proc.Ppid(); err == nil {
			rec.PPID = int(ppid)
			if parent, err := process.NewProcess(ppid); err == nil {
				if name, err := parent.Name(); err == nil {
					rec.ParentName = name
				}
			}
		}
		if exe, err := proc.Exe(); err == nil {
			rec.Exe = exe
		}
		if user, err := proc.Username(); err == nil {
			rec.User = user
		}
		if cmdline, err := proc.Cmdline(); err == nil {
			rec.Cmdline = cmdline
		}
		if createTime, err := proc.CreateTime(); err == nil {
			rec.CreateTime = createTime / 1000
		}
		rec.Type = classifyProcessType(rec.User)
		rec.Role = classifyProcessRole(rec.Cmdline)
		info.Processes = append(info.Processes, rec)
	}

	netInfo := Network()
	for _, sock := range netInfo.Sockets {
		if sock.Direction == domain.DirectionListening {
			info.Listening = append(info.Listening, sock)
		}
	}

	switch runtime.GOOS {
	case "linux":
		info.Services = linuxServices()
	case "windows":
		info.Services = windowsServices()
	}

	return info
}

func classifyProcessType(user string) domain.ProcessType {
	if user == "" {
		return domain.ProcessUnknown
	}
	lower := strings.ToLower(user)
	if lower == "root" || lower == "system" || lower == "localsystem" || strings.HasPrefix(lower, "_") {
		return domain.ProcessSystem
	}
	return domain.ProcessUser
}

func classifyProcessRole(cmdline string) domain.ProcessRole {
	lower := strings.ToLower(cmdline)
	if lower == "" {
		return domain.ProcessRoleNone
	}
	for _, marker := range scannerMarkers {
		if strings.Contains(lower, marker) {
			return domain.ProcessRoleScanner
		}
	}
	fields := strings.Fields(lower)
	if len(fields) > 0 {
		base := fields[0]
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		for _, shell := range shellNames {
			if base == shell {
				return domain.ProcessRoleShell
			}
		}
	}
	return domain.ProcessRoleNone
}

// linuxServices queries systemd for unit name/MainPID/ExecStart/User/
// ActiveState the way `systemctl show` reports them, scoped to loaded
// service units.
func linuxServices() []domain.ServiceRecord {
	out, err := runCmd("systemctl", quickTimeout, "list-units", "--type=service", "--no-legend", "--no-pager", "--plain")
	if err != nil {
		return nil
	}
	var services []domain.ServiceRecord
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		unit := fields[0]
		show, err := runCmd("systemctl", quickTimeout, "show", unit,
			"--property=MainPID,ExecStart,User,ActiveState")
		if err != nil {
			continue
		}
		rec := domain.ServiceRecord{Name: unit}
		for _, kv := range strings.Split(show, "\n") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			switch parts[0] {
			case "MainPID":
				if pid, err := strconv.Atoi(parts[1]); err == nil {
					rec.MainPID = pid
				}
			case "ExecStart":
				rec.ExecStart = parts[1]
			case "User":
				rec.User = parts[1]
			case "ActiveState":
				rec.ActiveState = parts[1]
			}
		}
		services = append(services, rec)
	}
	return services
}

// windowsServices queries the service control manager via PowerShell
// Get-CimInstance Win32_Service and records each service's name,
// process ID, and state; ExecStart and User are left empty.
func windowsServices() []domain.ServiceRecord {
	out, err := runCmd("powershell", quickTimeout, "-NoProfile", "-Command",
		"Get-CimInstance Win32_Service | Select-Object Name,ProcessId,PathName,StartName,State | Format-Table -HideTableHeaders")
	if err != nil {
		return nil
	}
	var services []domain.ServiceRecord
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		rec := domain.ServiceRecord{Name: fields[0]}
		if pid, err := strconv.Atoi(fields[1]); err == nil {
			rec.MainPID = pid
		}
		rec.ActiveState = fields[len(fields)-1]
		services = append(services, rec)
	}
	return services
}
