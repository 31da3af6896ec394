package extract

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"provenance-scan/internal/domain"
)

// Hardware gathers CPU, memory, disk, and boot-time facts the way the
// original's hardware_extractor does through psutil -- cpu_count,
// virtual_memory, disk_partitions/disk_usage, boot_time -- backed here by
// the matching gopsutil calls.
func Hardware() domain.HardwareInfo {
	info := domain.HardwareInfo{
		CPUArchitecture: runtime.GOARCH,
	}

	if physical, err := cpu.Counts(false); err == nil {
		info.CPUPhysicalCores = physical
	}
	if logical, err := cpu.Counts(true); err == nil {
		info.CPULogicalCores = logical
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		info.Err = &domain.ExtractorError{Source: "hardware.memory", Error: errString(err)}
	} else {
		info.MemoryTotalMB = int64(vm.Total / 1024 / 1024)
		info.MemoryAvailMB = int64(vm.Available / 1024 / 1024)
	}

	if parts, err := disk.Partitions(false); err == nil {
		for _, p := range parts {
			usage, err := disk.Usage(p.Mountpoint)
			if err != nil {
				continue
			}
			info.Disks = append(info.Disks, domain.DiskInfo{
				Mount:   p.Mountpoint,
				TotalMB: int64(usage.Total / 1024 / 1024),
				UsedMB:  int64(usage.Used / 1024 / 1024),
				AvailMB: int64(usage.Free / 1024 / 1024),
			})
		}
	}

	if bootTime, err := host.BootTime(); err == nil {
		info.BootTimeEpoch = int64(bootTime)
	}

	hostname, hostErr := host.Info()
	if hostErr == nil {
		info.Virtualized = hostname.VirtualizationRole == "guest" || hostname.VirtualizationSystem != ""
	}

	return info
}
