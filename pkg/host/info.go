package host

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// EnvironmentInfo describes the host for reports and the --info run argument.
type EnvironmentInfo struct {
	GoVersion   string `json:"go_version"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	Platform    string `json:"platform"`
	Kernel      string `json:"kernel"`
	CPUModel    string `json:"cpu_model"`
	LogicalCPUs int    `json:"logical_cpus"`
	TotalMemMB  uint64 `json:"total_mem_mb"`
}

// CollectEnvironmentInfo gathers host details. Probes that fail leave their
// fields empty; only the Go runtime fields are always present.
func CollectEnvironmentInfo(ctx context.Context) EnvironmentInfo {
	info := EnvironmentInfo{
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
		info.Kernel = h.KernelVersion
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemMB = v.Total / 1024 / 1024
	}
	return info
}

// String renders the information as a short multi-line block.
func (e EnvironmentInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Go=%s, OS=%s/%s", e.GoVersion, e.OS, e.Arch)
	if e.Platform != "" {
		fmt.Fprintf(&b, " (%s)", e.Platform)
	}
	if e.Kernel != "" {
		fmt.Fprintf(&b, ", kernel %s", e.Kernel)
	}
	b.WriteString("\n")
	if e.CPUModel != "" {
		fmt.Fprintf(&b, "%s, ", e.CPUModel)
	}
	fmt.Fprintf(&b, "%d logical CPUs", e.LogicalCPUs)
	if e.TotalMemMB > 0 {
		fmt.Fprintf(&b, ", %d MB RAM", e.TotalMemMB)
	}
	return b.String()
}
