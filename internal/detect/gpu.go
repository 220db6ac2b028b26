// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// probeTimeout bounds one full detection pass.
const probeTimeout = 10 * time.Second

// =============================================================================
// GPU TYPE DEFINITIONS
// =============================================================================

// GpuType represents the type of GPU detected on the system.
type GpuType int

const (
	// GpuTypeCPU indicates no dedicated GPU found, CPU-only mode.
	GpuTypeCPU GpuType = iota
	GpuTypeNvidia
	GpuTypeAmd
	GpuTypeAppleSilicon
	GpuTypeIntel
)

// String returns the string representation of the GPU type.
func (t GpuType) String() string {
	switch t {
	case GpuTypeNvidia:
		return "NVIDIA"
	case GpuTypeAmd:
		return "AMD"
	case GpuTypeAppleSilicon:
		return "Apple Silicon"
	case GpuTypeIntel:
		return "Intel Arc"
	case GpuTypeCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// GpuInfo contains information about a detected GPU.
type GpuInfo struct {
	Name   string
	VramGB uint32
	Driver string
	Type   GpuType
}

// Accelerated reports whether the GPU can run the inference engine.
func (g *GpuInfo) Accelerated() bool {
	return g != nil && g.Type != GpuTypeCPU
}

// String returns a formatted string representation of the GPU info.
func (g *GpuInfo) String() string {
	if g.Type == GpuTypeCPU {
		return g.Name
	}
	s := fmt.Sprintf("%s (%dGB VRAM)", g.Name, g.VramGB)
	if g.Driver != "" {
		s += fmt.Sprintf(" [Driver: %s]", g.Driver)
	}
	return s
}

// cpuOnly is reported when no probe finds a GPU.
func cpuOnly() *GpuInfo {
	return &GpuInfo{Name: "CPU Only", Type: GpuTypeCPU}
}

// =============================================================================
// PROBES
// =============================================================================

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detect runs the probes in order (NVIDIA, AMD, Apple Silicon, Intel Arc)
// and returns the first GPU found, or CPU-only.
func Detect(ctx context.Context) *GpuInfo {
	return detectWith(ctx, execRunner, runtime.GOOS)
}

func detectWith(ctx context.Context, run runner, goos string) *GpuInfo {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, probeTimeout)
		defer cancel()
	}

	probes := []func(context.Context, runner, string) *GpuInfo{
		probeNvidia,
		probeAmd,
		probeAppleSilicon,
		probeIntelArc,
	}
	for _, probe := range probes {
		if ctx.Err() != nil {
			break
		}
		if info := probe(ctx, run, goos); info != nil {
			return info
		}
	}
	return cpuOnly()
}

func probeNvidia(ctx context.Context, run runner, goos string) *GpuInfo {
	paths := []string{"nvidia-smi"}
	if goos == "windows" {
		paths = append(paths,
			`C:\Windows\System32\nvidia-smi.exe`,
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`)
	}
	for _, path := range paths {
		out, err := run(ctx, path, "--query-gpu=name,memory.total,driver_version", "--format=csv,noheader,nounits")
		if err == nil {
			return parseNvidiaSmi(string(out))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// parseNvidiaSmi reads the first line of nvidia-smi CSV output.
func parseNvidiaSmi(out string) *GpuInfo {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, ", ")
	if len(parts) < 3 {
		return nil
	}
	vramMB, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil
	}
	return &GpuInfo{
		Name:   "NVIDIA " + strings.TrimSpace(parts[0]),
		VramGB: uint32(vramMB/1024.0 + 0.5),
		Driver: strings.TrimSpace(parts[2]),
		Type:   GpuTypeNvidia,
	}
}

const amdWindowsQuery = `$gpu = Get-CimInstance Win32_VideoController | Where-Object { $_.Name -like '*AMD*' -or $_.Name -like '*Radeon*' } | Select-Object -First 1; if ($gpu) { $gpu.Name }`

func probeAmd(ctx context.Context, run runner, goos string) *GpuInfo {
	if goos == "windows" {
		out, err := run(ctx, "powershell", "-NoProfile", "-Command", amdWindowsQuery)
		if err != nil {
			return nil
		}
		name := strings.TrimSpace(string(out))
		if name == "" {
			return nil
		}
		return &GpuInfo{Name: name, Type: GpuTypeAmd}
	}

	out, err := run(ctx, "rocm-smi", "--showproductname", "--showmeminfo", "vram")
	if err != nil {
		return nil
	}
	return parseRocmSmi(string(out))
}

var numericRegex = regexp.MustCompile(`(\d+)`)

// parseRocmSmi extracts the card name and total VRAM from rocm-smi output.
func parseRocmSmi(out string) *GpuInfo {
	info := &GpuInfo{Name: "AMD GPU", VramGB: 8, Type: GpuTypeAmd}
	lines := strings.Split(out, "\n")

	for _, line := range lines {
		if strings.Contains(line, "Card series:") {
			if _, value, ok := strings.Cut(line, "Card series:"); ok && strings.TrimSpace(value) != "" {
				info.Name = "AMD " + strings.TrimSpace(value)
			}
			break
		}
	}

	for _, line := range lines {
		if !strings.Contains(line, "Total Memory") && !strings.Contains(line, "VRAM Total") {
			continue
		}
		_, value, _ := strings.Cut(line, ":")
		matches := numericRegex.FindAllString(value, -1)
		if len(matches) == 0 {
			break
		}
		n, err := strconv.ParseUint(matches[len(matches)-1], 10, 64)
		if err != nil {
			break
		}
		switch {
		case n > 1_000_000_000:
			info.VramGB = uint32(n / 1_073_741_824)
		case n > 1_000_000:
			info.VramGB = uint32(n / 1024)
		default:
			info.VramGB = uint32(n)
		}
		break
	}
	return info
}

var appleChips = []string{
	"M4 Ultra", "M4 Max", "M4 Pro", "M4",
	"M3 Ultra", "M3 Max", "M3 Pro", "M3",
	"M2 Ultra", "M2 Max", "M2 Pro", "M2",
	"M1 Ultra", "M1 Max", "M1 Pro", "M1",
}

func probeAppleSilicon(ctx context.Context, run runner, goos string) *GpuInfo {
	if goos != "darwin" {
		return nil
	}
	out, err := run(ctx, "system_profiler", "SPDisplaysDataType", "-json")
	if err != nil {
		return nil
	}
	info := parseSystemProfiler(string(out))
	if info == nil {
		return nil
	}
	if mem, err := run(ctx, "sysctl", "-n", "hw.memsize"); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(string(mem)), 10, 64); err == nil {
			info.VramGB = uint32(n / 1_073_741_824)
		}
	}
	return info
}

// parseSystemProfiler recognizes Apple Silicon in system_profiler output.
func parseSystemProfiler(out string) *GpuInfo {
	if !strings.Contains(out, "Apple") {
		return nil
	}
	info := &GpuInfo{Name: "Apple Silicon", VramGB: 8, Type: GpuTypeAppleSilicon}
	for _, chip := range appleChips {
		if strings.Contains(out, chip) {
			info.Name = "Apple " + chip
			break
		}
	}
	return info
}

func probeIntelArc(ctx context.Context, run runner, goos string) *GpuInfo {
	out, err := run(ctx, "intel_gpu_top", "-L")
	if err != nil {
		return nil
	}
	return parseIntelGpuTop(string(out))
}

var intelArcModels = []struct {
	id     string
	name   string
	vramGB uint32
}{
	{"a770", "Intel Arc A770", 16},
	{"a750", "Intel Arc A750", 8},
	{"a580", "Intel Arc A580", 8},
	{"a380", "Intel Arc A380", 6},
	{"a310", "Intel Arc A310", 4},
}

// parseIntelGpuTop recognizes a discrete Arc card in intel_gpu_top -L output.
func parseIntelGpuTop(out string) *GpuInfo {
	lower := strings.ToLower(out)
	if !strings.Contains(lower, "arc") {
		return nil
	}
	info := &GpuInfo{Name: "Intel Arc", VramGB: 8, Type: GpuTypeIntel}
	for _, m := range intelArcModels {
		if strings.Contains(lower, m.id) {
			info.Name, info.VramGB = m.name, m.vramGB
			break
		}
	}
	return info
}
