// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect probes the machine for an accelerated compute backend.
//
// # Key Types
//
//   - GpuInfo: the detected GPU (type, name, VRAM, driver)
//   - Gate: answers whether loading should be allowed and which device to use
//   - SystemGate: Gate backed by the system probes, cached for CacheTTL
//
// # Supported GPU Types
//
//   - NVIDIA (via nvidia-smi)
//   - AMD (via rocm-smi on Linux, CIM on Windows)
//   - Apple Silicon (via system_profiler on macOS)
//   - Intel Arc (via intel_gpu_top)
//
// # Usage
//
//	gate := detect.NewSystemGate(logger)
//	if !gate.HasAcceleratedBackend(ctx) {
//		fmt.Println("no GPU found")
//	}
package detect
