// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheTTL is how long a SystemGate trusts its last probe.
const CacheTTL = 5 * time.Minute

// Device names passed to the engine.
const (
	DeviceGPU = "gpu"
	DeviceCPU = "cpu"
)

// Gate decides whether a model may be loaded and on which device.
type Gate interface {
	HasAcceleratedBackend(ctx context.Context) bool
	Device(ctx context.Context) string
}

// =============================================================================
// SYSTEM GATE
// =============================================================================

// SystemGate probes the machine and caches the result for CacheTTL.
type SystemGate struct {
	logger *zap.Logger
	probe  func(context.Context) *GpuInfo
	now    func() time.Time

	mu       sync.Mutex
	info     *GpuInfo
	probedAt time.Time
}

// NewSystemGate creates a gate backed by Detect.
func NewSystemGate(logger *zap.Logger) *SystemGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemGate{logger: logger, probe: Detect, now: time.Now}
}

// Info returns the detected GPU, probing when the cache is empty or stale.
func (g *SystemGate) Info(ctx context.Context) *GpuInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.info != nil && g.now().Sub(g.probedAt) < CacheTTL {
		return g.info
	}

	info := g.probe(ctx)
	if info == nil {
		info = cpuOnly()
	}
	g.info = info
	g.probedAt = g.now()
	g.logger.Info("gpu detected",
		zap.Stringer("type", info.Type),
		zap.String("name", info.Name),
		zap.Uint32("vram_gb", info.VramGB))
	return info
}

// HasAcceleratedBackend implements Gate.
func (g *SystemGate) HasAcceleratedBackend(ctx context.Context) bool {
	return g.Info(ctx).Accelerated()
}

// Device implements Gate.
func (g *SystemGate) Device(ctx context.Context) string {
	if g.HasAcceleratedBackend(ctx) {
		return DeviceGPU
	}
	return DeviceCPU
}

// =============================================================================
// OPEN GATE
// =============================================================================

// OpenGate always allows loading. It is used when the accelerator
// requirement is switched off; Device reports the underlying detection.
type OpenGate struct {
	System *SystemGate
}

// HasAcceleratedBackend implements Gate.
func (OpenGate) HasAcceleratedBackend(context.Context) bool { return true }

// Device implements Gate.
func (g OpenGate) Device(ctx context.Context) string {
	if g.System == nil {
		return DeviceCPU
	}
	return g.System.Device(ctx)
}
