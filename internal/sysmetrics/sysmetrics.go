// Package sysmetrics implements health checking and resource sampling
// for the apiserver and worker processes, adapted from the teacher's
// monitoring.HealthChecker and MetricsCollector, with CPU/memory
// sampling via gopsutil in place of the teacher's runtime.MemStats-only
// view (gopsutil reports host-level figures, useful when the worker's
// child processes dominate resource use).
package sysmetrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HealthChecker runs a set of named checks and reports overall status.
type HealthChecker struct {
	checks map[string]func() error
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]func() error)}
}

func (h *HealthChecker) RegisterCheck(name string, check func() error) {
	h.checks[name] = check
}

func (h *HealthChecker) CheckHealth() map[string]interface{} {
	results := make(map[string]interface{})
	overall := true

	for name, check := range h.checks {
		if err := check(); err != nil {
			results[name] = map[string]interface{}{"status": "failed", "error": err.Error()}
			overall = false
		} else {
			results[name] = map[string]interface{}{"status": "ok"}
		}
	}

	results["overall"] = overall
	results["timestamp"] = time.Now().Unix()
	return results
}

// ResourceSample is a point-in-time CPU/memory reading, reported to the
// Tracker as "system/"-prefixed performance metrics per spec.md §4.F.
type ResourceSample struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
}

// Sample takes one CPU/memory reading. The CPU read blocks for a short
// interval to compute a percentage; callers should not call it on a hot
// path.
func Sample(ctx context.Context, interval time.Duration) (ResourceSample, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return ResourceSample{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return ResourceSample{}, err
	}

	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	return ResourceSample{
		CPUPercent:    cpuPct,
		MemoryPercent: vm.UsedPercent,
		MemoryUsedMB:  float64(vm.Used) / (1024 * 1024),
	}, nil
}

// AsPerformanceMetrics converts a sample into the free-form map the
// Worker merges into a job's reported metrics under the "system/"
// prefix (spec.md §4.F step 9).
func (r ResourceSample) AsPerformanceMetrics() map[string]float64 {
	return map[string]float64{
		"cpu_percent":     r.CPUPercent,
		"memory_percent":  r.MemoryPercent,
		"memory_used_mb":  r.MemoryUsedMB,
	}
}
