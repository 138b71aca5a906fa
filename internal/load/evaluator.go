// ABOUTME: Translates absolute usages into utilization percentages and imbalance signals
// ABOUTME: Exposes stable host-ordered lookups consumed by the constraint engine and planner

package load

import (
	"log/slog"

	"github.com/example-infra/vcbalancer/internal/cluster"
)

// aggressivenessThresholds is the percentage-point max-min gap tolerated at
// each aggressiveness level. Higher aggressiveness means lower tolerance.
var aggressivenessThresholds = map[int]float64{
	1: 25,
	2: 20,
	3: 15,
	4: 10,
	5: 5,
}

const defaultAggressiveness = 3

// HostPercentages is the per-host utilization snapshot for all four tracked
// resources.
type HostPercentages struct {
	CPU     float64
	Memory  float64
	Disk    float64
	Network float64
}

// ImbalanceDetail describes whether and how much a single resource is
// imbalanced across the observed hosts.
type ImbalanceDetail struct {
	IsImbalanced bool
	CurrentDiff  float64
	Threshold    float64
	MinUsage     float64
	MaxUsage     float64
	AvgUsage     float64
}

// Evaluator derives utilization percentages and imbalance signals from a
// cluster snapshot. It holds no mutable state beyond what it computed once
// at construction; re-evaluating against simulated percentages is done via
// the overrides parameter of EvaluateImbalance, not by rebuilding the
// Evaluator.
type Evaluator struct {
	hosts []cluster.Host
	log   *slog.Logger

	cpu, mem, disk, net []float64
}

// New builds an Evaluator over the snapshot's hosts, in the snapshot's
// stable host ordering.
func New(snap *cluster.Snapshot, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	hosts := snap.Hosts()
	e := &Evaluator{
		hosts: hosts,
		log:   log.With("component", "load"),
	}
	e.cpu = make([]float64, len(hosts))
	e.mem = make([]float64, len(hosts))
	e.disk = make([]float64, len(hosts))
	e.net = make([]float64, len(hosts))
	for i, h := range hosts {
		e.cpu[i] = h.CPUUsagePct()
		e.mem[i] = h.MemoryUsagePct()
		e.disk[i] = h.DiskUsagePct()
		e.net[i] = h.NetworkUsagePct()
	}
	return e
}

// PerHostPercentages returns the four percentage arrays in snapshot host order.
func (e *Evaluator) PerHostPercentages() (cpu, mem, disk, net []float64) {
	return e.cpu, e.mem, e.disk, e.net
}

// HostPercentageMap returns a HostId-keyed view of the same data.
func (e *Evaluator) HostPercentageMap() map[cluster.HostId]HostPercentages {
	out := make(map[cluster.HostId]HostPercentages, len(e.hosts))
	for i, h := range e.hosts {
		if h.Id == "" {
			continue
		}
		out[h.Id] = HostPercentages{
			CPU:     e.cpu[i],
			Memory:  e.mem[i],
			Disk:    e.disk[i],
			Network: e.net[i],
		}
	}
	return out
}

// Thresholds returns the per-resource max-min gap tolerated at the given
// aggressiveness level. Unknown levels default to level 3 with a warning.
func (e *Evaluator) Thresholds(aggressiveness int) map[string]float64 {
	t, ok := aggressivenessThresholds[aggressiveness]
	if !ok {
		e.log.Warn("unknown aggressiveness level, defaulting to level 3", "aggressiveness", aggressiveness)
		t = aggressivenessThresholds[defaultAggressiveness]
	}
	return map[string]float64{
		cluster.ResourceCPU:     t,
		cluster.ResourceMemory:  t,
		cluster.ResourceDisk:    t,
		cluster.ResourceNetwork: t,
	}
}

// Overrides lets EvaluateImbalance re-evaluate against simulated per-host
// percentages without rebuilding the Evaluator.
type Overrides struct {
	CPU, Memory, Disk, Network []float64
}

// EvaluateImbalance reports, for each requested resource, whether
// max(pct)-min(pct) exceeds the aggressiveness threshold. Samples below 2
// hosts are always reported balanced.
func (e *Evaluator) EvaluateImbalance(resources []string, aggressiveness int, overrides *Overrides) map[string]ImbalanceDetail {
	thresholds := e.Thresholds(aggressiveness)
	result := make(map[string]ImbalanceDetail, len(resources))

	values := func(resource string) []float64 {
		if overrides != nil {
			switch resource {
			case cluster.ResourceCPU:
				return overrides.CPU
			case cluster.ResourceMemory:
				return overrides.Memory
			case cluster.ResourceDisk:
				return overrides.Disk
			case cluster.ResourceNetwork:
				return overrides.Network
			}
		}
		switch resource {
		case cluster.ResourceCPU:
			return e.cpu
		case cluster.ResourceMemory:
			return e.mem
		case cluster.ResourceDisk:
			return e.disk
		case cluster.ResourceNetwork:
			return e.net
		}
		return nil
	}

	for _, resource := range resources {
		vals := values(resource)
		threshold := thresholds[resource]
		detail := ImbalanceDetail{Threshold: threshold}
		if len(vals) < 2 {
			result[resource] = detail
			continue
		}
		minV, maxV, sum := vals[0], vals[0], 0.0
		for _, v := range vals {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
			sum += v
		}
		detail.MinUsage = minV
		detail.MaxUsage = maxV
		detail.AvgUsage = sum / float64(len(vals))
		detail.CurrentDiff = maxV - minV
		detail.IsImbalanced = detail.CurrentDiff > threshold
		if detail.IsImbalanced {
			e.log.Info("resource imbalanced", "resource", resource, "diff", detail.CurrentDiff, "threshold", threshold)
		}
		result[resource] = detail
	}
	return result
}
