// ABOUTME: Builds and serves a consistent, construction-immutable cluster model
// ABOUTME: Source of truth for every other planning component in one cycle

package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example-infra/vcbalancer/internal/cache"
)

// defaultIoCapacityFloor is the disk/network capacity substituted when a
// MetricsSource reports zero, to avoid treating "no capacity data" the same
// as "definitely zero capacity" and to keep percentage math finite.
const defaultIoCapacityFloor = 1.0

// defaultConcurrency bounds the metric-collection worker pool when the
// caller does not specify one.
const defaultConcurrency = 8

// BuildOptions configures Snapshot construction.
type BuildOptions struct {
	// Concurrency bounds the number of simultaneous metric RPCs. Defaults
	// to defaultConcurrency when <= 0.
	Concurrency int
	Logger      *slog.Logger
}

// Snapshot is the per-cycle, construction-immutable model of hosts, VMs,
// placements, capacities, and usages. Nothing outlives a single invocation.
type Snapshot struct {
	hosts []Host
	vms   []Vm

	hostIndex map[HostId]int
	vmIndex   map[VmId]int

	// hostVMs and vmHost are the bidirectional Placement relationship.
	hostVMs map[HostId][]VmId
	vmHost  map[VmId]HostId

	Warnings []string
}

var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// PrefixOf strips trailing decimal digits from a VM name to derive its
// affinity-group key. Names shorter than 3 characters are not grouped.
// If stripping digits yields an empty string, the original name is used.
func PrefixOf(name string) (prefix string, ok bool) {
	if len(name) < 3 {
		return "", false
	}
	stripped := trailingDigits.ReplaceAllString(name, "")
	if stripped == "" {
		return name, true
	}
	return stripped, true
}

// Build enumerates active hosts and powered-on non-template VMs, fetches
// their absolute usage counters (via a bounded worker pool), and assembles
// the resulting Snapshot. Construction that cannot reach the inventory
// source at all is fatal; per-entity metric failures degrade to zero with a
// warning so planning can proceed defensively.
func Build(ctx context.Context, inv InventorySource, metrics MetricsSource, opts BuildOptions) (*Snapshot, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "cluster")

	hostRefs, err := inv.ActiveHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: listing active hosts: %w", err)
	}
	vmRefs, err := inv.PoweredOnVms(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: listing powered-on vms: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	metricCache := cache.New(0)
	defer metricCache.Close()

	s := &Snapshot{
		hostIndex: make(map[HostId]int, len(hostRefs)),
		vmIndex:   make(map[VmId]int, len(vmRefs)),
		hostVMs:   make(map[HostId][]VmId, len(hostRefs)),
		vmHost:    make(map[VmId]HostId, len(vmRefs)),
	}

	// Phase 1: VM annotation, so per-host totals can be derived afterwards.
	vms := make([]Vm, len(vmRefs))
	var warnMu warningsCollector
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range vmRefs {
		i, ref := i, ref
		if ref.Id == "" || ref.CurrentHostId == "" {
			warnMu.add(fmt.Sprintf("vm %q has no id or no current host, skipped", ref.Name))
			continue
		}
		g.Go(func() error {
			key := "vm:" + string(ref.Id)
			raw, err := metricCache.GetOrLoad(key, func() (any, error) {
				return metrics.VmMetrics(gctx, ref.Id)
			})
			vm := Vm{Id: ref.Id, Name: ref.Name, CurrentHostId: ref.CurrentHostId}
			if err != nil {
				warnMu.add(fmt.Sprintf("vm %q metrics unavailable, degraded to zero: %v", ref.Name, err))
			} else {
				m := raw.(VmMetrics)
				vm.CPUAbsUsageMHz = m.CPUAbsMHz
				vm.MemoryAbsUsageMB = m.MemoryAbsMB
				vm.DiskIoAbsUsageMBps = m.DiskAbsMBps
				vm.NetworkIoAbsUsageMBps = m.NetworkAbsMBps
			}
			vms[i] = vm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cluster: collecting vm metrics: %w", err)
	}

	// Phase 2: host annotation. Host memory usage is authoritative from the
	// host's own counter — never derived by summing guest memory.
	hosts := make([]Host, len(hostRefs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range hostRefs {
		i, ref := i, ref
		if ref.Id == "" {
			warnMu.add(fmt.Sprintf("host %q has no id, skipped", ref.Name))
			continue
		}
		g.Go(func() error {
			key := "host:" + string(ref.Id)
			raw, err := metricCache.GetOrLoad(key, func() (any, error) {
				return metrics.HostMetrics(gctx, ref.Id)
			})
			h := Host{Id: ref.Id, Name: ref.Name}
			if err != nil {
				warnMu.add(fmt.Sprintf("host %q metrics unavailable, degraded to zero: %v", ref.Name, err))
				h.DiskIoCapacityMBps = defaultIoCapacityFloor
				h.NetworkCapacityMBps = defaultIoCapacityFloor
			} else {
				m := raw.(HostMetrics)
				h.CPUAbsUsageMHz = m.CPUAbsMHz
				h.MemoryAbsUsageMB = m.MemoryAbsMB
				h.DiskIoAbsUsageMBps = m.DiskAbsMBps
				h.NetworkIoAbsUsageMBps = m.NetworkAbsMBps
				h.CPUCapacityMHz = m.CPUCapMHz
				h.MemoryCapacityMB = m.MemoryCapMB
				h.DiskIoCapacityMBps = m.DiskCapMBps
				if h.DiskIoCapacityMBps <= 0 {
					h.DiskIoCapacityMBps = defaultIoCapacityFloor
				}
				h.NetworkCapacityMBps = m.NetworkCapMBps
				if h.NetworkCapacityMBps <= 0 {
					h.NetworkCapacityMBps = defaultIoCapacityFloor
				}
			}
			hosts[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cluster: collecting host metrics: %w", err)
	}

	for i, h := range hosts {
		if h.Id == "" {
			continue
		}
		s.hostIndex[h.Id] = i
		s.hostVMs[h.Id] = nil
	}
	s.hosts = hosts

	for i, vm := range vms {
		if vm.Id == "" {
			continue
		}
		if _, ok := s.hostIndex[vm.CurrentHostId]; !ok {
			warnMu.add(fmt.Sprintf("vm %q references unknown host %q, skipped", vm.Name, vm.CurrentHostId))
			continue
		}
		s.vmIndex[vm.Id] = i
		s.vmHost[vm.Id] = vm.CurrentHostId
		s.hostVMs[vm.CurrentHostId] = append(s.hostVMs[vm.CurrentHostId], vm.Id)
	}
	s.vms = vms
	s.Warnings = warnMu.drain()

	for _, w := range s.Warnings {
		log.Warn(w)
	}
	return s, nil
}

// Hosts returns the snapshot's hosts in stable, construction order.
func (s *Snapshot) Hosts() []Host { return s.hosts }

// Vms returns the snapshot's VMs in stable, construction order.
func (s *Snapshot) Vms() []Vm { return s.vms }

// HostById looks up a host by id.
func (s *Snapshot) HostById(id HostId) (Host, bool) {
	i, ok := s.hostIndex[id]
	if !ok {
		return Host{}, false
	}
	return s.hosts[i], true
}

// VmById looks up a VM by id.
func (s *Snapshot) VmById(id VmId) (Vm, bool) {
	i, ok := s.vmIndex[id]
	if !ok {
		return Vm{}, false
	}
	return s.vms[i], true
}

// VmsOnHost returns the ids of VMs currently placed on host id.
func (s *Snapshot) VmsOnHost(id HostId) []VmId {
	out := make([]VmId, len(s.hostVMs[id]))
	copy(out, s.hostVMs[id])
	return out
}

// HostOfVm returns the host a VM currently sits on.
func (s *Snapshot) HostOfVm(id VmId) (HostId, bool) {
	h, ok := s.vmHost[id]
	return h, ok
}

// HostIds returns host ids in the snapshot's stable order.
func (s *Snapshot) HostIds() []HostId {
	ids := make([]HostId, 0, len(s.hosts))
	for _, h := range s.hosts {
		if h.Id != "" {
			ids = append(ids, h.Id)
		}
	}
	return ids
}

// warningsCollector gathers degrade/skip warnings across concurrent goroutines.
type warningsCollector struct {
	mu   sync.Mutex
	list []string
}

func (w *warningsCollector) add(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.list = append(w.list, msg)
}

func (w *warningsCollector) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.list
}
