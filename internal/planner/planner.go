// ABOUTME: Orchestrates one planning cycle: anti-affinity pass, simulation, balancing pass, cap
// ABOUTME: No back-edges; any invariant violation aborts with an empty plan and an error

package planner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/example-infra/vcbalancer/internal/cluster"
	"github.com/example-infra/vcbalancer/internal/constraint"
	"github.com/example-infra/vcbalancer/internal/load"
)

const (
	defaultMaxTotalMigrations = 20
	capacityFitCeilingPct     = 90.0
)

// Options configures a single planning cycle.
type Options struct {
	Aggressiveness     int
	MaxTotalMigrations int // 0 means defaultMaxTotalMigrations
	IgnoreAntiAffinity bool
	Resources          []string // subset of cluster.AllResources; nil means all

	RunAntiAffinity bool // always true in practice; kept explicit for CLI parity
	RunBalance      bool

	Logger *slog.Logger
}

// Plan is the result of one planning cycle.
type Plan struct {
	Intents  []cluster.MigrationIntent
	Warnings []string
	State    State
}

// Planner runs a single planning cycle over a fixed snapshot.
type Planner struct {
	snap       *cluster.Snapshot
	constraint *constraint.Engine
	evaluator  *load.Evaluator
	opts       Options
	log        *slog.Logger
}

// New builds a Planner. snap, constraintEngine and evaluator must all be
// built from the same snapshot.
func New(snap *cluster.Snapshot, constraintEngine *constraint.Engine, evaluator *load.Evaluator, opts Options) *Planner {
	if opts.MaxTotalMigrations <= 0 {
		opts.MaxTotalMigrations = defaultMaxTotalMigrations
	}
	if len(opts.Resources) == 0 {
		opts.Resources = cluster.AllResources
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Planner{
		snap:       snap,
		constraint: constraintEngine,
		evaluator:  evaluator,
		opts:       opts,
		log:        log.With("component", "planner"),
	}
}

// invariantError marks a fatal, plan-aborting internal invariant violation,
// as opposed to a skip-and-continue degraded condition.
type invariantError struct{ msg string }

func (e *invariantError) Error() string { return "planner: invariant violation: " + e.msg }

// Plan runs one planning cycle through the AntiAffinity -> Balance -> Terminal
// state machine, producing an ordered, capped, duplicate-free intent list.
func (p *Planner) Plan() (*Plan, error) {
	state := Initial
	warnings := append([]string(nil), p.snap.Warnings...)
	warn := func(msg string) { warnings = append(warnings, msg) }

	state = SnapshotBuilt

	violations := p.constraint.ComputeViolations()
	state = ConstraintsEvaluated

	planned := make(map[cluster.VmId]bool)
	var aaPlan []cluster.MigrationIntent

	if p.opts.RunAntiAffinity {
		for _, vmId := range violations {
			if planned[vmId] {
				continue
			}
			vm, ok := p.snap.VmById(vmId)
			if !ok {
				continue
			}
			sourceHostId, ok := p.snap.HostOfVm(vmId)
			if !ok {
				continue
			}
			targetHostId, ok := p.constraint.PreferredHost(vmId, aaPlan)
			if !ok {
				warn(fmt.Sprintf("no anti-affinity target found for vm %q", vm.Name))
				continue
			}
			overlay := p.snap.ApplySimulated(aaPlan)
			if !p.capacityFits(overlay, vm, targetHostId) {
				warn(fmt.Sprintf("anti-affinity target %q for vm %q fails capacity fit, skipped", targetHostId, vm.Name))
				continue
			}
			intent := cluster.MigrationIntent{
				VmId: vmId, SourceHostId: sourceHostId, TargetHostId: targetHostId,
				Reason: cluster.ReasonAntiAffinity,
			}
			aaPlan = append(aaPlan, intent)
			planned[vmId] = true
		}
	}
	state = AntiAffinityPlanned

	var cpu, mem, disk, net []float64
	if len(aaPlan) > 0 {
		overlay := p.snap.ApplySimulated(aaPlan)
		cpu, mem, disk, net = overlay.Percentages()
		state = SimulationApplied
	} else {
		cpu, mem, disk, net = p.evaluator.PerHostPercentages()
	}

	var balancePlan []cluster.MigrationIntent
	if p.opts.RunBalance {
		imbalance := p.evaluator.EvaluateImbalance(p.opts.Resources, p.opts.Aggressiveness, &load.Overrides{
			CPU: cpu, Memory: mem, Disk: disk, Network: net,
		})

		imbalancedResources := make([]string, 0, len(imbalance))
		for _, r := range p.opts.Resources {
			if d, ok := imbalance[r]; ok && d.IsImbalanced {
				imbalancedResources = append(imbalancedResources, r)
			}
		}
		sort.Strings(imbalancedResources)

		hosts := p.snap.Hosts()
		percentFor := func(resource string, i int) float64 {
			switch resource {
			case cluster.ResourceCPU:
				return cpu[i]
			case cluster.ResourceMemory:
				return mem[i]
			case cluster.ResourceDisk:
				return disk[i]
			case cluster.ResourceNetwork:
				return net[i]
			}
			return 0
		}
		absFor := func(resource string, vm cluster.Vm) float64 {
			switch resource {
			case cluster.ResourceCPU:
				return vm.CPUAbsUsageMHz
			case cluster.ResourceMemory:
				return vm.MemoryAbsUsageMB
			case cluster.ResourceDisk:
				return vm.DiskIoAbsUsageMBps
			case cluster.ResourceNetwork:
				return vm.NetworkIoAbsUsageMBps
			}
			return 0
		}

		for _, resource := range imbalancedResources {
			detail := imbalance[resource]
			var sourceHosts []cluster.HostId
			for i, h := range hosts {
				if h.Id == "" {
					continue
				}
				if percentFor(resource, i) == detail.MaxUsage {
					sourceHosts = append(sourceHosts, h.Id)
				}
			}
			sort.Slice(sourceHosts, func(i, j int) bool { return sourceHosts[i] < sourceHosts[j] })

			for _, sourceHostId := range sourceHosts {
				candidates := p.snap.VmsOnHost(sourceHostId)
				sort.Slice(candidates, func(i, j int) bool {
					vi, _ := p.snap.VmById(candidates[i])
					vj, _ := p.snap.VmById(candidates[j])
					return absFor(resource, vi) > absFor(resource, vj)
				})
				limit := p.opts.Aggressiveness
				if limit <= 0 {
					limit = defaultAggressivenessLimit
				}
				if limit > len(candidates) {
					limit = len(candidates)
				}

				for _, vmId := range candidates[:limit] {
					if planned[vmId] {
						continue
					}
					vm, ok := p.snap.VmById(vmId)
					if !ok {
						continue
					}
					targetHostId, ok := p.findBalancingTarget(vm, sourceHostId, imbalancedResources, cpu, mem, disk, net, append(aaPlan, balancePlan...))
					if !ok {
						continue
					}
					intent := cluster.MigrationIntent{
						VmId: vmId, SourceHostId: sourceHostId, TargetHostId: targetHostId,
						Reason: cluster.ReasonBalance,
					}
					balancePlan = append(balancePlan, intent)
					planned[vmId] = true
				}
			}
		}
	}
	state = BalancingPlanned

	combined := make([]cluster.MigrationIntent, 0, len(aaPlan)+len(balancePlan))
	combined = append(combined, aaPlan...)
	combined = append(combined, balancePlan...)

	if err := checkNoDuplicates(combined); err != nil {
		return &Plan{State: state}, err
	}

	if len(combined) > p.opts.MaxTotalMigrations {
		combined = capPlan(combined, p.opts.MaxTotalMigrations)
		state = Capped
	}
	state = Terminal

	return &Plan{Intents: combined, Warnings: warnings, State: state}, nil
}

// defaultAggressivenessLimit bounds per-host candidate selection when
// Aggressiveness is unset or non-positive.
const defaultAggressivenessLimit = 3

// capacityFits checks that projected CPU% and memory% after adding the VM's
// absolute usage to the target host's current (overlay-adjusted) absolute
// usage must both be <= 90.
func (p *Planner) capacityFits(overlay *cluster.Overlay, vm cluster.Vm, targetHostId cluster.HostId) bool {
	target, ok := p.snap.HostById(targetHostId)
	if !ok {
		return false
	}
	projectedCPU := overlay.CPUAbsUsage(targetHostId) + vm.CPUAbsUsageMHz
	projectedMem := overlay.MemoryAbsUsage(targetHostId) + vm.MemoryAbsUsageMB

	cpuPct := cluster.Pct(projectedCPU, target.CPUCapacityMHz)
	memPct := cluster.Pct(projectedMem, target.MemoryCapacityMB)
	return cpuPct <= capacityFitCeilingPct && memPct <= capacityFitCeilingPct
}

// findBalancingTarget implements spec.md §4.4 step 4: iterate hosts, skip
// the source, require capacity fit, require anti-affinity safety (unless
// ignored), score by sum over imbalanced resources of (100 - target pct),
// highest score wins.
func (p *Planner) findBalancingTarget(
	vm cluster.Vm,
	source cluster.HostId,
	imbalancedResources []string,
	cpu, mem, disk, net []float64,
	plannedSoFar []cluster.MigrationIntent,
) (cluster.HostId, bool) {
	overlay := p.snap.ApplySimulated(plannedSoFar)
	hosts := p.snap.Hosts()
	hostIndex := make(map[cluster.HostId]int, len(hosts))
	for i, h := range hosts {
		if h.Id != "" {
			hostIndex[h.Id] = i
		}
	}

	percentFor := func(resource string, i int) float64 {
		switch resource {
		case cluster.ResourceCPU:
			return cpu[i]
		case cluster.ResourceMemory:
			return mem[i]
		case cluster.ResourceDisk:
			return disk[i]
		case cluster.ResourceNetwork:
			return net[i]
		}
		return 0
	}

	var bestHost cluster.HostId
	bestScore := 0.0
	found := false

	for _, h := range hosts {
		if h.Id == "" || h.Id == source {
			continue
		}
		if !p.capacityFits(overlay, vm, h.Id) {
			continue
		}
		if !p.opts.IgnoreAntiAffinity {
			candidate := cluster.MigrationIntent{VmId: vm.Id, SourceHostId: source, TargetHostId: h.Id, Reason: cluster.ReasonBalance}
			if !p.constraint.IsAaSafe(vm.Id, candidate, plannedSoFar) {
				continue
			}
		}
		idx := hostIndex[h.Id]
		score := 0.0
		for _, resource := range imbalancedResources {
			score += 100 - percentFor(resource, idx)
		}
		if !found || score > bestScore {
			bestScore = score
			bestHost = h.Id
			found = true
		}
	}
	return bestHost, found
}

func checkNoDuplicates(intents []cluster.MigrationIntent) error {
	seen := make(map[cluster.VmId]struct{}, len(intents))
	for _, i := range intents {
		if _, dup := seen[i.VmId]; dup {
			return &invariantError{msg: fmt.Sprintf("vm %q planned more than once", i.VmId)}
		}
		seen[i.VmId] = struct{}{}
	}
	return nil
}

// capPlan enforces maxTotalMigrations: anti-affinity intents are preferred
// first, then balancing intents fill remaining slots in plan order.
func capPlan(intents []cluster.MigrationIntent, max int) []cluster.MigrationIntent {
	var aa, bal []cluster.MigrationIntent
	for _, i := range intents {
		if i.Reason == cluster.ReasonAntiAffinity {
			aa = append(aa, i)
		} else {
			bal = append(bal, i)
		}
	}
	out := make([]cluster.MigrationIntent, 0, max)
	for _, i := range aa {
		if len(out) >= max {
			return out
		}
		out = append(out, i)
	}
	for _, i := range bal {
		if len(out) >= max {
			return out
		}
		out = append(out, i)
	}
	return out
}
