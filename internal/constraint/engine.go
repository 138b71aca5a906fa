// ABOUTME: Enforces anti-affinity distribution of same-prefix VM groups
// ABOUTME: Two-pass preferred-host selection accounting for in-cycle planned moves

package constraint

import (
	"log/slog"
	"sort"

	"github.com/example-infra/vcbalancer/internal/cluster"
)

// Engine groups VMs by affinity prefix and detects/resolves anti-affinity
// violations for one snapshot. It caches its grouping on first use.
type Engine struct {
	snap *cluster.Snapshot
	log  *slog.Logger

	groups map[string]map[cluster.VmId]struct{}
}

// New builds an Engine over a snapshot. Grouping is computed lazily on the
// first call that needs it.
func New(snap *cluster.Snapshot, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{snap: snap, log: log.With("component", "constraint")}
}

// GroupVms builds and caches the prefix -> VmIds grouping.
func (e *Engine) GroupVms() map[string]map[cluster.VmId]struct{} {
	if e.groups != nil {
		return e.groups
	}
	groups := make(map[string]map[cluster.VmId]struct{})
	for _, vm := range e.snap.Vms() {
		if vm.Id == "" {
			continue
		}
		prefix, ok := cluster.PrefixOf(vm.Name)
		if !ok {
			e.log.Warn("vm name too short to group, skipped", "vm", vm.Name)
			continue
		}
		if groups[prefix] == nil {
			groups[prefix] = make(map[cluster.VmId]struct{})
		}
		groups[prefix][vm.Id] = struct{}{}
	}
	e.groups = groups
	return groups
}

// groupOf returns the prefix and VM-id set for vmId's affinity group, or
// ("", nil, false) if vmId cannot be grouped.
func (e *Engine) groupOf(vmId cluster.VmId) (string, map[cluster.VmId]struct{}, bool) {
	vm, ok := e.snap.VmById(vmId)
	if !ok {
		return "", nil, false
	}
	prefix, ok := cluster.PrefixOf(vm.Name)
	if !ok {
		return "", nil, false
	}
	group := e.GroupVms()[prefix]
	if group == nil {
		return "", nil, false
	}
	return prefix, group, true
}

// ComputeViolations returns, for every anti-affinity group whose host-count
// spread exceeds 1, every VM currently on a host at the group's max count.
// The returned list is de-duplicated. Zero or one active host yields no
// violations (not an error).
func (e *Engine) ComputeViolations() []cluster.VmId {
	activeHosts := e.snap.HostIds()
	if len(activeHosts) < 2 {
		return nil
	}

	seen := make(map[cluster.VmId]struct{})
	var out []cluster.VmId

	groups := e.GroupVms()
	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		vmSet := groups[prefix]
		counts := make(map[cluster.HostId]int, len(activeHosts))
		onHost := make(map[cluster.HostId][]cluster.VmId, len(activeHosts))
		for _, h := range activeHosts {
			counts[h] = 0
		}
		for vmId := range vmSet {
			hostId, ok := e.snap.HostOfVm(vmId)
			if !ok {
				continue
			}
			if _, tracked := counts[hostId]; !tracked {
				continue
			}
			counts[hostId]++
			onHost[hostId] = append(onHost[hostId], vmId)
		}

		minCount, maxCount := minMax(counts, activeHosts)
		if maxCount-minCount <= 1 {
			continue
		}
		for _, h := range activeHosts {
			if counts[h] != maxCount {
				continue
			}
			for _, vmId := range onHost[h] {
				if _, dup := seen[vmId]; dup {
					continue
				}
				seen[vmId] = struct{}{}
				out = append(out, vmId)
			}
		}
	}
	return out
}

func minMax(counts map[cluster.HostId]int, hosts []cluster.HostId) (min, max int) {
	first := true
	for _, h := range hosts {
		v := counts[h]
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// PreferredHost finds a host to move vmId to such that, accounting for
// plannedIntents already issued in the current cycle, anti-affinity is
// satisfied as well as possible. Returning "", false is a legal outcome.
//
// Pass 1 (perfect balance): among candidate targets (excluding source),
// pick the one whose post-move group counts have max-min <= 1 across active
// hosts, breaking ties by lowest current group count then lexicographically
// smallest host name.
//
// Pass 2 (fallback): if no candidate achieves perfect balance, pick any
// host whose current group count is strictly less than the source's,
// again breaking ties by count then name.
func (e *Engine) PreferredHost(vmId cluster.VmId, plannedIntents []cluster.MigrationIntent) (cluster.HostId, bool) {
	_, group, ok := e.groupOf(vmId)
	if !ok {
		return "", false
	}
	sourceHostId, ok := e.snap.HostOfVm(vmId)
	if !ok {
		return "", false
	}
	activeHosts := e.snap.HostIds()
	if len(activeHosts) < 2 {
		return "", false
	}

	overlay := e.snap.ApplySimulated(plannedIntents)
	baseCounts := overlay.GroupCountsOnActiveHosts(group, activeHosts)
	// The overlay already reflects plannedIntents; vmId itself hasn't moved
	// yet under the overlay unless it appears in plannedIntents (forbidden
	// by the no-duplicate-intent invariant), so baseCounts is the correct
	// "before this decision" state.

	hostName := func(h cluster.HostId) string {
		host, _ := e.snap.HostById(h)
		return host.Name
	}

	var perfect []candidateT
	for _, target := range activeHosts {
		if target == sourceHostId {
			continue
		}
		sim := cloneCounts(baseCounts)
		sim[sourceHostId]--
		sim[target]++
		if spread(sim, activeHosts) <= 1 {
			perfect = append(perfect, candidateT{host: target, name: hostName(target), count: baseCounts[target]})
		}
	}
	if len(perfect) > 0 {
		best := bestCandidate(perfect)
		return best.host, true
	}

	sourceCount := baseCounts[sourceHostId]
	var fallback []candidateT
	for _, target := range activeHosts {
		if target == sourceHostId {
			continue
		}
		if baseCounts[target] < sourceCount {
			fallback = append(fallback, candidateT{host: target, name: hostName(target), count: baseCounts[target]})
		}
	}
	if len(fallback) == 0 {
		return "", false
	}
	best := bestCandidate(fallback)
	return best.host, true
}

type candidateT struct {
	host  cluster.HostId
	name  string
	count int
}

func cloneCounts(m map[cluster.HostId]int) map[cluster.HostId]int {
	out := make(map[cluster.HostId]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func spread(counts map[cluster.HostId]int, hosts []cluster.HostId) int {
	min, max := minMax(counts, hosts)
	return max - min
}

func bestCandidate(cands []candidateT) candidateT {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.count < best.count || (c.count == best.count && c.name < best.name) {
			best = c
		}
	}
	return best
}

// IsAaSafe simulates the hypothetical placement of every previously planned
// intent in this cycle plus candidate, and verifies max-min <= 1 for vmId's
// group across active hosts.
func (e *Engine) IsAaSafe(vmId cluster.VmId, candidate cluster.MigrationIntent, plannedIntents []cluster.MigrationIntent) bool {
	_, group, ok := e.groupOf(vmId)
	if !ok {
		return true
	}
	activeHosts := e.snap.HostIds()
	if len(activeHosts) < 2 {
		return true
	}
	all := make([]cluster.MigrationIntent, 0, len(plannedIntents)+1)
	all = append(all, plannedIntents...)
	all = append(all, candidate)
	overlay := e.snap.ApplySimulated(all)
	counts := overlay.GroupCountsOnActiveHosts(group, activeHosts)
	return spread(counts, activeHosts) <= 1
}
