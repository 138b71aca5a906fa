// ABOUTME: Pure overlay function simulating the effect of planned intents
// ABOUTME: Never mutates the snapshot; used only to inform later decisions in-cycle

package cluster

// Overlay is a derived, read-only view of a Snapshot that reflects a set of
// not-yet-executed MigrationIntents. Only CPU and memory absolute usage are
// adjusted (subtract from source, add to target); disk and network I/O are
// not reliably additive across migrations within one cycle and are passed
// through unchanged.
type Overlay struct {
	snapshot     *Snapshot
	cpuAbsUsage  map[HostId]float64
	memAbsUsage  map[HostId]float64
	placement    map[VmId]HostId
	hostVMs      map[HostId]map[VmId]struct{}
}

// ApplySimulated returns an Overlay reflecting intents applied on top of s.
// s itself is never mutated.
func (s *Snapshot) ApplySimulated(intents []MigrationIntent) *Overlay {
	o := &Overlay{
		snapshot:    s,
		cpuAbsUsage: make(map[HostId]float64, len(s.hosts)),
		memAbsUsage: make(map[HostId]float64, len(s.hosts)),
		placement:   make(map[VmId]HostId, len(s.vmHost)),
		hostVMs:     make(map[HostId]map[VmId]struct{}, len(s.hosts)),
	}
	for _, h := range s.hosts {
		if h.Id == "" {
			continue
		}
		o.cpuAbsUsage[h.Id] = h.CPUAbsUsageMHz
		o.memAbsUsage[h.Id] = h.MemoryAbsUsageMB
		o.hostVMs[h.Id] = make(map[VmId]struct{}, len(s.hostVMs[h.Id]))
		for _, vmId := range s.hostVMs[h.Id] {
			o.hostVMs[h.Id][vmId] = struct{}{}
		}
	}
	for vmId, hostId := range s.vmHost {
		o.placement[vmId] = hostId
	}

	for _, intent := range intents {
		vm, ok := s.VmById(intent.VmId)
		if !ok {
			continue
		}
		source := o.placement[intent.VmId]
		if _, ok := o.cpuAbsUsage[source]; ok {
			o.cpuAbsUsage[source] -= vm.CPUAbsUsageMHz
			o.memAbsUsage[source] -= vm.MemoryAbsUsageMB
			delete(o.hostVMs[source], intent.VmId)
		}
		if _, ok := o.cpuAbsUsage[intent.TargetHostId]; ok {
			o.cpuAbsUsage[intent.TargetHostId] += vm.CPUAbsUsageMHz
			o.memAbsUsage[intent.TargetHostId] += vm.MemoryAbsUsageMB
			if o.hostVMs[intent.TargetHostId] == nil {
				o.hostVMs[intent.TargetHostId] = make(map[VmId]struct{})
			}
			o.hostVMs[intent.TargetHostId][intent.VmId] = struct{}{}
		}
		o.placement[intent.VmId] = intent.TargetHostId
	}
	return o
}

// Percentages returns the simulated per-host CPU/memory percentage arrays
// plus the pass-through disk/network arrays, all aligned with the original
// snapshot's host ordering.
func (o *Overlay) Percentages() (cpu, mem, disk, net []float64) {
	hosts := o.snapshot.Hosts()
	cpu = make([]float64, len(hosts))
	mem = make([]float64, len(hosts))
	disk = make([]float64, len(hosts))
	net = make([]float64, len(hosts))
	for i, h := range hosts {
		cpu[i] = Pct(o.cpuAbsUsage[h.Id], h.CPUCapacityMHz)
		mem[i] = Pct(o.memAbsUsage[h.Id], h.MemoryCapacityMB)
		disk[i] = h.DiskUsagePct()
		net[i] = h.NetworkUsagePct()
	}
	return cpu, mem, disk, net
}

// CPUAbsUsage returns the simulated absolute CPU usage for a host.
func (o *Overlay) CPUAbsUsage(id HostId) float64 { return o.cpuAbsUsage[id] }

// MemoryAbsUsage returns the simulated absolute memory usage for a host.
func (o *Overlay) MemoryAbsUsage(id HostId) float64 { return o.memAbsUsage[id] }

// HostOfVm returns the simulated host placement for a VM.
func (o *Overlay) HostOfVm(id VmId) (HostId, bool) {
	h, ok := o.placement[id]
	return h, ok
}

// VmsOnHost returns the simulated set of VM ids placed on a host.
func (o *Overlay) VmsOnHost(id HostId) []VmId {
	set := o.hostVMs[id]
	out := make([]VmId, 0, len(set))
	for vmId := range set {
		out = append(out, vmId)
	}
	return out
}

// GroupCountsOnActiveHosts counts how many VMs of the given set currently
// sit on each active host, under this overlay's simulated placement.
func (o *Overlay) GroupCountsOnActiveHosts(group map[VmId]struct{}, activeHosts []HostId) map[HostId]int {
	counts := make(map[HostId]int, len(activeHosts))
	for _, h := range activeHosts {
		counts[h] = 0
	}
	for vmId := range group {
		if h, ok := o.placement[vmId]; ok {
			if _, tracked := counts[h]; tracked {
				counts[h]++
			}
		}
	}
	return counts
}
