// ABOUTME: Core data model for a single planning cycle's cluster state
// ABOUTME: Host/Vm/Placement/AffinityGroup/MigrationIntent and their invariants

package cluster

import "fmt"

// HostId is an opaque, stable identifier for a host, used as a map key.
type HostId string

// VmId is an opaque, stable identifier for a VM, used as a map key.
type VmId string

// Host is a hypervisor host as observed at snapshot construction time.
type Host struct {
	Id   HostId
	Name string

	CPUCapacityMHz     float64
	MemoryCapacityMB   float64
	DiskIoCapacityMBps float64
	NetworkCapacityMBps float64

	CPUAbsUsageMHz       float64
	MemoryAbsUsageMB     float64
	DiskIoAbsUsageMBps   float64
	NetworkIoAbsUsageMBps float64
}

// CPUUsagePct returns absolute/capacity*100, 0 when capacity is 0.
func (h Host) CPUUsagePct() float64 { return Pct(h.CPUAbsUsageMHz, h.CPUCapacityMHz) }

// MemoryUsagePct returns absolute/capacity*100, 0 when capacity is 0.
func (h Host) MemoryUsagePct() float64 { return Pct(h.MemoryAbsUsageMB, h.MemoryCapacityMB) }

// DiskUsagePct returns absolute/capacity*100, 0 when capacity is 0.
func (h Host) DiskUsagePct() float64 { return Pct(h.DiskIoAbsUsageMBps, h.DiskIoCapacityMBps) }

// NetworkUsagePct returns absolute/capacity*100, 0 when capacity is 0.
func (h Host) NetworkUsagePct() float64 { return Pct(h.NetworkIoAbsUsageMBps, h.NetworkCapacityMBps) }

// Pct returns abs/capacity*100, 0 when capacity is 0. Shared by Host's
// UsagePct methods and by callers projecting a hypothetical usage (e.g.
// the planner's capacity-fit check) against the same zero-capacity rule.
func Pct(abs, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return abs / capacity * 100
}

// Vm is a powered-on, non-template virtual machine as observed at snapshot
// construction time.
type Vm struct {
	Id            VmId
	Name          string
	CurrentHostId HostId

	CPUAbsUsageMHz        float64
	MemoryAbsUsageMB      float64
	DiskIoAbsUsageMBps    float64
	NetworkIoAbsUsageMBps float64

	IsTemplate bool
}

// Reason is why a migration intent was proposed.
type Reason int

const (
	ReasonAntiAffinity Reason = iota
	ReasonBalance
)

func (r Reason) String() string {
	switch r {
	case ReasonAntiAffinity:
		return "AntiAffinity"
	case ReasonBalance:
		return "Balance"
	default:
		return "Unknown"
	}
}

// MigrationIntent is a proposed, not-yet-executed migration.
type MigrationIntent struct {
	VmId         VmId
	SourceHostId HostId
	TargetHostId HostId
	Reason       Reason
}

func (i MigrationIntent) String() string {
	return fmt.Sprintf("%s: %s -> %s (%s)", i.VmId, i.SourceHostId, i.TargetHostId, i.Reason)
}

// Resource names accepted by --metrics and used as imbalance-evaluation keys.
const (
	ResourceCPU     = "cpu"
	ResourceMemory  = "memory"
	ResourceDisk    = "disk"
	ResourceNetwork = "network"
)

// AllResources is the default --metrics selection.
var AllResources = []string{ResourceCPU, ResourceMemory, ResourceDisk, ResourceNetwork}
