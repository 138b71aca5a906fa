// ABOUTME: Boundary interfaces the core planning kernel consumes
// ABOUTME: Implemented by internal/hypervisor against a real vCenter

package cluster

import "context"

// HostRef is what InventorySource reports for one active host, before any
// metrics have been attached.
type HostRef struct {
	Id   HostId
	Name string
}

// VmRef is what InventorySource reports for one powered-on, non-template VM.
type VmRef struct {
	Id            VmId
	Name          string
	CurrentHostId HostId
}

// InventorySource enumerates the entities a planning cycle operates on.
type InventorySource interface {
	// ActiveHosts returns hosts whose connection state is "connected".
	ActiveHosts(ctx context.Context) ([]HostRef, error)
	// PoweredOnVms returns VMs that are neither templates nor powered off,
	// each carrying its current host id.
	PoweredOnVms(ctx context.Context) ([]VmRef, error)
}

// HostMetrics is the absolute-counter reading for one host.
type HostMetrics struct {
	CPUAbsMHz      float64
	MemoryAbsMB    float64
	DiskAbsMBps    float64
	NetworkAbsMBps float64

	CPUCapMHz    float64
	MemoryCapMB  float64
	DiskCapMBps  float64
	NetworkCapMBps float64
}

// VmMetrics is the absolute-counter reading for one VM.
type VmMetrics struct {
	CPUAbsMHz      float64
	MemoryAbsMB    float64
	DiskAbsMBps    float64
	NetworkAbsMBps float64
}

// MetricsSource returns current absolute usage counters, already converted
// to canonical units (MHz, MB, MBps) at the implementation's boundary.
type MetricsSource interface {
	HostMetrics(ctx context.Context, id HostId) (HostMetrics, error)
	VmMetrics(ctx context.Context, id VmId) (VmMetrics, error)
}
