// ABOUTME: Tests for the pure migration overlay: non-mutation and simulated percentage math

package cluster

import (
	"context"
	"testing"
)

type fakeInventory struct {
	hosts []HostRef
	vms   []VmRef
}

func (f fakeInventory) ActiveHosts(ctx context.Context) ([]HostRef, error) { return f.hosts, nil }
func (f fakeInventory) PoweredOnVms(ctx context.Context) ([]VmRef, error)  { return f.vms, nil }

type fakeMetrics struct {
	hosts map[HostId]HostMetrics
	vms   map[VmId]VmMetrics
}

func (f fakeMetrics) HostMetrics(ctx context.Context, id HostId) (HostMetrics, error) {
	return f.hosts[id], nil
}
func (f fakeMetrics) VmMetrics(ctx context.Context, id VmId) (VmMetrics, error) {
	return f.vms[id], nil
}

func buildOverlayTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	inv := fakeInventory{
		hosts: []HostRef{{Id: "h1", Name: "host-1"}, {Id: "h2", Name: "host-2"}},
		vms:   []VmRef{{Id: "v1", Name: "vm1", CurrentHostId: "h1"}},
	}
	metrics := fakeMetrics{
		hosts: map[HostId]HostMetrics{
			"h1": {CPUAbsMHz: 500, CPUCapMHz: 1000, MemoryAbsMB: 500, MemoryCapMB: 1000, DiskCapMBps: 100, NetworkCapMBps: 100},
			"h2": {CPUAbsMHz: 0, CPUCapMHz: 1000, MemoryAbsMB: 0, MemoryCapMB: 1000, DiskCapMBps: 100, NetworkCapMBps: 100},
		},
		vms: map[VmId]VmMetrics{
			"v1": {CPUAbsMHz: 500, MemoryAbsMB: 500},
		},
	}
	snap, err := Build(context.Background(), inv, metrics, BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return snap
}

func TestApplySimulated_DoesNotMutateSnapshot(t *testing.T) {
	snap := buildOverlayTestSnapshot(t)
	before, _ := snap.HostById("h1")

	_ = snap.ApplySimulated([]MigrationIntent{{VmId: "v1", SourceHostId: "h1", TargetHostId: "h2", Reason: ReasonBalance}})

	after, _ := snap.HostById("h1")
	if before.CPUAbsUsageMHz != after.CPUAbsUsageMHz {
		t.Errorf("ApplySimulated mutated the source snapshot: before=%v after=%v", before.CPUAbsUsageMHz, after.CPUAbsUsageMHz)
	}
}

func TestApplySimulated_MovesAbsoluteUsage(t *testing.T) {
	snap := buildOverlayTestSnapshot(t)
	overlay := snap.ApplySimulated([]MigrationIntent{{VmId: "v1", SourceHostId: "h1", TargetHostId: "h2", Reason: ReasonBalance}})

	if got := overlay.CPUAbsUsage("h1"); got != 0 {
		t.Errorf("simulated source CPUAbsUsage = %v, want 0", got)
	}
	if got := overlay.CPUAbsUsage("h2"); got != 500 {
		t.Errorf("simulated target CPUAbsUsage = %v, want 500", got)
	}

	cpu, _, _, _ := overlay.Percentages()
	if cpu[0] != 0 || cpu[1] != 50 {
		t.Errorf("Percentages() cpu = %v, want [0, 50]", cpu)
	}
}

func TestApplySimulated_HostOfVmReflectsPlacement(t *testing.T) {
	snap := buildOverlayTestSnapshot(t)
	overlay := snap.ApplySimulated([]MigrationIntent{{VmId: "v1", SourceHostId: "h1", TargetHostId: "h2", Reason: ReasonBalance}})

	host, ok := overlay.HostOfVm("v1")
	if !ok || host != "h2" {
		t.Errorf("HostOfVm(v1) = (%v, %v), want (h2, true)", host, ok)
	}
}
