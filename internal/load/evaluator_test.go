// ABOUTME: Tests for utilization percentage derivation and imbalance detection

package load

import (
	"context"
	"testing"

	"github.com/example-infra/vcbalancer/internal/cluster"
)

type fakeInventory struct {
	hosts []cluster.HostRef
	vms   []cluster.VmRef
}

func (f fakeInventory) ActiveHosts(ctx context.Context) ([]cluster.HostRef, error) { return f.hosts, nil }
func (f fakeInventory) PoweredOnVms(ctx context.Context) ([]cluster.VmRef, error)  { return f.vms, nil }

type fakeMetrics struct {
	hosts map[cluster.HostId]cluster.HostMetrics
	vms   map[cluster.VmId]cluster.VmMetrics
}

func (f fakeMetrics) HostMetrics(ctx context.Context, id cluster.HostId) (cluster.HostMetrics, error) {
	return f.hosts[id], nil
}
func (f fakeMetrics) VmMetrics(ctx context.Context, id cluster.VmId) (cluster.VmMetrics, error) {
	return f.vms[id], nil
}

func buildTestSnapshot(t *testing.T) *cluster.Snapshot {
	t.Helper()
	inv := fakeInventory{
		hosts: []cluster.HostRef{{Id: "h1", Name: "host-1"}, {Id: "h2", Name: "host-2"}},
		vms: []cluster.VmRef{
			{Id: "v1", Name: "appvm01", CurrentHostId: "h1"},
			{Id: "v2", Name: "appvm02", CurrentHostId: "h2"},
		},
	}
	metrics := fakeMetrics{
		hosts: map[cluster.HostId]cluster.HostMetrics{
			"h1": {CPUAbsMHz: 900, CPUCapMHz: 1000, MemoryAbsMB: 100, MemoryCapMB: 1000, DiskCapMBps: 100, NetworkCapMBps: 100},
			"h2": {CPUAbsMHz: 100, CPUCapMHz: 1000, MemoryAbsMB: 100, MemoryCapMB: 1000, DiskCapMBps: 100, NetworkCapMBps: 100},
		},
		vms: map[cluster.VmId]cluster.VmMetrics{
			"v1": {CPUAbsMHz: 900, MemoryAbsMB: 100},
			"v2": {CPUAbsMHz: 100, MemoryAbsMB: 100},
		},
	}
	snap, err := cluster.Build(context.Background(), inv, metrics, cluster.BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return snap
}

func TestEvaluateImbalance_CPUImbalancedAtDefaultAggressiveness(t *testing.T) {
	snap := buildTestSnapshot(t)
	e := New(snap, nil)

	result := e.EvaluateImbalance([]string{cluster.ResourceCPU}, defaultAggressiveness, nil)
	detail := result[cluster.ResourceCPU]
	if !detail.IsImbalanced {
		t.Errorf("expected cpu imbalanced at 90%% vs 10%% with threshold %v", detail.Threshold)
	}
	if detail.CurrentDiff != 80 {
		t.Errorf("CurrentDiff = %v, want 80", detail.CurrentDiff)
	}
}

func TestEvaluateImbalance_BelowTwoHostsAlwaysBalanced(t *testing.T) {
	e := &Evaluator{cpu: []float64{99}}
	result := e.EvaluateImbalance([]string{cluster.ResourceCPU}, 5, nil)
	if result[cluster.ResourceCPU].IsImbalanced {
		t.Errorf("single host sample should never be imbalanced")
	}
}

func TestThresholds_UnknownAggressivenessDefaultsToLevel3(t *testing.T) {
	snap := buildTestSnapshot(t)
	e := New(snap, nil)
	got := e.Thresholds(99)
	want := aggressivenessThresholds[defaultAggressiveness]
	if got[cluster.ResourceCPU] != want {
		t.Errorf("Thresholds(99)[cpu] = %v, want %v", got[cluster.ResourceCPU], want)
	}
}

func TestEvaluateImbalance_OverridesUsedInsteadOfSnapshotValues(t *testing.T) {
	snap := buildTestSnapshot(t)
	e := New(snap, nil)

	result := e.EvaluateImbalance([]string{cluster.ResourceCPU}, 3, &Overrides{CPU: []float64{50, 50}})
	detail := result[cluster.ResourceCPU]
	if detail.IsImbalanced {
		t.Errorf("expected balanced with overridden equal percentages, got diff %v", detail.CurrentDiff)
	}
}
