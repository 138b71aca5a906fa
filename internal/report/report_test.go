// ABOUTME: Rendering smoke tests: every table must render without panicking and carry expected text

package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/example-infra/vcbalancer/internal/cluster"
	"github.com/example-infra/vcbalancer/internal/load"
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

func buildReportTestSnapshot(t *testing.T) *cluster.Snapshot {
	t.Helper()
	inv := fakeInventory{
		hosts: []cluster.HostRef{{Id: "h1", Name: "host-1"}, {Id: "h2", Name: "host-2"}},
		vms:   []cluster.VmRef{{Id: "v1", Name: "vm1", CurrentHostId: "h1"}},
	}
	metrics := fakeMetrics{
		hosts: map[cluster.HostId]cluster.HostMetrics{
			"h1": {CPUAbsMHz: 500, CPUCapMHz: 1000, MemoryAbsMB: 500, MemoryCapMB: 1000, DiskAbsMBps: 12, DiskCapMBps: 100, NetworkAbsMBps: 34, NetworkCapMBps: 100},
			"h2": {CPUAbsMHz: 0, CPUCapMHz: 1000, MemoryAbsMB: 0, MemoryCapMB: 1000, DiskAbsMBps: 0, DiskCapMBps: 100, NetworkAbsMBps: 0, NetworkCapMBps: 100},
		},
		vms: map[cluster.VmId]cluster.VmMetrics{"v1": {CPUAbsMHz: 500, MemoryAbsMB: 500}},
	}
	snap, err := cluster.Build(context.Background(), inv, metrics, cluster.BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return snap
}

func TestClusterSummary_RendersOneRowPerHost(t *testing.T) {
	snap := buildReportTestSnapshot(t)
	e := load.New(snap, nil)
	percentages := e.HostPercentageMap()

	var buf bytes.Buffer
	ClusterSummary(&buf, "prod-cluster-1", snap, percentages)

	out := buf.String()
	if !strings.Contains(out, "prod-cluster-1") {
		t.Errorf("ClusterSummary() output missing cluster name:\n%s", out)
	}
	if !strings.Contains(out, "host-1") || !strings.Contains(out, "host-2") {
		t.Errorf("ClusterSummary() output missing host names:\n%s", out)
	}
	if !strings.Contains(out, "12.0") || !strings.Contains(out, "34.0") {
		t.Errorf("ClusterSummary() output missing absolute disk/network MBps:\n%s", out)
	}
}

func TestPlan_RendersIntentRow(t *testing.T) {
	snap := buildReportTestSnapshot(t)
	intents := []cluster.MigrationIntent{{VmId: "v1", SourceHostId: "h1", TargetHostId: "h2", Reason: cluster.ReasonBalance}}

	var buf bytes.Buffer
	Plan(&buf, snap, intents)

	out := buf.String()
	if !strings.Contains(out, "vm1") || !strings.Contains(out, "host-1") || !strings.Contains(out, "host-2") {
		t.Errorf("Plan() output missing intent fields:\n%s", out)
	}
}

func TestPlan_EmptyShowsPlaceholder(t *testing.T) {
	snap := buildReportTestSnapshot(t)

	var buf bytes.Buffer
	Plan(&buf, snap, nil)

	if !strings.Contains(buf.String(), "no migrations planned") {
		t.Errorf("Plan() with no intents = %q, want placeholder row", buf.String())
	}
}

func TestWarnings_PrintsEachMessage(t *testing.T) {
	var buf bytes.Buffer
	Warnings(&buf, []string{"metrics degraded for host-3"})

	if !strings.Contains(buf.String(), "metrics degraded for host-3") {
		t.Errorf("Warnings() = %q, want it to contain the warning message", buf.String())
	}
}
