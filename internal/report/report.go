// ABOUTME: Renders the cluster state summary and migration plan as fixed-column tables
// ABOUTME: Adopted from the pack's go-pretty table-rendering convention for operator-facing CLI output

package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/example-infra/vcbalancer/internal/cluster"
	"github.com/example-infra/vcbalancer/internal/load"
)

// ClusterSummary renders one row per host against the fixed column set
// spec.md §6 requires: cluster, host, cpu%, mem%, storage I/O MBps, net I/O
// MBps, VM count. Disk and network are reported as absolute throughput
// rather than percentage, since the operator tuning --aggressiveness cares
// about actual MBps moved, not a ratio against the policy-chosen capacity
// estimate.
func ClusterSummary(w io.Writer, clusterName string, snap *cluster.Snapshot, percentages map[cluster.HostId]load.HostPercentages) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Cluster", "Host", "CPU %", "Memory %", "Storage I/O MBps", "Net I/O MBps", "VMs"})

	for _, h := range snap.Hosts() {
		if h.Id == "" {
			continue
		}
		p := percentages[h.Id]
		t.AppendRow(table.Row{
			clusterName,
			h.Name,
			fmt.Sprintf("%.1f", p.CPU),
			fmt.Sprintf("%.1f", p.Memory),
			fmt.Sprintf("%.1f", h.DiskIoAbsUsageMBps),
			fmt.Sprintf("%.1f", h.NetworkIoAbsUsageMBps),
			len(snap.VmsOnHost(h.Id)),
		})
	}
	t.Render()
}

// Plan renders the ordered list of migration intents as a table.
func Plan(w io.Writer, snap *cluster.Snapshot, intents []cluster.MigrationIntent) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "VM", "Source Host", "Target Host", "Reason"})

	for i, intent := range intents {
		vm, _ := snap.VmById(intent.VmId)
		source, _ := snap.HostById(intent.SourceHostId)
		target, _ := snap.HostById(intent.TargetHostId)
		t.AppendRow(table.Row{i + 1, vm.Name, source.Name, target.Name, intent.Reason})
	}
	if len(intents) == 0 {
		t.AppendRow(table.Row{"-", "(no migrations planned)", "", "", ""})
	}
	t.Render()
}

// Warnings prints accumulated per-run warnings after the plan table, so
// "nothing to do" and "nothing to do because metrics degraded" are
// distinguishable in the operator's terminal even though the plan shape and
// exit code never carry that distinction.
func Warnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}
