// ABOUTME: Consumed MigrationExecutor contract plus a govmomi-native reference implementation
// ABOUTME: Executes accepted intents independently; the core never re-plans off execution results

package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/example-infra/vcbalancer/internal/cluster"
)

// Result is the per-intent outcome of attempting one migration.
type Result struct {
	Intent cluster.MigrationIntent
	Err    error
}

func (r Result) Success() bool { return r.Err == nil }

// Outcome aggregates the per-intent results of one execution pass.
type Outcome struct {
	Results []Result
}

// Succeeded returns the subset of results that completed without error.
func (o Outcome) Succeeded() []Result {
	var out []Result
	for _, r := range o.Results {
		if r.Success() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the subset of results that errored.
func (o Outcome) Failed() []Result {
	var out []Result
	for _, r := range o.Results {
		if !r.Success() {
			out = append(out, r)
		}
	}
	return out
}

// Executor applies an accepted plan against the hypervisor. Intents are
// executed independently; a per-intent failure does not stop the others and
// is never fed back into the planning cycle that produced the plan.
type Executor interface {
	Execute(ctx context.Context, intents []cluster.MigrationIntent) (Outcome, error)
}

// VCenterExecutor is the reference govmomi-native implementation. Each
// intent becomes a compute-only vMotion (object.VirtualMachine.Migrate, no
// destination datastore) — storage vMotion is out of scope.
type VCenterExecutor struct {
	client *vim25.Client
	dryRun bool
	log    *slog.Logger
}

// NewVCenterExecutor builds an Executor bound to an already-connected
// vim25.Client. When dryRun is true, each intent is logged instead of
// issuing the migrate RPC.
func NewVCenterExecutor(client *vim25.Client, dryRun bool, log *slog.Logger) *VCenterExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &VCenterExecutor{client: client, dryRun: dryRun, log: log.With("component", "executor")}
}

// Execute issues one Migrate per intent, in plan order, and waits for each
// task in turn. No intent is retried or re-planned here.
func (e *VCenterExecutor) Execute(ctx context.Context, intents []cluster.MigrationIntent) (Outcome, error) {
	var out Outcome
	for _, intent := range intents {
		if e.dryRun {
			e.log.Info("dry-run: would migrate vm", "vm", intent.VmId, "from", intent.SourceHostId, "to", intent.TargetHostId, "reason", intent.Reason)
			out.Results = append(out.Results, Result{Intent: intent})
			continue
		}
		if err := e.migrateOne(ctx, intent); err != nil {
			e.log.Error("migration failed", "vm", intent.VmId, "target", intent.TargetHostId, "error", err)
			out.Results = append(out.Results, Result{Intent: intent, Err: err})
			continue
		}
		e.log.Info("migration complete", "vm", intent.VmId, "from", intent.SourceHostId, "to", intent.TargetHostId)
		out.Results = append(out.Results, Result{Intent: intent})
	}
	return out, nil
}

func (e *VCenterExecutor) migrateOne(ctx context.Context, intent cluster.MigrationIntent) error {
	vmRef := types.ManagedObjectReference{Type: "VirtualMachine", Value: string(intent.VmId)}
	hostRef := types.ManagedObjectReference{Type: "HostSystem", Value: string(intent.TargetHostId)}

	vm := object.NewVirtualMachine(e.client, vmRef)
	host := object.NewHostSystem(e.client, hostRef)

	task, err := vm.Migrate(ctx, nil, host, types.VirtualMachineMovePriorityDefaultPriority, types.VirtualMachinePowerStatePoweredOn)
	if err != nil {
		return fmt.Errorf("executor: migrate vm %s to %s: %w", intent.VmId, intent.TargetHostId, err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("executor: migrate vm %s to %s: task failed: %w", intent.VmId, intent.TargetHostId, err)
	}
	return nil
}
