// ABOUTME: Wires config, hypervisor connection, one planning cycle, and reporting/execution
// ABOUTME: Single independent run per invocation; never feeds execution results back into planning

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/example-infra/vcbalancer/internal/cluster"
	"github.com/example-infra/vcbalancer/internal/config"
	"github.com/example-infra/vcbalancer/internal/constraint"
	"github.com/example-infra/vcbalancer/internal/executor"
	"github.com/example-infra/vcbalancer/internal/hypervisor"
	"github.com/example-infra/vcbalancer/internal/load"
	"github.com/example-infra/vcbalancer/internal/logger"
	"github.com/example-infra/vcbalancer/internal/planner"
	"github.com/example-infra/vcbalancer/internal/report"
)

func runPlan(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(flagValues.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	if flagValues.password == "" && isTerminal(os.Stdin) {
		if err := promptPassword(&flagValues.password); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	runAA, runBalance := resolvePasses(flagValues.applyAntiAffinity, flagValues.balance)

	var insecurePtr, dryRunPtr, runBalancePtr, runAAPtr, ignoreAAPtr *bool
	if cmd.Flags().Changed("insecure") {
		insecurePtr = boolPtr(flagValues.insecure)
	}
	if cmd.Flags().Changed("dry-run") {
		dryRunPtr = boolPtr(flagValues.dryRun)
	}
	if cmd.Flags().Changed("balance") || cmd.Flags().Changed("apply-anti-affinity") {
		runBalancePtr = boolPtr(runBalance)
		runAAPtr = boolPtr(runAA)
	}
	if cmd.Flags().Changed("ignore-anti-affinity") {
		ignoreAAPtr = boolPtr(flagValues.ignoreAntiAffinity)
	}

	var aggressivenessPtr, maxMigrationsPtr, timeoutPtr *int
	if cmd.Flags().Changed("aggressiveness") {
		aggressivenessPtr = intPtr(flagValues.aggressiveness)
	}
	if cmd.Flags().Changed("max-migrations") {
		maxMigrationsPtr = intPtr(flagValues.maxMigrations)
	}
	if cmd.Flags().Changed("timeout") {
		timeoutPtr = intPtr(flagValues.timeoutSeconds)
	}

	cfg, err := config.Load(config.FlagValues{
		Endpoint:           flagValues.endpoint,
		Username:           flagValues.username,
		Password:           flagValues.password,
		Datacenter:         flagValues.datacenter,
		Insecure:           insecurePtr,
		DryRun:             dryRunPtr,
		Aggressiveness:     aggressivenessPtr,
		RunBalance:         runBalancePtr,
		RunAntiAffinity:    runAAPtr,
		IgnoreAntiAffinity: ignoreAAPtr,
		Metrics:            flagValues.metrics,
		MaxMigrations:      maxMigrationsPtr,
		Socks5Proxy:        flagValues.socks5Proxy,
		Timeout:            timeoutPtr,
		LogFormat:          flagValues.logFormat,
		LogLevel:           flagValues.logLevel,
	})
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
	defer cancelTimeout()

	var dialFn hypervisor.DialFunc
	if cfg.Socks5Proxy != "" {
		dialFn, err = hypervisor.NewSocks5DialFunc(cfg.Socks5Proxy)
		if err != nil {
			return err
		}
	}

	source := hypervisor.New(hypervisor.Credentials{
		Endpoint:   cfg.Endpoint,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Datacenter: cfg.Datacenter,
		Insecure:   cfg.Insecure,
	}, dialFn, log)

	if err := source.Connect(ctx); err != nil {
		var connErr *hypervisor.ConnectError
		if errors.As(err, &connErr) {
			return connErr
		}
		return err
	}
	defer source.Close(context.Background())

	resources := cfg.Metrics
	if len(resources) == 0 {
		resources = cluster.AllResources
	}

	snap, err := cluster.Build(ctx, source, source, cluster.BuildOptions{Logger: log})
	if err != nil {
		return fmt.Errorf("building cluster snapshot: %w", err)
	}

	evaluator := load.New(snap, log)
	constraintEngine := constraint.New(snap, log)

	p := planner.New(snap, constraintEngine, evaluator, planner.Options{
		Aggressiveness:     cfg.Aggressiveness,
		MaxTotalMigrations: cfg.MaxMigrations,
		IgnoreAntiAffinity: cfg.IgnoreAntiAffinity,
		Resources:          resources,
		RunAntiAffinity:    cfg.RunAntiAffinity,
		RunBalance:         cfg.RunBalance,
		Logger:             log,
	})

	plan, err := p.Plan()
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	report.ClusterSummary(cmd.OutOrStdout(), cfg.Datacenter, snap, evaluator.HostPercentageMap())
	report.Plan(cmd.OutOrStdout(), snap, plan.Intents)
	report.Warnings(cmd.OutOrStdout(), plan.Warnings)

	if len(plan.Intents) == 0 {
		return nil
	}

	vimClient, ok := source.VimClient()
	if !ok {
		return fmt.Errorf("executor: no active vim25 client")
	}
	exec := executor.NewVCenterExecutor(vimClient, cfg.DryRun, log)
	outcome, err := exec.Execute(ctx, plan.Intents)
	if err != nil {
		return fmt.Errorf("executing plan: %w", err)
	}
	if failed := outcome.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d migrations failed", len(failed), len(plan.Intents))
	}
	return nil
}

// resolvePasses implements the CLI's pass-selection semantics: --apply-anti-affinity
// alone restricts the cycle to the anti-affinity pass only; --balance (with or
// without --apply-anti-affinity) runs the full cycle; neither flag defaults to
// the full cycle.
func resolvePasses(applyAntiAffinity, balance bool) (runAA, runBalance bool) {
	if applyAntiAffinity && !balance {
		return true, false
	}
	return true, true
}

func promptPassword(out *string) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("vCenter password").
				EchoMode(huh.EchoModePassword).
				Value(out),
		),
	).WithTheme(huh.ThemeBase()).Run()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
