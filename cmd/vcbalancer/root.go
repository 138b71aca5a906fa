// ABOUTME: Root command for the vcbalancer CLI
// ABOUTME: Single command: connect, build a snapshot, plan one cycle, report or execute

package main

import (
	"github.com/spf13/cobra"
)

var flagValues struct {
	endpoint           string
	username           string
	password           string
	datacenter         string
	insecure           bool
	dryRun             bool
	aggressiveness     int
	balance            bool
	applyAntiAffinity  bool
	ignoreAntiAffinity bool
	metrics            []string
	maxMigrations      int
	socks5Proxy        string
	timeoutSeconds     int
	logFormat          string
	logLevel           string
	configFile         string
}

var rootCmd = &cobra.Command{
	Use:   "vcbalancer",
	Short: "Plans and optionally executes one VM-balancing migration cycle",
	Long: `vcbalancer observes a vSphere-style hypervisor cluster, evaluates resource
imbalance and anti-affinity violations, and plans a bounded set of VM
migrations. It never re-plans off the outcome of its own execution; every
invocation is one independent cycle.

Exit codes:
  0 - planning (and execution, if not --dry-run) succeeded, including the
      "no migrations needed" case
  1 - connection or fatal planning failure`,
	RunE: runPlan,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagValues.endpoint, "endpoint", "", "vCenter endpoint (VCBALANCER_ENDPOINT)")
	f.StringVar(&flagValues.username, "username", "", "vCenter username (VCBALANCER_USERNAME)")
	f.StringVar(&flagValues.password, "password", "", "vCenter password; prompted if omitted and a TTY is attached")
	f.StringVar(&flagValues.datacenter, "datacenter", "", "vCenter datacenter name (VCBALANCER_DATACENTER)")
	f.BoolVar(&flagValues.insecure, "insecure", false, "skip TLS certificate verification")

	f.BoolVar(&flagValues.dryRun, "dry-run", false, "plan but do not execute migrations")
	f.IntVar(&flagValues.aggressiveness, "aggressiveness", 3, "imbalance sensitivity, 1 (loose) to 5 (strict)")
	f.BoolVar(&flagValues.balance, "balance", false, "run the full anti-affinity + balancing cycle")
	f.BoolVar(&flagValues.applyAntiAffinity, "apply-anti-affinity", false, "run only the anti-affinity pass")
	f.BoolVar(&flagValues.ignoreAntiAffinity, "ignore-anti-affinity", false, "bypass the anti-affinity safety check during balancing")
	f.StringSliceVar(&flagValues.metrics, "metrics", nil, "comma-separated resource subset: cpu,memory,disk,network (default all)")
	f.IntVar(&flagValues.maxMigrations, "max-migrations", 0, "override the migration cap (default 20)")

	f.StringVar(&flagValues.socks5Proxy, "socks5-proxy", "", "optional ssh+socks5://user@host:port?private-key=/path jump-host tunnel")
	f.IntVar(&flagValues.timeoutSeconds, "timeout", 0, "planning deadline in seconds (default 120)")
	f.StringVar(&flagValues.logFormat, "log-format", "", "log output format: text or json")
	f.StringVar(&flagValues.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&flagValues.configFile, "config", "", "optional .env-style file loaded before flags are resolved")
}
