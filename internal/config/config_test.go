// ABOUTME: Tests for flag/env/default precedence and required-field validation

package config

import (
	"os"
	"testing"
)

func clearVcbalancerEnv() {
	for _, k := range []string{
		"VCBALANCER_ENDPOINT", "VCBALANCER_USERNAME", "VCBALANCER_PASSWORD", "VCBALANCER_DATACENTER",
		"VCBALANCER_INSECURE", "VCBALANCER_DRY_RUN", "VCBALANCER_AGGRESSIVENESS", "VCBALANCER_BALANCE",
		"VCBALANCER_APPLY_ANTI_AFFINITY", "VCBALANCER_IGNORE_ANTI_AFFINITY", "VCBALANCER_METRICS",
		"VCBALANCER_MAX_MIGRATIONS", "VCBALANCER_SOCKS5_PROXY", "VCBALANCER_TIMEOUT_SECONDS",
		"VCBALANCER_LOG_FORMAT", "VCBALANCER_LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_MissingRequiredField(t *testing.T) {
	clearVcbalancerEnv()
	_, err := Load(FlagValues{})
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing endpoint/username/password/datacenter")
	}
}

func TestLoad_FlagTakesPrecedenceOverEnv(t *testing.T) {
	clearVcbalancerEnv()
	os.Setenv("VCBALANCER_ENDPOINT", "env-endpoint")
	defer os.Unsetenv("VCBALANCER_ENDPOINT")

	cfg, err := Load(FlagValues{
		Endpoint: "flag-endpoint", Username: "u", Password: "p", Datacenter: "dc",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint != "flag-endpoint" {
		t.Errorf("Endpoint = %q, want flag value to win over env", cfg.Endpoint)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearVcbalancerEnv()
	cfg, err := Load(FlagValues{Endpoint: "e", Username: "u", Password: "p", Datacenter: "dc"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Aggressiveness != defaultAggressiveness {
		t.Errorf("Aggressiveness = %d, want default %d", cfg.Aggressiveness, defaultAggressiveness)
	}
	if cfg.MaxMigrations != defaultMaxMigrations {
		t.Errorf("MaxMigrations = %d, want default %d", cfg.MaxMigrations, defaultMaxMigrations)
	}
	if cfg.Timeout != defaultTimeoutSeconds {
		t.Errorf("Timeout = %d, want default %d", cfg.Timeout, defaultTimeoutSeconds)
	}
}

func TestLoad_AggressivenessOutOfRange(t *testing.T) {
	clearVcbalancerEnv()
	bad := 7
	_, err := Load(FlagValues{Endpoint: "e", Username: "u", Password: "p", Datacenter: "dc", Aggressiveness: &bad})
	if err == nil {
		t.Error("Load() error = nil, want error for aggressiveness out of [1,5]")
	}
}

func TestGetEnvStringList_TrimsAndFiltersEmpty(t *testing.T) {
	os.Setenv("VCBALANCER_METRICS_TEST", "cpu, memory ,,disk")
	defer os.Unsetenv("VCBALANCER_METRICS_TEST")
	got := getEnvStringList("VCBALANCER_METRICS_TEST")
	want := []string{"cpu", "memory", "disk"}
	if len(got) != len(want) {
		t.Fatalf("getEnvStringList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvStringList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
