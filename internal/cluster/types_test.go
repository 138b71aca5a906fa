// ABOUTME: Tests for host percentage math and affinity prefix derivation

package cluster

import "testing"

func TestHostUsagePct(t *testing.T) {
	h := Host{
		CPUCapacityMHz: 1000, CPUAbsUsageMHz: 250,
		MemoryCapacityMB: 2000, MemoryAbsUsageMB: 1000,
		DiskIoCapacityMBps: 0, DiskIoAbsUsageMBps: 50,
		NetworkCapacityMBps: 500, NetworkIoAbsUsageMBps: 0,
	}
	if got := h.CPUUsagePct(); got != 25 {
		t.Errorf("CPUUsagePct() = %v, want 25", got)
	}
	if got := h.MemoryUsagePct(); got != 50 {
		t.Errorf("MemoryUsagePct() = %v, want 50", got)
	}
	if got := h.DiskUsagePct(); got != 0 {
		t.Errorf("DiskUsagePct() with zero capacity = %v, want 0", got)
	}
	if got := h.NetworkUsagePct(); got != 0 {
		t.Errorf("NetworkUsagePct() = %v, want 0", got)
	}
}

func TestPrefixOf(t *testing.T) {
	cases := []struct {
		name       string
		wantPrefix string
		wantOk     bool
	}{
		{"appvm01", "appvm", true},
		{"appvm123", "appvm", true},
		{"cell", "cell", true},
		{"ab", "", false},
		{"123", "123", true},
	}
	for _, c := range cases {
		prefix, ok := PrefixOf(c.name)
		if ok != c.wantOk || prefix != c.wantPrefix {
			t.Errorf("PrefixOf(%q) = (%q, %v), want (%q, %v)", c.name, prefix, ok, c.wantPrefix, c.wantOk)
		}
	}
}

func TestReasonString(t *testing.T) {
	if ReasonAntiAffinity.String() != "AntiAffinity" {
		t.Errorf("ReasonAntiAffinity.String() = %q", ReasonAntiAffinity.String())
	}
	if ReasonBalance.String() != "Balance" {
		t.Errorf("ReasonBalance.String() = %q", ReasonBalance.String())
	}
}
