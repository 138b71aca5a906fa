// ABOUTME: Tests for pure helper functions: NIC speed summation and connect-error classification

package hypervisor

import (
	"errors"
	"strings"
	"testing"

	"github.com/vmware/govmomi/performance"
	"github.com/vmware/govmomi/vim25/types"
)

func TestSumNicLinkSpeedMbps(t *testing.T) {
	cfg := &types.HostConfigInfo{
		Network: &types.HostNetworkInfo{
			Pnic: []types.PhysicalNic{
				{LinkSpeed: &types.PhysicalNicLinkInfo{SpeedMb: 1000}},
				{LinkSpeed: &types.PhysicalNicLinkInfo{SpeedMb: 10000}},
				{LinkSpeed: nil},
			},
		},
	}
	got := sumNicLinkSpeedMbps(cfg)
	if got != 11000 {
		t.Errorf("sumNicLinkSpeedMbps() = %v, want 11000", got)
	}
}

func TestSumNicLinkSpeedMbps_NoPnics(t *testing.T) {
	cfg := &types.HostConfigInfo{Network: &types.HostNetworkInfo{}}
	if got := sumNicLinkSpeedMbps(cfg); got != 0 {
		t.Errorf("sumNicLinkSpeedMbps() = %v, want 0", got)
	}
}

func TestClassifyConnectErr(t *testing.T) {
	cases := []struct {
		in   error
		want string
	}{
		{errors.New("dial tcp: connection refused"), "verify the endpoint is reachable"},
		{errors.New("no such host"), "verify DNS"},
		{errors.New("401 Cannot complete login due to an incorrect user name or password"), "authentication failed"},
		{errors.New("context deadline exceeded"), "timed out"},
		{errors.New("x509: certificate signed by unknown authority"), "certificate error"},
	}
	for _, c := range cases {
		got := classifyConnectErr(c.in)
		if !strings.Contains(got.Error(), c.want) {
			t.Errorf("classifyConnectErr(%v) = %q, want substring %q", c.in, got.Error(), c.want)
		}
	}
}

func TestSumDiskNetworkCounters(t *testing.T) {
	series := []performance.EntityMetric{
		{
			Entity: types.ManagedObjectReference{Type: "HostSystem", Value: "host-1"},
			Value: []performance.MetricSeries{
				{Name: "disk.write.average", Value: []int64{100, 200}},
				{Name: "disk.read.average", Value: []int64{50}},
				{Name: "net.transmitted.average", Value: []int64{10, 30}},
				{Name: "net.received.average", Value: []int64{40}},
				{Name: "cpu.usage.average", Value: []int64{9999}},
			},
		},
	}
	diskKBps, netKBps := sumDiskNetworkCounters(series)
	if diskKBps != 250 {
		t.Errorf("sumDiskNetworkCounters() diskKBps = %v, want 250 (200 write + 50 read, latest sample only)", diskKBps)
	}
	if netKBps != 70 {
		t.Errorf("sumDiskNetworkCounters() netKBps = %v, want 70 (30 transmitted + 40 received, latest sample only)", netKBps)
	}
}

func TestSumDiskNetworkCounters_EmptySeriesIgnored(t *testing.T) {
	series := []performance.EntityMetric{
		{Value: []performance.MetricSeries{
			{Name: "disk.write.average", Value: nil},
			{Name: "net.received.average", Value: []int64{}},
		}},
	}
	diskKBps, netKBps := sumDiskNetworkCounters(series)
	if diskKBps != 0 || netKBps != 0 {
		t.Errorf("sumDiskNetworkCounters() = (%v, %v), want (0, 0) for counters with no samples yet", diskKBps, netKBps)
	}
}

func TestConnectError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ConnectError{Endpoint: "vc.example.com", Err: inner}
	if !errors.Is(err, inner) {
		t.Errorf("ConnectError does not unwrap to its inner error")
	}
}
