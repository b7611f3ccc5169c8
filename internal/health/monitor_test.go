package health

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/wal-cas/internal/types"
)

// scriptedProbe returns true/false according to a fixed script, one entry
// consumed per invocation; once exhausted it repeats the last entry.
func scriptedProbe(script []bool) (Probe, *int32) {
	var mu sync.Mutex
	idx := 0
	calls := new(int32)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		*calls++
		i := idx
		if i >= len(script) {
			i = len(script) - 1
		} else {
			idx++
		}
		if script[i] {
			return nil
		}
		return fmt.Errorf("scripted failure")
	}, calls
}

func TestDeriveHysteresis(t *testing.T) {
	cases := []struct {
		name    string
		history []bool
		want    types.BackendHealthState
	}{
		{"empty", nil, types.HealthUnknown},
		{"single healthy", []bool{true}, types.HealthOnline},
		{"single unhealthy", []bool{false}, types.HealthOffline},
		{"two healthy", []bool{true, true}, types.HealthOnline},
		{"three healthy", []bool{true, true, true}, types.HealthOnline},
		{"three unhealthy", []bool{false, false, false}, types.HealthOffline},
		{"mixed", []bool{true, true, false}, types.HealthDegraded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := derive(tc.history); got != tc.want {
				t.Errorf("derive(%v) = %s, want %s", tc.history, got, tc.want)
			}
		})
	}
}

// TestMonitorScenario4 covers the hysteresis sequence: starting from
// unknown, three consecutive healthy probes yield online; a single
// failure yields degraded; two more failures yield offline; the
// status-change callback fires exactly at each of those transitions.
func TestMonitorScenario4(t *testing.T) {
	probe, _ := scriptedProbe([]bool{true, true, true, false, false, false})

	var mu sync.Mutex
	var transitions []string
	onChange := func(backend types.BackendKind, prev, next types.BackendHealthState) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, fmt.Sprintf("%s->%s", prev, next))
	}

	m := NewMonitor(map[types.BackendKind]Probe{types.BackendIPFS: probe}, Config{
		Interval:    10 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		HistorySize: 5,
	}, onChange)

	m.Start()
	defer m.Close()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(transitions)
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for transitions, got %v", transitions)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"unknown->online", "online->degraded", "degraded->offline"}
	if len(transitions) < len(want) {
		t.Fatalf("got %v, want at least %v", transitions, want)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], w)
		}
	}
}

func TestMonitorIsBackendAvailable(t *testing.T) {
	probe := StaticProbe(true)
	m := NewMonitor(map[types.BackendKind]Probe{types.BackendS3: probe}, Config{
		Interval:    5 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		HistorySize: 3,
	}, nil)
	m.Start()
	defer m.Close()

	deadline := time.After(time.Second)
	for !m.IsBackendAvailable(types.BackendS3) {
		select {
		case <-deadline:
			t.Fatal("backend never became available")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if m.IsBackendAvailable(types.BackendFilecoin) {
		t.Error("unconfigured backend reported available")
	}
}

func TestMonitorCloseIdempotent(t *testing.T) {
	m := NewMonitor(map[types.BackendKind]Probe{types.BackendLocal: StaticProbe(true)}, DefaultConfig(), nil)
	m.Start()
	m.Close()
	m.Close() // must not panic or block
}

func TestHistoryBounded(t *testing.T) {
	m := NewMonitor(map[types.BackendKind]Probe{types.BackendLocal: StaticProbe(true)}, Config{
		Interval:    1 * time.Millisecond,
		Timeout:     50 * time.Millisecond,
		HistorySize: 3,
	}, nil)
	m.Start()
	defer m.Close()

	time.Sleep(50 * time.Millisecond)
	status, ok := m.GetStatus(types.BackendLocal)
	if !ok {
		t.Fatal("expected status")
	}
	if len(status.CheckHistory) > 3 {
		t.Errorf("history length %d exceeds bound 3", len(status.CheckHistory))
	}
}
