package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/wal-cas/internal/health"
	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

func newTestStore(t *testing.T) *wal.Store {
	t.Helper()
	s, err := wal.NewStore(wal.Options{BasePath: t.TempDir(), PartitionSize: 100})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func alwaysOnlineMonitor(t *testing.T, backend types.BackendKind) *health.Monitor {
	t.Helper()
	m := health.NewMonitor(map[types.BackendKind]health.Probe{
		backend: health.StaticProbe(true),
	}, health.Config{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond, HistorySize: 3}, nil)
	m.Start()
	t.Cleanup(m.Close)
	deadline := time.After(time.Second)
	for !m.IsBackendAvailable(backend) {
		select {
		case <-deadline:
			t.Fatal("monitor never reported backend online")
		case <-time.After(2 * time.Millisecond):
		}
	}
	return m
}

type scriptedDispatcher struct {
	mu      sync.Mutex
	calls   int
	outcome func(call int, op *types.Operation) (*types.Result, error)
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, op *types.Operation) (*types.Result, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()
	return d.outcome(call, op)
}

func appendPending(t *testing.T, s *wal.Store, id string, backend types.BackendKind, maxRetries int) {
	t.Helper()
	err := s.Append(&types.Operation{
		OperationID: id,
		Type:        types.OpAdd,
		Backend:     backend,
		Status:      types.StatusPending,
		Timestamp:   time.Now(),
		MaxRetries:  maxRetries,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func waitForStatus(t *testing.T, s *wal.Store, id string, want types.OperationStatus) *types.Operation {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		op, err := s.GetOperation(id)
		if err != nil {
			t.Fatalf("GetOperation: %v", err)
		}
		if op.Status == want {
			return op
		}
		select {
		case <-deadline:
			t.Fatalf("operation %s never reached %s, last status %s", id, want, op.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestProcessorDispatchesAndCompletes(t *testing.T) {
	s := newTestStore(t)
	m := alwaysOnlineMonitor(t, types.BackendIPFS)
	appendPending(t, s, "op-ok", types.BackendIPFS, 3)

	d := &scriptedDispatcher{outcome: func(call int, op *types.Operation) (*types.Result, error) {
		return &types.Result{CID: "bafy-ok", Size: 10}, nil
	}}

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	p := New(s, m, d, cfg)
	p.Start()
	defer p.Close()

	op := waitForStatus(t, s, "op-ok", types.StatusCompleted)
	if op.Result == nil || op.Result.CID != "bafy-ok" {
		t.Errorf("result = %+v", op.Result)
	}
}

func TestProcessorRetriesThenFails(t *testing.T) {
	s := newTestStore(t)
	m := alwaysOnlineMonitor(t, types.BackendS3)
	appendPending(t, s, "op-fail", types.BackendS3, 1)

	d := &scriptedDispatcher{outcome: func(call int, op *types.Operation) (*types.Result, error) {
		return nil, fmt.Errorf("backend unreachable")
	}}

	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.RetryDelay = 1 * time.Millisecond
	p := New(s, m, d, cfg)
	p.Start()
	defer p.Close()

	op := waitForStatus(t, s, "op-fail", types.StatusFailed)
	if op.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", op.RetryCount)
	}
	if op.ErrorType == "" {
		t.Error("expected error_type to be populated")
	}
}

func TestCancelOperationFromPending(t *testing.T) {
	s := newTestStore(t)
	m := alwaysOnlineMonitor(t, types.BackendLocal)
	appendPending(t, s, "op-cancel", types.BackendLocal, 3)

	d := &scriptedDispatcher{outcome: func(call int, op *types.Operation) (*types.Result, error) {
		t.Fatal("dispatcher should not run once cancelled")
		return nil, nil
	}}
	cfg := DefaultConfig()
	cfg.Interval = time.Hour // keep the loop from firing during this test
	p := New(s, m, d, cfg)

	if err := p.CancelOperation("op-cancel"); err != nil {
		t.Fatalf("CancelOperation: %v", err)
	}

	op, err := s.GetOperation("op-cancel")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != types.StatusFailed {
		t.Errorf("status = %s, want FAILED", op.Status)
	}

	// Repeat cancellation is a no-op.
	if err := p.CancelOperation("op-cancel"); err != nil {
		t.Errorf("second CancelOperation: %v", err)
	}
}

func TestDispatcherPanicRecorded(t *testing.T) {
	s := newTestStore(t)
	m := alwaysOnlineMonitor(t, types.BackendIPFS)
	appendPending(t, s, "op-panic", types.BackendIPFS, 0)

	d := &scriptedDispatcher{outcome: func(call int, op *types.Operation) (*types.Result, error) {
		panic("handler exploded")
	}}

	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.RetryDelay = 1 * time.Millisecond
	p := New(s, m, d, cfg)
	p.Start()
	defer p.Close()

	op := waitForStatus(t, s, "op-panic", types.StatusFailed)
	if op.Error == "" {
		t.Error("expected panic to be recorded as a dispatch error")
	}
}
