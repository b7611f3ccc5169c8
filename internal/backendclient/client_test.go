package backendclient

import (
	"context"
	"errors"
	"testing"
)

func TestClientDelegatesWhenRawPopulated(t *testing.T) {
	called := false
	raw := RawClient{
		Add: func(ctx context.Context, path string, opts map[string]string) (AddResult, error) {
			called = true
			return AddResult{CID: "QmReal", Size: 42}, nil
		},
	}
	c := New(raw, nil)
	res, err := c.Add(context.Background(), "/tmp/file", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !called {
		t.Fatal("expected raw Add to be invoked")
	}
	if res.Simulated {
		t.Fatal("real delegate result should not be marked simulated")
	}
	if res.CID != "QmReal" {
		t.Fatalf("unexpected cid: %s", res.CID)
	}
}

func TestClientFallsBackToSimulated(t *testing.T) {
	c := NewSimulated()
	res, err := c.Add(context.Background(), "/tmp/file", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !res.Simulated {
		t.Fatal("expected fallback result to be marked simulated")
	}
}

func TestSimulatedWellKnownCID(t *testing.T) {
	c := NewSimulated()
	data, err := c.Cat(context.Background(), "QmSimulatedTestCID1111111111111111111111")
	if err != nil {
		t.Fatalf("Cat: %v", err)
	}
	if string(data) != "simulated content for test cid 1" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestSimulatedPinUnpin(t *testing.T) {
	c := NewSimulated()
	ctx := context.Background()
	if err := c.Pin(ctx, "QmXyz"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	pins, err := c.ListPins(ctx)
	if err != nil {
		t.Fatalf("ListPins: %v", err)
	}
	found := false
	for _, p := range pins {
		if p.CID == "QmXyz" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected QmXyz to be pinned")
	}

	if err := c.Unpin(ctx, "QmXyz"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if err := c.Unpin(ctx, "QmXyz"); err == nil {
		t.Fatal("expected unpinning an already-unpinned cid to fail")
	}
}

func TestGetStatsTracksSuccessAndFailure(t *testing.T) {
	raw := RawClient{
		Pin: func(ctx context.Context, cid string) error {
			return errors.New("boom")
		},
	}
	c := New(raw, nil)
	_ = c.Pin(context.Background(), "QmXyz")
	_ = c.Pin(context.Background(), "QmXyz")

	stats := c.GetStats()
	pinStats, ok := stats["pin"]
	if !ok {
		t.Fatal("expected stats for pin operation")
	}
	if pinStats.Count != 2 || pinStats.Failures != 2 || pinStats.Successes != 0 {
		t.Fatalf("unexpected pin stats: %+v", pinStats)
	}
}

func TestNodeIDSimulated(t *testing.T) {
	c := NewSimulated()
	id, err := c.ID(context.Background())
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	if !id.Simulated || id.ID == "" {
		t.Fatalf("expected simulated node id, got %+v", id)
	}
}
