package backendclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/obslog"
)

// RawClient is a struct of optional operation functions, one per
// capability a real underlying backend object might expose. The caller
// wiring up a Client decides once, at construction time, which fields to
// populate from the real client's actual method set, leaving the rest
// nil rather than reflectively probing methods at call time. A nil
// field falls through to the Simulated client.
type RawClient struct {
	Add         func(ctx context.Context, path string, opts map[string]string) (AddResult, error)
	Cat         func(ctx context.Context, cid string) ([]byte, error)
	Pin         func(ctx context.Context, cid string) error
	Unpin       func(ctx context.Context, cid string) error
	ListPins    func(ctx context.Context) ([]PinEntry, error)
	ID          func(ctx context.Context) (NodeID, error)
	ObjectStat  func(ctx context.Context, cid string) (ObjectStatResult, error)
	AddMetadata func(ctx context.Context, cid string, metadata map[string]string) error
}

// Client is the Method Normalization Layer: it presents the
// stable BackendClient vocabulary, delegating to RawClient's populated
// fields unchanged and falling through to a Simulated implementation for
// anything left nil.
type Client struct {
	raw    RawClient
	sim    *SimulatedClient
	stats  *statsTracker
	logger zerolog.Logger
}

// New builds a Client. sim defaults to NewSimulatedClient() if nil.
func New(raw RawClient, sim *SimulatedClient) *Client {
	if sim == nil {
		sim = NewSimulatedClient()
	}
	return &Client{
		raw:    raw,
		sim:    sim,
		stats:  newStatsTracker(),
		logger: obslog.WithComponent("backendclient"),
	}
}

// NewReal builds a Client wired entirely to a real backend's
// capabilities (every RawClient field populated). Convenience
// constructor for the common case of a fully capable backend.
func NewReal(raw RawClient) *Client {
	return New(raw, NewSimulatedClient())
}

// NewSimulated builds a Client with no real backend at all: every
// operation falls through to the simulated implementation.
func NewSimulated() *Client {
	return New(RawClient{}, NewSimulatedClient())
}

func (c *Client) Add(ctx context.Context, path string, opts map[string]string) (res AddResult, err error) {
	start := time.Now()
	defer func() { c.stats.record("add", start, err) }()
	if c.raw.Add != nil {
		return c.raw.Add(ctx, path, opts)
	}
	c.logger.Debug().Str("path", path).Msg("add: falling back to simulated backend")
	return c.sim.Add(ctx, path, opts)
}

func (c *Client) Cat(ctx context.Context, cid string) (data []byte, err error) {
	start := time.Now()
	defer func() { c.stats.record("cat", start, err) }()
	if c.raw.Cat != nil {
		return c.raw.Cat(ctx, cid)
	}
	c.logger.Debug().Str("cid", cid).Msg("cat: falling back to simulated backend")
	return c.sim.Cat(ctx, cid)
}

func (c *Client) Pin(ctx context.Context, cid string) (err error) {
	start := time.Now()
	defer func() { c.stats.record("pin", start, err) }()
	if c.raw.Pin != nil {
		return c.raw.Pin(ctx, cid)
	}
	c.logger.Debug().Str("cid", cid).Msg("pin: falling back to simulated backend")
	return c.sim.Pin(ctx, cid)
}

func (c *Client) Unpin(ctx context.Context, cid string) (err error) {
	start := time.Now()
	defer func() { c.stats.record("unpin", start, err) }()
	if c.raw.Unpin != nil {
		return c.raw.Unpin(ctx, cid)
	}
	c.logger.Debug().Str("cid", cid).Msg("unpin: falling back to simulated backend")
	return c.sim.Unpin(ctx, cid)
}

func (c *Client) ListPins(ctx context.Context) (pins []PinEntry, err error) {
	start := time.Now()
	defer func() { c.stats.record("list_pins", start, err) }()
	if c.raw.ListPins != nil {
		return c.raw.ListPins(ctx)
	}
	c.logger.Debug().Msg("list_pins: falling back to simulated backend")
	return c.sim.ListPins(ctx)
}

func (c *Client) ID(ctx context.Context) (id NodeID, err error) {
	start := time.Now()
	defer func() { c.stats.record("id", start, err) }()
	if c.raw.ID != nil {
		return c.raw.ID(ctx)
	}
	c.logger.Debug().Msg("id: falling back to simulated backend")
	return c.sim.ID(ctx)
}

func (c *Client) ObjectStat(ctx context.Context, cid string) (stat ObjectStatResult, err error) {
	start := time.Now()
	defer func() { c.stats.record("object_stat", start, err) }()
	if c.raw.ObjectStat != nil {
		return c.raw.ObjectStat(ctx, cid)
	}
	c.logger.Debug().Str("cid", cid).Msg("object_stat: falling back to simulated backend")
	return c.sim.ObjectStat(ctx, cid)
}

func (c *Client) AddMetadata(ctx context.Context, cid string, metadata map[string]string) (err error) {
	start := time.Now()
	defer func() { c.stats.record("add_metadata", start, err) }()
	if c.raw.AddMetadata != nil {
		return c.raw.AddMetadata(ctx, cid, metadata)
	}
	c.logger.Debug().Str("cid", cid).Msg("add_metadata: falling back to simulated backend")
	return c.sim.AddMetadata(ctx, cid, metadata)
}

// GetStats returns per-operation counts, successes, failures, and
// latency summaries.
func (c *Client) GetStats() map[string]OpStats {
	return c.stats.Snapshot()
}

var _ BackendClient = (*Client)(nil)
