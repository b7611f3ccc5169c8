package backendclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/wal-cas/internal/errs"
)

// wellKnownCIDs is the fixed table of test CIDs the simulated backend
// recognizes. Any other CID still produces a plausible simulated
// result; this table exists so
// callers testing against fixed fixtures get stable, reproducible
// content rather than a fresh synthesis every call.
var wellKnownCIDs = map[string][]byte{
	"QmSimulatedTestCID1111111111111111111111": []byte("simulated content for test cid 1"),
	"QmSimulatedTestCID2222222222222222222222": []byte("simulated content for test cid 2"),
	"QmSimulatedEmptyFile33333333333333333333": {},
}

// SimulatedClient implements BackendClient without any real backend,
// returning results shaped identically to the real contract with
// Simulated: true. Used both as the construction-time choice for
// environments with no reachable daemon, and as the fallback a Client
// delegates to for any RawClient capability left nil at wiring time.
type SimulatedClient struct {
	mu   sync.Mutex
	pins map[string]bool
	meta map[string]map[string]string
}

// NewSimulatedClient builds a SimulatedClient seeded with the well-known
// test CIDs already "pinned" and readable.
func NewSimulatedClient() *SimulatedClient {
	pins := make(map[string]bool, len(wellKnownCIDs))
	for cid := range wellKnownCIDs {
		pins[cid] = true
	}
	return &SimulatedClient{
		pins: pins,
		meta: make(map[string]map[string]string),
	}
}

func (s *SimulatedClient) Add(_ context.Context, path string, _ map[string]string) (AddResult, error) {
	h := simulatedHash(path)
	return AddResult{CID: h, Size: int64(len(path) * 37 % 1_000_000), Simulated: true}, nil
}

func (s *SimulatedClient) Cat(_ context.Context, cid string) ([]byte, error) {
	if data, ok := wellKnownCIDs[cid]; ok {
		return data, nil
	}
	return []byte(fmt.Sprintf("simulated content for %s", cid)), nil
}

func (s *SimulatedClient) Pin(_ context.Context, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pins == nil {
		s.pins = make(map[string]bool)
	}
	s.pins[cid] = true
	return nil
}

func (s *SimulatedClient) Unpin(_ context.Context, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pins[cid] {
		return errs.Newf(errs.NotFound, "cid %s is not pinned", cid)
	}
	delete(s.pins, cid)
	return nil
}

func (s *SimulatedClient) ListPins(_ context.Context) ([]PinEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PinEntry, 0, len(s.pins))
	for cid := range s.pins {
		out = append(out, PinEntry{CID: cid, Type: "recursive", Simulated: true})
	}
	return out, nil
}

func (s *SimulatedClient) ID(_ context.Context) (NodeID, error) {
	return NodeID{ID: "QmSimulatedNodeIDxxxxxxxxxxxxxxxxxxxxxxxx", AgentVersion: "simulated/0.0.0", Simulated: true}, nil
}

func (s *SimulatedClient) ObjectStat(_ context.Context, cid string) (ObjectStatResult, error) {
	data, ok := wellKnownCIDs[cid]
	size := int64(len(cid) * 41 % 1_000_000)
	if ok {
		size = int64(len(data))
	}
	return ObjectStatResult{CID: cid, Size: size, NumLinks: 0, Simulated: true}, nil
}

func (s *SimulatedClient) AddMetadata(_ context.Context, cid string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		s.meta = make(map[string]map[string]string)
	}
	dst := s.meta[cid]
	if dst == nil {
		dst = make(map[string]string)
		s.meta[cid] = dst
	}
	for k, v := range metadata {
		dst[k] = v
	}
	return nil
}

// simulatedHash derives a deterministic, CID-shaped string from an input
// path so repeated Add calls for the same path are reproducible in tests.
func simulatedHash(path string) string {
	var sum uint64 = 14695981039346656037
	for i := 0; i < len(path); i++ {
		sum ^= uint64(path[i])
		sum *= 1099511628211
	}
	return fmt.Sprintf("QmSimulated%016x", sum)
}

var _ BackendClient = (*SimulatedClient)(nil)
