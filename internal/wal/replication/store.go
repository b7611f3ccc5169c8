package replication

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/obslog"
	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

// Config configures a ReplicatedStore's Raft transport and on-disk log.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string // holds raft-log.db, raft-stable.db, and snapshots
}

// ReplicatedStore fronts a local *wal.Store with Raft log replication:
// Append and UpdateOperationStatus go through raft.Apply and only take
// effect, on every node, once a quorum has committed them.
type ReplicatedStore struct {
	cfg    Config
	raft   *raft.Raft
	fsm    *FSM
	store  *wal.Store
	logger zerolog.Logger
}

// NewReplicatedStore wraps store with Raft and bootstraps a new
// single-node cluster rooted at cfg.BindAddr. It always bootstraps; there
// is no separate join path. Further nodes are added by calling AddVoter on
// the current leader; this mirrors manager.Bootstrap/manager.AddVoter.
func NewReplicatedStore(cfg Config, store *wal.Store) (*ReplicatedStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating raft data dir: %w", err))
	}

	fsm := NewFSM(store)

	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(cfg.NodeID)
	// Matched to manager.Bootstrap's edge/LAN tuning: faster failure
	// detection than hashicorp/raft's WAN-oriented defaults.
	rc.HeartbeatTimeout = 500 * time.Millisecond
	rc.ElectionTimeout = 500 * time.Millisecond
	rc.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, fmt.Errorf("resolving bind addr: %w", err))
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating raft transport: %w", err))
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating snapshot store: %w", err))
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating raft log store: %w", err))
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating raft stable store: %w", err))
	}

	r, err := raft.NewRaft(rc, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("creating raft node: %w", err))
	}

	rs := &ReplicatedStore{
		cfg:    cfg,
		raft:   r,
		fsm:    fsm,
		store:  store,
		logger: obslog.WithComponent("wal-replication"),
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: rc.LocalID, Address: transport.LocalAddr()}},
	}
	if f := r.BootstrapCluster(configuration); f.Error() != nil && f.Error() != raft.ErrCantBootstrap {
		return nil, errs.New(errs.ExecutionError, fmt.Errorf("bootstrapping raft cluster: %w", f.Error()))
	}

	return rs, nil
}

// AddVoter adds nodeID/address as a new voting member. Must be called on
// the current leader (mirrors manager.AddVoter).
func (rs *ReplicatedStore) AddVoter(nodeID, address string) error {
	if rs.raft.State() != raft.Leader {
		return errs.Newf(errs.ExecutionError, "not the leader, current leader: %s", rs.raft.Leader())
	}
	f := rs.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return errs.New(errs.ExecutionError, fmt.Errorf("adding voter: %w", err))
	}
	return nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (rs *ReplicatedStore) IsLeader() bool {
	return rs.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's Raft bind address, if known.
func (rs *ReplicatedStore) LeaderAddr() string {
	addr, _ := rs.raft.LeaderWithID()
	return string(addr)
}

// apply marshals cmd and commits it through the Raft log, returning
// whatever the FSM's Apply returned for it (nil, or an error).
func (rs *ReplicatedStore) apply(cmd Command, timeout time.Duration) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}
	f := rs.raft.Apply(data, timeout)
	if err := f.Error(); err != nil {
		return errs.New(errs.ExecutionError, fmt.Errorf("raft apply: %w", err))
	}
	if resp := f.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok && applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Append replicates op's creation through the Raft log before any node
// treats it as durably appended.
func (rs *ReplicatedStore) Append(op *types.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}
	return rs.apply(Command{Op: opAppend, Data: data}, 5*time.Second)
}

// UpdateOperationStatus replicates a status transition through the Raft
// log. The mutate callback is applied locally by every node's FSM via
// the serialized statusChange fields, not by re-invoking a closure
// across the network.
func (rs *ReplicatedStore) UpdateOperationStatus(id string, newStatus types.OperationStatus, result *types.Result, opErr string, errType string) error {
	data, err := json.Marshal(statusChange{
		OperationID: id,
		NewStatus:   newStatus,
		Result:      result,
		Error:       opErr,
		ErrorType:   errType,
	})
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}
	return rs.apply(Command{Op: opUpdateStatus, Data: data}, 5*time.Second)
}

// GetOperation reads directly from the local WAL; reads do not require
// quorum once replicated writes guarantee every node converges.
func (rs *ReplicatedStore) GetOperation(id string) (*types.Operation, error) {
	return rs.store.GetOperation(id)
}

// Close shuts down the Raft node. The underlying *wal.Store is owned by
// the caller and is not closed here.
func (rs *ReplicatedStore) Close() error {
	f := rs.raft.Shutdown()
	if err := f.Error(); err != nil {
		return errs.New(errs.ExecutionError, fmt.Errorf("shutting down raft: %w", err))
	}
	return nil
}
