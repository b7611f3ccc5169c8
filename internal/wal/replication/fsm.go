/*
Package replication is the optional multi-node replicated WAL mode
enabled by config.Config.EnableReplication. It is a thin
Raft layer over *wal.Store: every operation append or status update is
first committed to the Raft log, then applied locally by the FSM, so a
quorum of nodes agree on WAL contents before any one of them treats an
operation as durable.

The command set is small: append and update_status. Because the
authoritative operation data already lives in the local bbolt-backed WAL
partitions, the FSM snapshot itself carries no payload; the real state to
restore is whatever the restored node's own WAL already holds.
*/
package replication

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

// Command is one WAL mutation replicated through the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opAppend       = "append"
	opUpdateStatus = "update_status"
)

// FSM applies committed Raft log entries to a local *wal.Store.
type FSM struct {
	mu    sync.Mutex
	store *wal.Store
}

// NewFSM wraps store as a Raft FSM.
func NewFSM(store *wal.Store) *FSM {
	return &FSM{store: store}
}

// Apply implements raft.FSM. It is invoked once per committed log entry,
// in log order, on every node, including the one that proposed it.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("replication: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAppend:
		var op types.Operation
		if err := json.Unmarshal(cmd.Data, &op); err != nil {
			return err
		}
		return f.store.Append(&op)

	case opUpdateStatus:
		var sc statusChange
		if err := json.Unmarshal(cmd.Data, &sc); err != nil {
			return err
		}
		return f.store.UpdateOperationStatus(sc.OperationID, sc.NewStatus, func(op *types.Operation) {
			if sc.Result != nil {
				op.Result = sc.Result
			}
			if sc.Error != "" {
				op.Error = sc.Error
				op.ErrorType = sc.ErrorType
			}
		})

	default:
		return errs.Newf(errs.InvalidArgument, "replication: unknown command %q", cmd.Op)
	}
}

type statusChange struct {
	OperationID string                `json:"operation_id"`
	NewStatus   types.OperationStatus `json:"new_status"`
	Result      *types.Result         `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorType   string                `json:"error_type,omitempty"`
}

// snapshot is an intentionally empty raft.FSMSnapshot: the durable state
// this FSM guards lives in the local WAL's own bbolt partitions, not in
// an in-memory structure that needs separate serialization.
type snapshot struct{}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return snapshot{}, nil
}

// Restore implements raft.FSM. A freshly joined node restores its WAL
// contents from the leader's Raft log replay, not from this marker.
func (f *FSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

func (snapshot) Persist(sink raft.SnapshotSink) error {
	return sink.Close()
}

func (snapshot) Release() {}
