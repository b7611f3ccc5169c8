package replication

import (
	"testing"
	"time"

	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

func waitForLeader(t *testing.T, rs *ReplicatedStore) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rs.IsLeader() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("single-node raft cluster never elected a leader")
}

func TestReplicatedStoreAppendAppliesLocally(t *testing.T) {
	walDir := t.TempDir()
	raftDir := t.TempDir()

	store, err := wal.NewStore(wal.Options{BasePath: walDir, PartitionSize: 1000})
	if err != nil {
		t.Fatalf("wal.NewStore: %v", err)
	}
	defer store.Close()

	rs, err := NewReplicatedStore(Config{
		NodeID:   "node-1",
		BindAddr: "127.0.0.1:17321",
		DataDir:  raftDir,
	}, store)
	if err != nil {
		t.Fatalf("NewReplicatedStore: %v", err)
	}
	defer rs.Close()

	waitForLeader(t, rs)

	op := &types.Operation{
		OperationID: "op-replicated-1",
		Type:        types.OpAdd,
		Backend:     types.BackendLocal,
		Status:      types.StatusPending,
		Timestamp:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := rs.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := rs.GetOperation(op.OperationID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if got.OperationID != op.OperationID || got.Status != types.StatusPending {
		t.Fatalf("unexpected replicated operation: %+v", got)
	}
}

func TestReplicatedStoreUpdateStatus(t *testing.T) {
	walDir := t.TempDir()
	raftDir := t.TempDir()

	store, err := wal.NewStore(wal.Options{BasePath: walDir, PartitionSize: 1000})
	if err != nil {
		t.Fatalf("wal.NewStore: %v", err)
	}
	defer store.Close()

	rs, err := NewReplicatedStore(Config{
		NodeID:   "node-1",
		BindAddr: "127.0.0.1:17322",
		DataDir:  raftDir,
	}, store)
	if err != nil {
		t.Fatalf("NewReplicatedStore: %v", err)
	}
	defer rs.Close()

	waitForLeader(t, rs)

	op := &types.Operation{
		OperationID: "op-replicated-2",
		Type:        types.OpAdd,
		Backend:     types.BackendLocal,
		Status:      types.StatusPending,
		Timestamp:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := rs.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := rs.UpdateOperationStatus(op.OperationID, types.StatusProcessing, nil, "", ""); err != nil {
		t.Fatalf("UpdateOperationStatus: %v", err)
	}

	got, err := rs.GetOperation(op.OperationID)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if got.Status != types.StatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", got.Status)
	}
}
