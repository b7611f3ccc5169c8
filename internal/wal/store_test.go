package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/wal-cas/internal/types"
)

func newTestStore(t *testing.T, partitionSize int, archiveCompleted bool) *Store {
	t.Helper()
	base := t.TempDir()
	s, err := NewStore(Options{
		BasePath:         base,
		PartitionSize:    partitionSize,
		ArchiveCompleted: archiveCompleted,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOp(id string) *types.Operation {
	return &types.Operation{
		OperationID: id,
		Type:        types.OpAdd,
		Backend:     types.BackendIPFS,
		Status:      types.StatusPending,
		Timestamp:   time.Now(),
		MaxRetries:  3,
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t, 100, false)
	op := sampleOp("op-1")
	if err := s.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.GetOperation("op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if got.OperationID != "op-1" || got.Status != types.StatusPending {
		t.Errorf("got %+v", got)
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	s := newTestStore(t, 100, false)
	op := sampleOp("dup")
	if err := s.Append(op); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := s.Append(op); err == nil {
		t.Fatal("expected error appending duplicate operation id")
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	s := newTestStore(t, 100, false)
	op := sampleOp("op-illegal")
	if err := s.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := s.UpdateOperationStatus("op-illegal", types.StatusCompleted, nil)
	if err == nil {
		t.Fatal("expected error transitioning PENDING -> COMPLETED directly")
	}
}

// TestRetryThenSuccess covers an operation that fails, enters RETRYING,
// is retried, and finally completes, with retry_count ending at 2.
func TestRetryThenSuccess(t *testing.T) {
	s := newTestStore(t, 100, false)
	op := sampleOp("op-retry")
	if err := s.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	must(s.UpdateOperationStatus("op-retry", types.StatusProcessing, nil))
	must(s.UpdateOperationStatus("op-retry", types.StatusRetrying, func(o *types.Operation) {
		o.RetryCount++
		o.Error = "first attempt failed"
	}))
	must(s.UpdateOperationStatus("op-retry", types.StatusProcessing, nil))
	must(s.UpdateOperationStatus("op-retry", types.StatusRetrying, func(o *types.Operation) {
		o.RetryCount++
		o.Error = "second attempt failed"
	}))
	must(s.UpdateOperationStatus("op-retry", types.StatusProcessing, nil))
	must(s.UpdateOperationStatus("op-retry", types.StatusCompleted, func(o *types.Operation) {
		o.Result = &types.Result{CID: "bafy123", Size: 42}
	}))

	got, err := s.GetOperation("op-retry")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", got.RetryCount)
	}
	if got.Result == nil || got.Result.CID != "bafy123" {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestArchiveOnCompletion(t *testing.T) {
	s := newTestStore(t, 100, true)
	op := sampleOp("op-archive")
	if err := s.Append(op); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.UpdateOperationStatus("op-archive", types.StatusProcessing, nil); err != nil {
		t.Fatalf("-> PROCESSING: %v", err)
	}
	if err := s.UpdateOperationStatus("op-archive", types.StatusCompleted, nil); err != nil {
		t.Fatalf("-> COMPLETED: %v", err)
	}

	archives, err := listArchives(archivesDir(s.base))
	if err != nil {
		t.Fatalf("listArchives: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("expected one archive file, got %v", archives)
	}

	got, err := s.GetOperation("op-archive")
	if err != nil {
		t.Fatalf("GetOperation after archive: %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	stats, err := s.GetStatistics()
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("stats.Completed = %d, want 1", stats.Completed)
	}
	if stats.ByBackend[types.BackendIPFS] != 1 {
		t.Errorf("stats.ByBackend[IPFS] = %d, want 1", stats.ByBackend[types.BackendIPFS])
	}
}

func TestPartitionRotationAtBoundary(t *testing.T) {
	s := newTestStore(t, 2, false)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Append(sampleOp(id)); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		t.Fatalf("listPartitions: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected rotation to produce 2 partitions, got %v", names)
	}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.GetOperation(id); err != nil {
			t.Errorf("GetOperation(%s): %v", id, err)
		}
	}
}

func TestGetOperationsByStatus(t *testing.T) {
	s := newTestStore(t, 100, false)
	for i, id := range []string{"p1", "p2", "p3"} {
		op := sampleOp(id)
		op.Timestamp = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.Append(op); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.UpdateOperationStatus("p2", types.StatusProcessing, nil); err != nil {
		t.Fatalf("UpdateOperationStatus: %v", err)
	}

	pending, err := s.GetOperationsByStatus(types.StatusPending, 0)
	if err != nil {
		t.Fatalf("GetOperationsByStatus: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending ops, got %d", len(pending))
	}

	processing, err := s.GetOperationsByStatus(types.StatusProcessing, 0)
	if err != nil {
		t.Fatalf("GetOperationsByStatus: %v", err)
	}
	if len(processing) != 1 || processing[0].OperationID != "p2" {
		t.Fatalf("expected only p2 processing, got %+v", processing)
	}
}

// TestRecoverDiscardsPartialPartition covers the partial-file discard
// behavior: a zero-byte partition file left by a simulated crash is
// removed at startup instead of crashing NewStore.
func TestRecoverDiscardsPartialPartition(t *testing.T) {
	base := t.TempDir()
	if err := ensureDir(partitionsDir(base)); err != nil {
		t.Fatalf("ensureDir: %v", err)
	}
	partial := filepath.Join(partitionsDir(base), partitionName(time.Now(), 0))
	if err := writeEmptyFile(partial); err != nil {
		t.Fatalf("writeEmptyFile: %v", err)
	}

	s, err := NewStore(Options{BasePath: base, PartitionSize: 100})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	names, err := listPartitions(partitionsDir(base))
	if err != nil {
		t.Fatalf("listPartitions: %v", err)
	}
	for _, n := range names {
		if filepath.Join(partitionsDir(base), n) == partial {
			t.Fatalf("partial partition %s was not discarded", partial)
		}
	}
}

func writeEmptyFile(path string) error {
	return os.WriteFile(path, nil, 0o600)
}

func TestCleanupRemovesOldArchives(t *testing.T) {
	s := newTestStore(t, 100, true)

	old := filepath.Join(archivesDir(s.base), archiveName(time.Now().AddDate(0, 0, -40)))
	recent := filepath.Join(archivesDir(s.base), archiveName(time.Now()))
	for _, p := range []string{old, recent} {
		if err := writeEmptyFile(p); err != nil {
			t.Fatalf("writeEmptyFile: %v", err)
		}
	}

	res, err := s.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.RemovedCount != 1 {
		t.Fatalf("removed %d archives, want 1 (%v)", res.RemovedCount, res.RemovedFiles)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected the old archive to be deleted")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("expected the recent archive to survive")
	}
}
