package wal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/obslog"
	"github.com/cuemby/wal-cas/internal/types"
)

// Store provides durable, append-only storage of Operation records with
// efficient query by id and by status.
type Store struct {
	base             string
	partitionSize    int
	archiveCompleted bool

	mu          sync.RWMutex // guards currentPath/currentDB/counter against rotation races
	currentPath string
	currentDB   *bolt.DB
	currentRows int
	counter     uint64

	idLocks sync.Map // operation_id -> *sync.Mutex

	closed bool
}

// Options configures a new Store.
type Options struct {
	BasePath         string
	PartitionSize    int
	ArchiveCompleted bool
}

// NewStore opens (or creates) a WAL rooted at opts.BasePath, recovering
// from any partial partition left by a crash and resuming the current
// partition (or creating a fresh one) for new appends.
func NewStore(opts Options) (*Store, error) {
	if opts.PartitionSize <= 0 {
		opts.PartitionSize = 10_000
	}
	if err := ensureDir(partitionsDir(opts.BasePath)); err != nil {
		return nil, err
	}
	if err := ensureDir(archivesDir(opts.BasePath)); err != nil {
		return nil, err
	}

	s := &Store{
		base:             opts.BasePath,
		partitionSize:    opts.PartitionSize,
		archiveCompleted: opts.ArchiveCompleted,
	}

	if err := s.recoverPartitions(); err != nil {
		return nil, err
	}
	if err := s.openOrCreateCurrent(); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverPartitions discards any partition file that fails a consistency
// check: partial files from a crashed append are detected and discarded
// at startup.
func (s *Store) recoverPartitions() error {
	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(partitionsDir(s.base), name)
		if err := consistencyCheck(path); err != nil {
			logger := obslog.WithComponent("wal")
			logger.Warn().
				Str("partition", name).
				Err(err).
				Msg("discarding partial partition at startup")
			_ = removeFile(path)
		}
	}
	return nil
}

func (s *Store) openOrCreateCurrent() error {
	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return s.rotateLocked()
	}

	last := names[len(names)-1]
	path := filepath.Join(partitionsDir(s.base), last)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("reopening current partition %s: %w", path, err)
	}
	rows := 0
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		if b == nil {
			return fmt.Errorf("missing operations bucket")
		}
		rows = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	m := partitionNameRE.FindStringSubmatch(last)
	if m != nil {
		var ctr uint64
		fmt.Sscanf(m[2], "%d", &ctr)
		if ctr >= s.counter {
			s.counter = ctr + 1
		}
	}

	s.currentPath = path
	s.currentDB = db
	s.currentRows = rows
	return nil
}

// rotateLocked closes the current partition (if any) and opens a fresh
// one. Callers must hold s.mu for writing.
func (s *Store) rotateLocked() error {
	if s.currentDB != nil {
		if err := s.currentDB.Close(); err != nil {
			return fmt.Errorf("closing partition %s: %w", s.currentPath, err)
		}
	}
	counter := atomic.AddUint64(&s.counter, 1) - 1
	path := filepath.Join(partitionsDir(s.base), partitionName(time.Now(), counter))
	db, err := createPartition(path)
	if err != nil {
		return err
	}
	s.currentPath = path
	s.currentDB = db
	s.currentRows = 0
	return nil
}

// Append atomically persists a new operation, rotating the current
// partition first if it is already at capacity.
func (s *Store) Append(op *types.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errs.Newf(errs.ExecutionError, "wal store is closed")
	}
	if exists, err := s.existsAnywhereLocked(op.OperationID); err != nil {
		return err
	} else if exists {
		return errs.Newf(errs.InvalidArgument, "operation %s already exists", op.OperationID)
	}

	if s.currentRows >= s.partitionSize {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshaling operation %s: %w", op.OperationID, err)
	}

	err = s.currentDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		return b.Put([]byte(op.OperationID), data)
	})
	if err != nil {
		return fmt.Errorf("appending operation %s: %w", op.OperationID, err)
	}
	s.currentRows++
	return nil
}

// existsAnywhereLocked checks the current partition only; callers that
// need a full existence check across all partitions/archives should use
// GetOperation. This cheap check is sufficient to catch the common case of
// a duplicate append into the still-open partition and keeps Append from
// paying for a full directory scan on every call.
func (s *Store) existsAnywhereLocked(id string) (bool, error) {
	var found bool
	err := s.currentDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		found = b.Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// GetOperation scans partitions (current first, then older, then
// archives) and returns the first match.
func (s *Store) GetOperation(id string) (*types.Operation, error) {
	s.mu.RLock()
	op, err := s.scanCurrentLocked(id)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if op != nil {
		return op, nil
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return nil, err
	}
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(partitionsDir(s.base), names[i])
		if path == s.currentPathSnapshot() {
			continue
		}
		op, err := scanFileForID(path, id)
		if err != nil {
			return nil, err
		}
		if op != nil {
			return op, nil
		}
	}

	archives, err := listArchives(archivesDir(s.base))
	if err != nil {
		return nil, err
	}
	for i := len(archives) - 1; i >= 0; i-- {
		path := filepath.Join(archivesDir(s.base), archives[i])
		op, err := scanFileForID(path, id)
		if err != nil {
			return nil, err
		}
		if op != nil {
			return op, nil
		}
	}

	return nil, errs.Newf(errs.NotFound, "operation %s not found", id)
}

func (s *Store) currentPathSnapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPath
}

func (s *Store) scanCurrentLocked(id string) (*types.Operation, error) {
	var op *types.Operation
	err := s.currentDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var decoded types.Operation
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		op = &decoded
		return nil
	})
	return op, err
}

func scanFileForID(path, id string) (*types.Operation, error) {
	db, err := openPartitionReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var op *types.Operation
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var decoded types.Operation
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		op = &decoded
		return nil
	})
	return op, err
}

// GetOperationsByStatus scans every partition for operations in the given
// status, sorted by Timestamp descending, truncated to limit if positive.
func (s *Store) GetOperationsByStatus(status types.OperationStatus, limit int) ([]*types.Operation, error) {
	var all []*types.Operation

	collect := func(path string, readCurrent bool) error {
		var scan func(tx *bolt.Tx) error = func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketOperations)
			if b == nil {
				return nil
			}
			return b.ForEach(func(_, v []byte) error {
				var op types.Operation
				if err := json.Unmarshal(v, &op); err != nil {
					return err
				}
				if op.Status == status {
					all = append(all, &op)
				}
				return nil
			})
		}
		if readCurrent {
			return s.currentDB.View(scan)
		}
		db, err := openPartitionReadOnly(path)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.View(scan)
	}

	s.mu.RLock()
	currentPath := s.currentPath
	err := collect(currentPath, true)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		path := filepath.Join(partitionsDir(s.base), name)
		if path == currentPath {
			continue
		}
		if err := collect(path, false); err != nil {
			return nil, err
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// idLock returns the per-operation_id mutex, creating it on first use.
func (s *Store) idLock(id string) *sync.Mutex {
	v, _ := s.idLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// UpdateOperationStatus validates and applies a status transition,
// serialized per operation_id. mutate may adjust any other fields
// (result, error, retry_count, ...) before the row is written back.
func (s *Store) UpdateOperationStatus(id string, newStatus types.OperationStatus, mutate func(*types.Operation)) error {
	lock := s.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	op, err := s.GetOperation(id)
	if err != nil {
		return err
	}
	if !types.CanTransition(op.Status, newStatus) {
		return errs.Newf(errs.InvalidArgument, "illegal transition %s -> %s for %s", op.Status, newStatus, id)
	}

	op.Status = newStatus
	op.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(op)
	}
	if newStatus == types.StatusCompleted {
		now := time.Now()
		op.CompletedAt = &now
	}

	if newStatus == types.StatusCompleted && s.archiveCompleted {
		return s.moveToArchiveLocked(op)
	}
	return s.writeBackLocked(op)
}

// writeBackLocked finds which partition currently holds op.OperationID and
// overwrites the row in place.
func (s *Store) writeBackLocked(op *types.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshaling operation %s: %w", op.OperationID, err)
	}

	s.mu.RLock()
	currentPath := s.currentPath
	ok, err := writeIfPresent(s.currentDB, op.OperationID, data)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(partitionsDir(s.base), name)
		if path == currentPath {
			continue
		}
		db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return fmt.Errorf("opening partition %s: %w", path, err)
		}
		ok, err := writeIfPresent(db, op.OperationID, data)
		closeErr := db.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		if ok {
			return nil
		}
	}

	return errs.Newf(errs.NotFound, "operation %s not found for update", op.OperationID)
}

func writeIfPresent(db *bolt.DB, id string, data []byte) (bool, error) {
	found := false
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		if b == nil || b.Get([]byte(id)) == nil {
			return nil
		}
		found = true
		return b.Put([]byte(id), data)
	})
	return found, err
}

// moveToArchiveLocked appends op to today's archive file, then removes it
// from whichever live partition holds it. The write happens before the
// delete so a crash mid-move leaves the row recoverable from the live
// partition.
func (s *Store) moveToArchiveLocked(op *types.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshaling operation %s: %w", op.OperationID, err)
	}

	archivePath := filepath.Join(archivesDir(s.base), archiveName(time.Now()))
	archiveDB, err := bolt.Open(archivePath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	err = archiveDB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketOperations)
		if err != nil {
			return err
		}
		return b.Put([]byte(op.OperationID), data)
	})
	closeErr := archiveDB.Close()
	if err != nil {
		return fmt.Errorf("archiving operation %s: %w", op.OperationID, err)
	}
	if closeErr != nil {
		return closeErr
	}

	return s.deleteFromLivePartitionsLocked(op.OperationID)
}

func (s *Store) deleteFromLivePartitionsLocked(id string) error {
	s.mu.RLock()
	currentPath := s.currentPath
	deleted, err := deleteIfPresent(s.currentDB, id)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return err
	}
	for _, name := range names {
		path := filepath.Join(partitionsDir(s.base), name)
		if path == currentPath {
			continue
		}
		db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return fmt.Errorf("opening partition %s: %w", path, err)
		}
		deleted, err := deleteIfPresent(db, id)
		closeErr := db.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
		if deleted {
			return nil
		}
	}
	return nil
}

func deleteIfPresent(db *bolt.DB, id string) (bool, error) {
	found := false
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		if b == nil || b.Get([]byte(id)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(id))
	})
	return found, err
}

// Statistics summarizes the WAL's current contents.
type Statistics struct {
	Total            int
	Pending          int
	Processing       int
	Completed        int
	Failed           int
	Retrying         int
	Partitions       int
	Archives         int
	ProcessingActive bool
	ByBackend        map[types.BackendKind]int
}

// GetStatistics computes aggregate counts across all partitions and
// archives.
func (s *Store) GetStatistics() (Statistics, error) {
	stats := Statistics{ByBackend: map[types.BackendKind]int{}}

	tally := func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketOperations)
			if b == nil {
				return nil
			}
			return b.ForEach(func(_, v []byte) error {
				var op types.Operation
				if err := json.Unmarshal(v, &op); err != nil {
					return err
				}
				stats.Total++
				stats.ByBackend[op.Backend]++
				switch op.Status {
				case types.StatusPending:
					stats.Pending++
				case types.StatusProcessing:
					stats.Processing++
					stats.ProcessingActive = true
				case types.StatusCompleted:
					stats.Completed++
				case types.StatusFailed:
					stats.Failed++
				case types.StatusRetrying:
					stats.Retrying++
				}
				return nil
			})
		})
	}

	s.mu.RLock()
	currentPath := s.currentPath
	err := tally(s.currentDB)
	s.mu.RUnlock()
	if err != nil {
		return Statistics{}, err
	}

	names, err := listPartitions(partitionsDir(s.base))
	if err != nil {
		return Statistics{}, err
	}
	stats.Partitions = len(names)
	for _, name := range names {
		path := filepath.Join(partitionsDir(s.base), name)
		if path == currentPath {
			continue
		}
		db, err := openPartitionReadOnly(path)
		if err != nil {
			return Statistics{}, err
		}
		err = tally(db)
		closeErr := db.Close()
		if err != nil {
			return Statistics{}, err
		}
		if closeErr != nil {
			return Statistics{}, closeErr
		}
	}

	archives, err := listArchives(archivesDir(s.base))
	if err != nil {
		return Statistics{}, err
	}
	stats.Archives = len(archives)
	for _, name := range archives {
		path := filepath.Join(archivesDir(s.base), name)
		db, err := openPartitionReadOnly(path)
		if err != nil {
			return Statistics{}, err
		}
		err = tally(db)
		closeErr := db.Close()
		if err != nil {
			return Statistics{}, err
		}
		if closeErr != nil {
			return Statistics{}, closeErr
		}
	}

	return stats, nil
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	RemovedCount int
	RemovedFiles []string
}

// Cleanup deletes archive files whose embedded date is older than
// now - maxAgeDays.
func (s *Store) Cleanup(maxAgeDays int) (CleanupResult, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	archives, err := listArchives(archivesDir(s.base))
	if err != nil {
		return CleanupResult{}, err
	}

	var result CleanupResult
	for _, name := range archives {
		day, ok := archiveDate(name)
		if !ok || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(archivesDir(s.base), name)
		if err := removeFile(path); err != nil {
			return result, err
		}
		result.RemovedCount++
		result.RemovedFiles = append(result.RemovedFiles, name)
	}
	return result, nil
}

// Close flushes and releases the current partition's file handle. Close
// is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.currentDB != nil {
		return s.currentDB.Close()
	}
	return nil
}
