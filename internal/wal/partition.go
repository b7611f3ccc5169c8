package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketOperations = []byte("operations")

var partitionNameRE = regexp.MustCompile(`^wal_(\d+)_(\d+)\.db$`)
var archiveNameRE = regexp.MustCompile(`^archive_(\d{8})\.db$`)

// partitionName builds a deterministic, timestamp- and counter-ordered
// partition file name.
func partitionName(ts time.Time, counter uint64) string {
	return fmt.Sprintf("wal_%d_%d.db", ts.UnixNano(), counter)
}

// archiveName builds the date-bucketed archive file name for day.
func archiveName(day time.Time) string {
	return fmt.Sprintf("archive_%s.db", day.UTC().Format("20060102"))
}

// archiveDate parses the date encoded in an archive file name.
func archiveDate(name string) (time.Time, bool) {
	m := archiveNameRE.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// listPartitions returns partition file names sorted oldest-first. Name
// ordering reflects creation order because the embedded unix-nano
// timestamp dominates the lexicographic comparison once zero-padded
// numeric sort is applied.
func listPartitions(dir string) ([]string, error) {
	return listMatching(dir, partitionNameRE)
}

func listArchives(dir string) ([]string, error) {
	return listMatching(dir, archiveNameRE)
}

func listMatching(dir string, re *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return partitionSortKey(names[i]) < partitionSortKey(names[j])
	})
	return names, nil
}

// partitionSortKey extracts (timestamp, counter) as a sortable composite.
// Archive names sort by their embedded date alone.
func partitionSortKey(name string) string {
	if m := partitionNameRE.FindStringSubmatch(name); m != nil {
		ts, _ := strconv.ParseUint(m[1], 10, 64)
		ctr, _ := strconv.ParseUint(m[2], 10, 64)
		return fmt.Sprintf("%020d_%020d", ts, ctr)
	}
	return name
}

// openPartitionReadOnly opens a partition/archive file read-only for a
// single scan and must be closed by the caller.
func openPartitionReadOnly(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening partition %s: %w", path, err)
	}
	return db, nil
}

// createPartition creates a fresh writable partition file with its
// operations bucket.
func createPartition(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("creating partition %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOperations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing partition %s: %w", path, err)
	}
	return db, nil
}

// consistencyCheck verifies path opens cleanly and has the expected
// bucket; a partial/corrupt partition from a crashed append fails this
// check and is discarded at startup.
func consistencyCheck(path string) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketOperations) == nil {
			return fmt.Errorf("missing operations bucket")
		}
		return nil
	})
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func partitionsDir(base string) string { return filepath.Join(base, "partitions") }
func archivesDir(base string) string   { return filepath.Join(base, "archives") }
