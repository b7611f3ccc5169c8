package columnar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/obslog"
	"github.com/cuemby/wal-cas/internal/types"
)

// WALAppender lets the Bridge optionally log a store operation through
// the Write-Ahead Log. Satisfied by *wal.Store.
type WALAppender interface {
	Append(op *types.Operation) error
}

// ReplicationNotifier is notified after a dataset is durably stored, so a
// replication manager can copy the artifact to other nodes or backends.
type ReplicationNotifier interface {
	NotifyStored(artifact types.DatasetArtifact)
}

// Config configures a Bridge.
type Config struct {
	BaseDir           string // <parquet_base>/partitions
	MetadataDir       string // <parquet_base>/metadata
	Compression       Codec
	RowGroupSize      int
	MaxPartitionBytes int64
	CacheSize         int
}

func (c Config) withDefaults() Config {
	if c.Compression == "" {
		c.Compression = CodecZstd
	}
	if c.RowGroupSize <= 0 {
		c.RowGroupSize = 10_000
	}
	if c.MaxPartitionBytes <= 0 {
		c.MaxPartitionBytes = 256 << 20
	}
	return c
}

// record is the sidecar JSON document written to
// <metadata_dir>/<cid>.json: the durable source of truth for a stored
// dataset.
type record struct {
	types.DatasetArtifact
	Path string `json:"path"`
}

// Bridge implements the Content-Addressed Columnar Bridge: it
// persists tabular data as content-addressed columnar artifacts and
// retrieves them with projection and filter pushdown.
type Bridge struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.RWMutex
	cidToPath map[string]string
	pathToCID map[string]string
	metadata  map[string]types.DatasetArtifact

	idx   *diskIndex
	cache *metadataCache

	wal         WALAppender
	replication ReplicationNotifier

	closeOnce sync.Once
}

// Option configures optional Bridge collaborators.
type Option func(*Bridge)

// WithWAL wires a WAL store so every store() call is also logged as an
// Operation.
func WithWAL(w WALAppender) Option {
	return func(b *Bridge) { b.wal = w }
}

// WithReplication wires a replication manager notified after every
// successful store.
func WithReplication(r ReplicationNotifier) Option {
	return func(b *Bridge) { b.replication = r }
}

// NewBridge opens (or creates) a Bridge rooted at cfg.BaseDir/MetadataDir,
// rebuilding its in-process CID<->path index by scanning the sidecar files
// on disk (the source of truth) and writing each mapping into the
// bbolt-backed disk index. The disk index is not read back here.
func NewBridge(cfg Config, opts ...Option) (*Bridge, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	if err := os.MkdirAll(cfg.MetadataDir, 0o755); err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}

	idx, err := openDiskIndex(filepath.Join(cfg.MetadataDir, "index.db"))
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:       cfg,
		logger:    obslog.WithComponent("columnar-bridge"),
		cidToPath: make(map[string]string),
		pathToCID: make(map[string]string),
		metadata:  make(map[string]types.DatasetArtifact),
		idx:       idx,
		cache:     newMetadataCache(cfg.CacheSize),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.reconcileFromSidecars(); err != nil {
		idx.close()
		return nil, err
	}
	return b, nil
}

// reconcileFromSidecars rebuilds the in-process index from every sidecar
// JSON file under MetadataDir, the durable source of truth.
func (b *Bridge) reconcileFromSidecars() error {
	entries, err := os.ReadDir(b.cfg.MetadataDir)
	if err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.cfg.MetadataDir, e.Name()))
		if err != nil {
			b.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable sidecar")
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			b.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping corrupt sidecar")
			continue
		}
		b.cidToPath[rec.CID] = rec.Path
		b.pathToCID[rec.Path] = rec.CID
		b.metadata[rec.CID] = rec.DatasetArtifact
		_ = b.idx.put(rec.CID, rec.Path)
	}
	return nil
}

// StoreResult is the structured outcome of Store.
type StoreResult struct {
	CID         string
	SizeBytes   int64
	RowCount    int64
	ColumnCount int
	Partitioned bool
}

// Store persists table as a content-addressed columnar artifact.
func (b *Bridge) Store(t *Table, name string, metadata map[string]string, partitionCols []string) (StoreResult, error) {
	if err := t.Validate(); err != nil {
		return StoreResult{}, err
	}

	schemaFP := contentDigest(t)
	partitioned := len(partitionCols) > 0

	tmpName := fmt.Sprintf("tmp-%d", time.Now().UnixNano())
	tmpDir := filepath.Join(b.cfg.BaseDir, tmpName)

	var sizeBytes int64
	var err error
	if partitioned {
		sizeBytes, err = b.writePartitioned(tmpDir, t, schemaFP, partitionCols)
	} else {
		sizeBytes, err = b.writeSingle(tmpDir, t, schemaFP)
	}
	if err != nil {
		os.RemoveAll(tmpDir)
		return StoreResult{}, err
	}

	cid := synthesizeCID(schemaFP, b.cfg.Compression, sizeBytes, name)
	finalDir := filepath.Join(b.cfg.BaseDir, cid)

	b.mu.Lock()
	if existingPath, ok := b.cidToPath[cid]; ok {
		b.mu.Unlock()
		os.RemoveAll(tmpDir)
		existing := b.metadataFor(cid)
		b.logger.Debug().Str("cid", cid).Str("path", existingPath).Msg("store: identical artifact already present")
		return StoreResult{
			CID:         cid,
			SizeBytes:   existing.SizeBytes,
			RowCount:    existing.RowCount,
			ColumnCount: existing.ColumnCount,
			Partitioned: existing.Partitioned,
		}, nil
	}
	b.mu.Unlock()

	os.RemoveAll(finalDir)
	if err := os.Rename(tmpDir, finalDir); err != nil {
		os.RemoveAll(tmpDir)
		return StoreResult{}, errs.New(errs.ExecutionError, err)
	}

	artifact := types.DatasetArtifact{
		CID:               cid,
		SchemaFingerprint: schemaFP,
		RowCount:          int64(t.NumRows),
		ColumnCount:       len(t.Columns),
		SizeBytes:         sizeBytes,
		Partitioned:       partitioned,
		PartitionColumns:  partitionCols,
		Compression:       string(b.cfg.Compression),
		Metadata:          metadata,
		Name:              name,
		CreatedAt:         time.Now(),
	}

	if err := b.writeSidecar(cid, finalDir, artifact); err != nil {
		return StoreResult{}, err
	}

	b.mu.Lock()
	b.cidToPath[cid] = finalDir
	b.pathToCID[finalDir] = cid
	b.metadata[cid] = artifact
	b.mu.Unlock()
	b.cache.put(cid, artifact)
	_ = b.idx.put(cid, finalDir)

	if b.wal != nil {
		_ = b.wal.Append(&types.Operation{
			OperationID: fmt.Sprintf("columnar-store-%s", cid),
			Type:        types.OpAdd,
			Backend:     types.BackendLocal,
			Status:      types.StatusCompleted,
			Timestamp:   time.Now(),
			UpdatedAt:   time.Now(),
			Result:      &types.Result{CID: cid, Size: sizeBytes, Destination: finalDir},
			MaxRetries:  0,
		})
	}
	if b.replication != nil {
		b.replication.NotifyStored(artifact)
	}

	b.logger.Info().Str("cid", cid).Int64("rows", artifact.RowCount).Bool("partitioned", partitioned).Msg("dataset stored")
	return StoreResult{
		CID:         cid,
		SizeBytes:   sizeBytes,
		RowCount:    artifact.RowCount,
		ColumnCount: artifact.ColumnCount,
		Partitioned: partitioned,
	}, nil
}

func (b *Bridge) writeSingle(dir string, t *Table, schemaFP string) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errs.New(errs.ExecutionError, err)
	}
	path := filepath.Join(dir, "data.wpq")
	return writeFile(path, t, schemaFP, b.cfg.Compression, b.cfg.RowGroupSize)
}

func (b *Bridge) writePartitioned(dir string, t *Table, schemaFP string, partitionCols []string) (int64, error) {
	keys, groups, err := sortedPartitionKeys(t, partitionCols)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		partDir := filepath.Join(dir, key)
		if err := os.MkdirAll(partDir, 0o755); err != nil {
			return 0, errs.New(errs.ExecutionError, err)
		}
		sub := t.rowsAt(groups[key])
		n, err := writeFile(filepath.Join(partDir, "data.wpq"), sub, schemaFP, b.cfg.Compression, b.cfg.RowGroupSize)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (b *Bridge) writeSidecar(cid, path string, artifact types.DatasetArtifact) error {
	rec := record{DatasetArtifact: artifact, Path: path}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	sidecar := filepath.Join(b.cfg.MetadataDir, cid+".json")
	if err := os.WriteFile(sidecar, data, 0o644); err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	return nil
}

func (b *Bridge) metadataFor(cid string) types.DatasetArtifact {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metadata[cid]
}

// RetrieveResult is the structured outcome of Retrieve.
type RetrieveResult struct {
	Table    *Table
	Metadata types.DatasetArtifact
}

// Retrieve resolves cid to its on-disk artifact and reads it back with
// optional column projection and filter pushdown.
func (b *Bridge) Retrieve(cid string, columns []string, filters []Filter, useCache bool) (RetrieveResult, error) {
	var artifact types.DatasetArtifact
	var ok bool
	if useCache {
		artifact, ok = b.cache.get(cid)
	}
	if !ok {
		b.mu.RLock()
		artifact, ok = b.metadata[cid]
		b.mu.RUnlock()
		if !ok {
			return RetrieveResult{}, errs.Newf(errs.NotFound, "no dataset with cid %s", cid)
		}
		if useCache {
			b.cache.put(cid, artifact)
		}
	}

	b.mu.RLock()
	path, ok := b.cidToPath[cid]
	b.mu.RUnlock()
	if !ok {
		return RetrieveResult{}, errs.Newf(errs.NotFound, "no dataset with cid %s", cid)
	}

	t, err := readTable(path, artifact, columns)
	if err != nil {
		return RetrieveResult{}, err
	}
	t, err = t.Apply(filters)
	if err != nil {
		return RetrieveResult{}, err
	}
	return RetrieveResult{Table: t, Metadata: artifact}, nil
}

// readTable reads every row-group file under path (one file for a
// single-file artifact, or one per partition directory) and concatenates
// them into a single Table.
func readTable(path string, artifact types.DatasetArtifact, columns []string) (*Table, error) {
	if !artifact.Partitioned {
		t, _, err := readFile(filepath.Join(path, "data.wpq"), columns)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	var files []string
	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".wpq" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	sort.Strings(files)

	out := &Table{}
	for _, f := range files {
		t, _, err := readFile(f, columns)
		if err != nil {
			return nil, err
		}
		if len(out.Columns) == 0 {
			out.Columns = t.Columns
			out.NumRows = t.NumRows
			continue
		}
		for i := range out.Columns {
			mergeColumn(&out.Columns[i], t.Columns[i])
		}
		out.NumRows += t.NumRows
	}
	return out, nil
}

func mergeColumn(dst *Column, src Column) {
	switch dst.Type {
	case TypeString:
		dst.Strings = append(dst.Strings, src.Strings...)
	case TypeInt64:
		dst.Ints = append(dst.Ints, src.Ints...)
	case TypeFloat:
		dst.Floats = append(dst.Floats, src.Floats...)
	case TypeBool:
		dst.Bools = append(dst.Bools, src.Bools...)
	}
}

// ListDatasets returns every known dataset's metadata.
func (b *Bridge) ListDatasets() ([]types.DatasetArtifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.DatasetArtifact, 0, len(b.metadata))
	for _, a := range b.metadata {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CID < out[j].CID })
	return out, nil
}

// Delete removes a dataset's files, cache entry, and index entries. It
// does not invalidate copies held by external consumers.
func (b *Bridge) Delete(cid string) error {
	b.mu.Lock()
	path, ok := b.cidToPath[cid]
	if !ok {
		b.mu.Unlock()
		return errs.Newf(errs.NotFound, "no dataset with cid %s", cid)
	}
	delete(b.cidToPath, cid)
	delete(b.pathToCID, path)
	delete(b.metadata, cid)
	b.mu.Unlock()

	b.cache.remove(cid)
	_ = b.idx.delete(cid)

	if err := os.RemoveAll(path); err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	sidecar := filepath.Join(b.cfg.MetadataDir, cid+".json")
	if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
		return errs.New(errs.ExecutionError, err)
	}
	b.logger.Info().Str("cid", cid).Msg("dataset deleted")
	return nil
}

// StorageStats summarizes the Bridge's holdings.
type StorageStats struct {
	DatasetCount   int
	TotalSizeBytes int64
	TotalRows      int64
	CachedEntries  int
}

// GetStorageStats returns aggregate statistics across every stored
// dataset.
func (b *Bridge) GetStorageStats() StorageStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stats := StorageStats{DatasetCount: len(b.metadata), CachedEntries: b.cache.len()}
	for _, a := range b.metadata {
		stats.TotalSizeBytes += a.SizeBytes
		stats.TotalRows += a.RowCount
	}
	return stats
}

// Metadata returns the sidecar record for a CID, used by the VFS facade
// to serve /metadata/<cid>.json without re-deriving it.
func (b *Bridge) Metadata(cid string) (types.DatasetArtifact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.metadata[cid]
	return a, ok
}

// Path returns the on-disk directory backing cid, used by the
// VFS facade to materialize /datasets/<cid>.
func (b *Bridge) Path(cid string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.cidToPath[cid]
	return p, ok
}

// MetadataDir exposes the configured metadata directory, used by the VFS
// facade's fsnotify watch and by ls("/metadata").
func (b *Bridge) MetadataDir() string { return b.cfg.MetadataDir }

// SidecarPath returns the on-disk path of cid's sidecar JSON metadata
// file, used by the VFS facade to serve /metadata/<cid>.json directly
// from the durable source of truth rather than re-deriving it.
func (b *Bridge) SidecarPath(cid string) string {
	return filepath.Join(b.cfg.MetadataDir, cid+".json")
}

// MaterializeSingleFile returns cid's artifact as a single byte sequence,
// the form served at /datasets/<cid> by the VFS facade: if partitioned,
// materialized on the fly as a single-file serialization. A
// non-partitioned artifact's file is read directly; a partitioned one is
// re-encoded into a single temporary .wpq file.
func (b *Bridge) MaterializeSingleFile(cid string) ([]byte, error) {
	artifact, ok := b.Metadata(cid)
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no dataset with cid %s", cid)
	}
	path, ok := b.Path(cid)
	if !ok {
		return nil, errs.Newf(errs.NotFound, "no dataset with cid %s", cid)
	}
	if !artifact.Partitioned {
		data, err := os.ReadFile(filepath.Join(path, "data.wpq"))
		if err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
		return data, nil
	}

	t, err := readTable(path, artifact, nil)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "wal-cas-vfs-*.wpq")
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if _, err := writeFile(tmpPath, t, artifact.SchemaFingerprint, Codec(artifact.Compression), b.cfg.RowGroupSize); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	return data, nil
}

// Close releases the Bridge's disk index handle. Close is idempotent.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() { err = b.idx.close() })
	return err
}
