package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/wal-cas/internal/columnar"
	"github.com/cuemby/wal-cas/internal/errs"
	"github.com/cuemby/wal-cas/internal/obslog"
)

const (
	dirDatasets = "datasets"
	dirMetadata = "metadata"
	dirQueries  = "queries"
)

// Config configures a FS.
type Config struct {
	Bridge     *columnar.Bridge
	QueriesDir string // optional cached query result directory
}

// FS presents the Columnar Bridge's holdings as a read-only filesystem.
// It implements fs.FS, fs.ReadDirFS, and fs.StatFS.
type FS struct {
	bridge     *columnar.Bridge
	queriesDir string
	logger     zerolog.Logger

	mu       sync.RWMutex
	listings map[string][]string // "datasets" | "metadata" | "queries" -> cached names
	watcher  *watcher
}

var (
	_ fs.FS        = (*FS)(nil)
	_ fs.ReadDirFS = (*FS)(nil)
	_ fs.StatFS    = (*FS)(nil)
)

// NewFS builds a FS over the given Bridge. Queries cache directory is
// created if absent.
func NewFS(cfg Config) (*FS, error) {
	if cfg.Bridge == nil {
		return nil, errs.Newf(errs.InvalidArgument, "vfs: Bridge is required")
	}
	if cfg.QueriesDir != "" {
		if err := os.MkdirAll(cfg.QueriesDir, 0o755); err != nil {
			return nil, errs.New(errs.ExecutionError, err)
		}
	}
	f := &FS{
		bridge:     cfg.Bridge,
		queriesDir: cfg.QueriesDir,
		logger:     obslog.WithComponent("vfs"),
		listings:   make(map[string][]string),
	}
	watchDirs := []string{cfg.Bridge.MetadataDir()}
	if cfg.QueriesDir != "" {
		watchDirs = append(watchDirs, cfg.QueriesDir)
	}
	w, err := newWatcher(watchDirs, f.invalidateAll)
	if err != nil {
		f.logger.Warn().Err(err).Msg("fsnotify watch unavailable, falling back to per-call refresh")
	} else {
		f.watcher = w
	}
	return f, nil
}

// Close releases the facade's fsnotify watch, if any. Idempotent.
func (f *FS) Close() error {
	if f.watcher != nil {
		f.watcher.close()
	}
	return nil
}

func (f *FS) invalidateAll() {
	f.mu.Lock()
	f.listings = make(map[string][]string)
	f.mu.Unlock()
}

func (f *FS) datasetNames() []string {
	f.mu.RLock()
	if names, ok := f.listings[dirDatasets]; ok && f.watcher != nil {
		f.mu.RUnlock()
		return names
	}
	f.mu.RUnlock()

	datasets, err := f.bridge.ListDatasets()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(datasets))
	for _, d := range datasets {
		names = append(names, d.CID)
	}
	sort.Strings(names)

	f.mu.Lock()
	f.listings[dirDatasets] = names
	f.listings[dirMetadata] = names
	f.mu.Unlock()
	return names
}

func (f *FS) queryNames() []string {
	f.mu.RLock()
	if names, ok := f.listings[dirQueries]; ok && f.watcher != nil {
		f.mu.RUnlock()
		return names
	}
	f.mu.RUnlock()

	var names []string
	if f.queriesDir != "" {
		entries, err := os.ReadDir(f.queriesDir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					names = append(names, e.Name())
				}
			}
		}
	}
	sort.Strings(names)

	f.mu.Lock()
	f.listings[dirQueries] = names
	f.mu.Unlock()
	return names
}

// Open implements fs.FS. name follows fs.ValidPath convention: no leading
// slash, "." for the root.
func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		entries := []fs.DirEntry{
			dirEntry{fileInfo{name: dirDatasets, isDir: true}},
			dirEntry{fileInfo{name: dirMetadata, isDir: true}},
			dirEntry{fileInfo{name: dirQueries, isDir: true}},
		}
		return newDirFile(".", entries), nil
	}

	top, rest, hasRest := cutPath(name)
	switch top {
	case dirDatasets:
		if !hasRest {
			return f.openDatasetsDir()
		}
		return f.openDataset(rest)
	case dirMetadata:
		if !hasRest {
			return f.openMetadataDir()
		}
		return f.openMetadata(rest)
	case dirQueries:
		if !hasRest {
			return f.openQueriesDir()
		}
		return f.openQuery(rest)
	default:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
}

func cutPath(name string) (top, rest string, hasRest bool) {
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return name, "", false
	}
	return name[:i], name[i+1:], true
}

func (f *FS) openDatasetsDir() (fs.File, error) {
	var entries []fs.DirEntry
	for _, cid := range f.datasetNames() {
		entries = append(entries, dirEntry{fileInfo{name: cid}})
	}
	return newDirFile(dirDatasets, entries), nil
}

func (f *FS) openDataset(cid string) (fs.File, error) {
	if strings.Contains(cid, "/") {
		return nil, &fs.PathError{Op: "open", Path: cid, Err: fs.ErrNotExist}
	}
	data, err := f.bridge.MaterializeSingleFile(cid)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: cid, Err: fs.ErrNotExist}
	}
	return newByteFile(cid, data), nil
}

func (f *FS) openMetadataDir() (fs.File, error) {
	var entries []fs.DirEntry
	for _, cid := range f.datasetNames() {
		entries = append(entries, dirEntry{fileInfo{name: cid + ".json"}})
	}
	return newDirFile(dirMetadata, entries), nil
}

func (f *FS) openMetadata(fname string) (fs.File, error) {
	cid := strings.TrimSuffix(fname, ".json")
	if cid == fname || strings.Contains(cid, "/") {
		return nil, &fs.PathError{Op: "open", Path: fname, Err: fs.ErrNotExist}
	}
	data, err := os.ReadFile(f.bridge.SidecarPath(cid))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: fname, Err: fs.ErrNotExist}
	}
	return newByteFile(fname, data), nil
}

func (f *FS) openQueriesDir() (fs.File, error) {
	var entries []fs.DirEntry
	for _, name := range f.queryNames() {
		entries = append(entries, dirEntry{fileInfo{name: name}})
	}
	return newDirFile(dirQueries, entries), nil
}

func (f *FS) openQuery(fname string) (fs.File, error) {
	if f.queriesDir == "" || strings.Contains(fname, "/") {
		return nil, &fs.PathError{Op: "open", Path: fname, Err: fs.ErrNotExist}
	}
	data, err := os.ReadFile(filepath.Join(f.queriesDir, fname))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: fname, Err: fs.ErrNotExist}
	}
	return newByteFile(fname, data), nil
}

// ReadDir implements fs.ReadDirFS.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	rdf, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return rdf.ReadDir(-1)
}

// Stat implements fs.StatFS.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.Stat()
}

// EntryInfo is the result of Ls/Info: a directory entry or file's name,
// size, directory flag, and modification time.
type EntryInfo struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// normalize strips a leading "/" (callers write paths as "/datasets",
// fs.FS paths have no leading slash) and maps "/" itself to ".".
func normalize(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		path = "."
	}
	return path
}

// Ls lists a directory's entries. Size and ModTime are filled in only
// when detail is true; otherwise each EntryInfo carries just Name and
// IsDir.
func (f *FS) Ls(path string, detail bool) ([]EntryInfo, error) {
	entries, err := f.ReadDir(normalize(path))
	if err != nil {
		return nil, errs.New(errs.NotFound, err)
	}
	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		ei := EntryInfo{Name: e.Name(), IsDir: e.IsDir()}
		if detail {
			ei.Size = info.Size()
			ei.ModTime = info.ModTime()
		}
		out = append(out, ei)
	}
	return out, nil
}

// Info returns the EntryInfo for a single path.
func (f *FS) Info(path string) (EntryInfo, error) {
	fi, err := f.Stat(normalize(path))
	if err != nil {
		return EntryInfo{}, errs.New(errs.NotFound, err)
	}
	return EntryInfo{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}

// Exists reports whether path resolves to an entry.
func (f *FS) Exists(path string) bool {
	_, err := f.Stat(normalize(path))
	return err == nil
}

// OpenPath opens a path under an explicit mode: "r" delegates to the
// fs.FS Open; any write mode fails with ErrNotSupported, since every
// operation the facade exposes is read-only.
func (f *FS) OpenPath(path, mode string) (fs.File, error) {
	if mode != "" && mode != "r" {
		return nil, errs.New(errs.InvalidArgument, ErrNotSupported)
	}
	return f.Open(normalize(path))
}

// CatFile reads a file's contents, honoring optional byte-range offsets
// clamped to the artifact length.
func (f *FS) CatFile(path string, start, end int64) ([]byte, error) {
	file, err := f.Open(normalize(path))
	if err != nil {
		return nil, errs.New(errs.NotFound, err)
	}
	defer file.Close()

	bf, ok := file.(*byteFile)
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "%s is not a readable file", path)
	}
	data := bf.reader

	size := data.Size()
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > size {
		end = size
	}
	if start > size {
		start = size
	}
	if start > end {
		start = end
	}
	buf := make([]byte, end-start)
	if _, err := data.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, errs.New(errs.ExecutionError, err)
	}
	return buf, nil
}

// CacheQueryResult writes a previously computed query result under
// /queries/<hash>.<ext>. This is the one write path the module exposes,
// and it is deliberately NOT reachable through Open/OpenPath: callers
// populate the cache through this method, never through the read-only
// facade surface.
func (f *FS) CacheQueryResult(hash, ext string, data []byte) error {
	if f.queriesDir == "" {
		return errs.Newf(errs.InvalidArgument, "vfs: no queries directory configured")
	}
	path := filepath.Join(f.queriesDir, hash+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	f.invalidateAll()
	return nil
}
