package vfs

import (
	"encoding/json"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/cuemby/wal-cas/internal/columnar"
)

func newTestFS(t *testing.T) (*FS, *columnar.Bridge, string) {
	t.Helper()
	base := t.TempDir()
	bridge, err := columnar.NewBridge(columnar.Config{
		BaseDir:     filepath.Join(base, "partitions"),
		MetadataDir: filepath.Join(base, "metadata"),
		Compression: columnar.CodecNone,
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	t.Cleanup(func() { _ = bridge.Close() })

	vfs, err := NewFS(Config{Bridge: bridge, QueriesDir: filepath.Join(base, "queries")})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	t.Cleanup(func() { _ = vfs.Close() })
	return vfs, bridge, base
}

func sampleTable() *columnar.Table {
	return &columnar.Table{
		NumRows: 3,
		Columns: []columnar.Column{
			{Name: "id", Type: columnar.TypeInt64, Ints: []int64{1, 2, 3}},
		},
	}
}

func TestVFSListDatasetsAfterStore(t *testing.T) {
	vfs, bridge, _ := newTestFS(t)
	res, err := bridge.Store(sampleTable(), "events", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	entries, err := vfs.Ls("/datasets", true)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name == res.CID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in /datasets listing, got %+v", res.CID, entries)
	}
}

func TestVFSCatMetadataFile(t *testing.T) {
	vfs, bridge, _ := newTestFS(t)
	res, err := bridge.Store(sampleTable(), "events", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	data, err := vfs.CatFile("/metadata/"+res.CID+".json", 0, 0)
	if err != nil {
		t.Fatalf("CatFile: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}
	if parsed["cid"] != res.CID {
		t.Fatalf("sidecar cid mismatch: %+v", parsed)
	}
}

func TestVFSOpenQueryForWriteFails(t *testing.T) {
	vfs, _, _ := newTestFS(t)
	_, err := vfs.OpenPath("/queries/abc.json", "w")
	if err == nil {
		t.Fatal("expected write open to fail")
	}
}

func TestVFSExists(t *testing.T) {
	vfs, bridge, _ := newTestFS(t)
	res, err := bridge.Store(sampleTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !vfs.Exists("/datasets/" + res.CID) {
		t.Fatal("expected dataset path to exist")
	}
	if vfs.Exists("/datasets/does-not-exist") {
		t.Fatal("expected unknown dataset path to not exist")
	}
}

func TestVFSRangeRead(t *testing.T) {
	vfs, bridge, _ := newTestFS(t)
	res, err := bridge.Store(sampleTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	full, err := vfs.CatFile("/datasets/"+res.CID, 0, 0)
	if err != nil {
		t.Fatalf("CatFile full: %v", err)
	}
	partial, err := vfs.CatFile("/datasets/"+res.CID, 0, 4)
	if err != nil {
		t.Fatalf("CatFile partial: %v", err)
	}
	if len(partial) != 4 {
		t.Fatalf("expected 4-byte range read, got %d", len(partial))
	}
	if string(full[:4]) != string(partial) {
		t.Fatalf("range read did not match prefix of full read")
	}
}

func TestVFSImplementsIOFS(t *testing.T) {
	vfs, _, _ := newTestFS(t)
	var _ fs.FS = vfs
	var _ fs.ReadDirFS = vfs
	var _ fs.StatFS = vfs
}

func TestVFSCacheQueryResult(t *testing.T) {
	vfs, _, _ := newTestFS(t)
	if err := vfs.CacheQueryResult("h1", "json", []byte(`{"rows":[]}`)); err != nil {
		t.Fatalf("CacheQueryResult: %v", err)
	}
	entries, err := vfs.Ls("/queries", false)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "h1.json" {
		t.Fatalf("expected cached query listed, got %+v", entries)
	}
}
