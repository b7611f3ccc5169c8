package columnar

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cuemby/wal-cas/internal/errs"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	base := t.TempDir()
	b, err := NewBridge(Config{
		BaseDir:     filepath.Join(base, "partitions"),
		MetadataDir: filepath.Join(base, "metadata"),
		Compression: CodecGzip,
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func hundredRowTable() *Table {
	ids := make([]int64, 100)
	regions := make([]string, 100)
	for i := range ids {
		ids[i] = int64(i)
		if i%2 == 0 {
			regions[i] = "us"
		} else {
			regions[i] = "eu"
		}
	}
	return &Table{
		NumRows: 100,
		Columns: []Column{
			{Name: "id", Type: TypeInt64, Ints: ids},
			{Name: "region", Type: TypeString, Strings: regions},
		},
	}
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	b := newTestBridge(t)
	tb := hundredRowTable()

	res, err := b.Store(tb, "events", map[string]string{"k": "v"}, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.RowCount != 100 {
		t.Fatalf("expected 100 rows, got %d", res.RowCount)
	}

	got, err := b.Retrieve(res.CID, nil, nil, true)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.Table.NumRows != 100 {
		t.Fatalf("round trip row count mismatch: got %d", got.Table.NumRows)
	}
	if got.Metadata.Metadata["k"] != "v" {
		t.Fatalf("sidecar metadata not preserved: %+v", got.Metadata.Metadata)
	}
	if diff := cmp.Diff(tb.Columns, got.Table.Columns); diff != "" {
		t.Fatalf("round-tripped columns differ from input (-want +got):\n%s", diff)
	}
}

func TestStoreDeterministicCID(t *testing.T) {
	b := newTestBridge(t)
	tb := hundredRowTable()
	meta := map[string]string{"k": "v"}

	r1, err := b.Store(tb, "events", meta, nil)
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	r2, err := b.Store(hundredRowTable(), "events", meta, nil)
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	if r1.CID != r2.CID {
		t.Fatalf("storing the same table twice produced different CIDs: %s vs %s", r1.CID, r2.CID)
	}
}

func TestStorePartitionedRoundTrip(t *testing.T) {
	b := newTestBridge(t)
	tb := hundredRowTable()

	res, err := b.Store(tb, "events-part", nil, []string{"region"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !res.Partitioned {
		t.Fatal("expected partitioned artifact")
	}

	got, err := b.Retrieve(res.CID, nil, nil, false)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got.Table.NumRows != 100 {
		t.Fatalf("expected 100 rows across partitions, got %d", got.Table.NumRows)
	}
}

func TestRetrieveProjection(t *testing.T) {
	b := newTestBridge(t)
	tb := hundredRowTable()
	res, err := b.Store(tb, "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := b.Retrieve(res.CID, []string{"region"}, nil, true)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got.Table.Columns) != 1 || got.Table.Columns[0].Name != "region" {
		t.Fatalf("unexpected projected columns: %+v", got.Table.Columns)
	}
}

func TestDeleteThenRetrieveNotFound(t *testing.T) {
	b := newTestBridge(t)
	res, err := b.Store(hundredRowTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := b.Delete(res.CID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err = b.Retrieve(res.CID, nil, nil, false)
	if errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
}

func TestListDatasets(t *testing.T) {
	b := newTestBridge(t)
	if _, err := b.Store(hundredRowTable(), "a", nil, nil); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	tb2 := hundredRowTable()
	tb2.Columns[0].Name = "identifier"
	if _, err := b.Store(tb2, "b", nil, nil); err != nil {
		t.Fatalf("Store b: %v", err)
	}

	datasets, err := b.ListDatasets()
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(datasets))
	}
}

func TestBridgeReopenRehydratesFromSidecars(t *testing.T) {
	base := t.TempDir()
	cfg := Config{
		BaseDir:     filepath.Join(base, "partitions"),
		MetadataDir: filepath.Join(base, "metadata"),
		Compression: CodecNone,
	}
	b1, err := NewBridge(cfg)
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}
	res, err := b1.Store(hundredRowTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := b1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := NewBridge(cfg)
	if err != nil {
		t.Fatalf("reopen NewBridge: %v", err)
	}
	t.Cleanup(func() { _ = b2.Close() })

	got, err := b2.Retrieve(res.CID, nil, nil, false)
	if err != nil {
		t.Fatalf("Retrieve after reopen: %v", err)
	}
	if got.Table.NumRows != 100 {
		t.Fatalf("expected 100 rows after reopen, got %d", got.Table.NumRows)
	}
}
