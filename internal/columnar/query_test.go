package columnar

import "testing"

func TestQuerySelectProjectionAndFilter(t *testing.T) {
	b := newTestBridge(t)
	res, err := b.Store(hundredRowTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, err := b.Query("SELECT region FROM e WHERE region = 'us'", map[string]string{"e": res.CID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out.Columns) != 1 || out.Columns[0].Name != "region" {
		t.Fatalf("unexpected query columns: %+v", out.Columns)
	}
	for _, v := range out.Columns[0].Strings {
		if v != "us" {
			t.Fatalf("query WHERE clause leaked a non-matching row: %q", v)
		}
	}
}

func TestQuerySelectStar(t *testing.T) {
	b := newTestBridge(t)
	res, err := b.Store(hundredRowTable(), "events", nil, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, err := b.Query("SELECT * FROM e", map[string]string{"e": res.CID})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out.Columns) != 2 {
		t.Fatalf("expected all columns, got %d", len(out.Columns))
	}
}

func TestQueryUnknownAlias(t *testing.T) {
	b := newTestBridge(t)
	if _, err := b.Query("SELECT id FROM missing", nil); err == nil {
		t.Fatal("expected error for unknown alias")
	}
}

func TestParseQueryRejectsMalformedSQL(t *testing.T) {
	if _, err := parseQuery("UPDATE t SET x = 1"); err == nil {
		t.Fatal("expected parse error for non-SELECT statement")
	}
}
