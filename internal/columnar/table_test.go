package columnar

import "testing"

func sampleTable() *Table {
	return &Table{
		NumRows: 3,
		Columns: []Column{
			{Name: "id", Type: TypeInt64, Ints: []int64{1, 2, 3}},
			{Name: "region", Type: TypeString, Strings: []string{"us", "eu", "us"}},
			{Name: "score", Type: TypeFloat, Floats: []float64{1.5, 2.5, 3.5}},
		},
	}
}

func TestTableValidate(t *testing.T) {
	tb := sampleTable()
	if err := tb.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := sampleTable()
	bad.Columns[0].Ints = bad.Columns[0].Ints[:2]
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for mismatched column length")
	}
}

func TestSchemaFingerprintStable(t *testing.T) {
	a := sampleTable()
	b := sampleTable()
	b.Columns[0].Ints = []int64{9, 9, 9} // different data, same schema
	if a.SchemaFingerprint() != b.SchemaFingerprint() {
		t.Fatal("schema fingerprint should be independent of row data")
	}

	c := sampleTable()
	c.Columns[0].Name = "identifier"
	if a.SchemaFingerprint() == c.SchemaFingerprint() {
		t.Fatal("schema fingerprint should change when a column is renamed")
	}
}

func TestProject(t *testing.T) {
	tb := sampleTable()
	out, err := tb.Project([]string{"region"})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(out.Columns) != 1 || out.Columns[0].Name != "region" {
		t.Fatalf("unexpected projection result: %+v", out.Columns)
	}

	if _, err := tb.Project([]string{"nope"}); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestApplyFilter(t *testing.T) {
	tb := sampleTable()
	out, err := tb.Apply([]Filter{{Column: "region", Op: OpEQ, Value: "us"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.NumRows != 2 {
		t.Fatalf("expected 2 rows, got %d", out.NumRows)
	}
	for _, v := range out.Columns[1].Strings {
		if v != "us" {
			t.Fatalf("filter leaked non-matching row: %q", v)
		}
	}
}

func TestSortedPartitionKeysDeterministic(t *testing.T) {
	tb := sampleTable()
	keys1, _, err := sortedPartitionKeys(tb, []string{"region"})
	if err != nil {
		t.Fatalf("sortedPartitionKeys: %v", err)
	}
	keys2, _, err := sortedPartitionKeys(tb, []string{"region"})
	if err != nil {
		t.Fatalf("sortedPartitionKeys: %v", err)
	}
	if len(keys1) != len(keys2) {
		t.Fatalf("key count mismatch: %v vs %v", keys1, keys2)
	}
	for i := range keys1 {
		if keys1[i] != keys2[i] {
			t.Fatalf("partition key order not deterministic: %v vs %v", keys1, keys2)
		}
	}
}
