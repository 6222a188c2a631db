package discovery

import (
	"encoding/json"
	"sort"
	"testing"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var body interface{}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("bad test JSON: %v", err)
	}
	return body
}

func TestExtractRecordsPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{
			name:    "bare array",
			body:    `[{"id":"A"},{"id":"B"}]`,
			wantIDs: []string{"A", "B"},
		},
		{
			name:    "data object with items",
			body:    `{"data":{"items":[{"id":"X"}],"total":1}}`,
			wantIDs: []string{"X"},
		},
		{
			name:    "data array",
			body:    `{"data":[{"id":"ABC123"}]}`,
			wantIDs: []string{"ABC123"},
		},
		{
			name:    "items array",
			body:    `{"items":[{"id":"I1"}]}`,
			wantIDs: []string{"I1"},
		},
		{
			name:    "results array",
			body:    `{"results":[{"id":"R1"}]}`,
			wantIDs: []string{"R1"},
		},
		{
			name:    "string array",
			body:    `["one","two"]`,
			wantIDs: []string{"one", "two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := ExtractRecords(decode(t, tt.body))
			if len(records) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d: %v", len(records), len(tt.wantIDs), records)
			}
			for i, want := range tt.wantIDs {
				if got := StringField(records[i], "id"); got != want {
					t.Errorf("record %d id = %q, want %q", i, got, want)
				}
			}
		})
	}
}

// A wrapper key must never be mistaken for a resource record.
func TestExtractRecordsNeverYieldsWrapperKey(t *testing.T) {
	records := ExtractRecords(decode(t, `{"data":[{"id":"ABC123"}]}`))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if name := StringField(records[0], "name"); name == "data" {
		t.Fatal("wrapper key extracted as a record")
	}
	if id := StringField(records[0], "id"); id != "ABC123" {
		t.Errorf("id = %q, want ABC123", id)
	}
}

func TestExtractRecordsKeysAsRecords(t *testing.T) {
	records := ExtractRecords(decode(t, `{"id1":{},"id2":{}}`))
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	names := []string{StringField(records[0], "name"), StringField(records[1], "name")}
	sort.Strings(names)
	if names[0] != "id1" || names[1] != "id2" {
		t.Errorf("names = %v, want [id1 id2]", names)
	}
}

// Keys-as-records output is ordered, so a sample-capped cache holds the
// same subset on every run.
func TestExtractRecordsKeysAsRecordsOrdered(t *testing.T) {
	body := `{"zeta":{},"alpha":{},"mid":{}}`
	want := []string{"alpha", "mid", "zeta"}
	for i := 0; i < 5; i++ {
		records := ExtractRecords(decode(t, body))
		if len(records) != len(want) {
			t.Fatalf("got %d records, want %d", len(records), len(want))
		}
		for j, name := range want {
			if got := StringField(records[j], "name"); got != name {
				t.Fatalf("record %d name = %q, want %q", j, got, name)
			}
		}
	}
}

func TestExtractRecordsKeysFallbackSkipsWrapperKeys(t *testing.T) {
	body := `{"_links":{"self":"/x"},"payload":{},"SF001":{"rows":3}}`
	records := ExtractRecords(decode(t, body))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %v", len(records), records)
	}
	if name := StringField(records[0], "name"); name != "SF001" {
		t.Errorf("name = %q, want SF001", name)
	}
	if rows := records[0]["rows"]; rows != float64(3) {
		t.Errorf("value fields not carried over: %v", records[0])
	}
}

func TestExtractRecordsScalarBody(t *testing.T) {
	if got := ExtractRecords(decode(t, `"just a string"`)); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := ExtractRecords(nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestStringFieldNumeric(t *testing.T) {
	rec := map[string]interface{}{"id": float64(42), "ratio": 1.5}
	if got := StringField(rec, "id"); got != "42" {
		t.Errorf("id = %q, want 42", got)
	}
	if got := StringField(rec, "ratio"); got != "" {
		t.Errorf("ratio = %q, want empty", got)
	}
	if got := StringField(rec, "missing"); got != "" {
		t.Errorf("missing = %q, want empty", got)
	}
}
