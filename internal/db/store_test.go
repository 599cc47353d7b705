package db

import (
	"strings"
	"testing"
)

func TestSavedGrantsQuery_OrdersBySimilarityWhenEmbeddingGiven(t *testing.T) {
	q := savedGrantsQuery(true)

	mustContain := []string{
		"1 - (embedding <=> $3::vector)",
		"vector_dims(embedding) = vector_dims($3::vector)",
		"ORDER BY similarity DESC NULLS LAST, saved_at DESC",
		"WHERE client_id = $1 AND user_id = $2",
	}
	for _, token := range mustContain {
		if !strings.Contains(q, token) {
			t.Fatalf("query missing token %q: %s", token, q)
		}
	}
}

func TestSavedGrantsQuery_NewestFirstWithoutEmbedding(t *testing.T) {
	q := savedGrantsQuery(false)

	if strings.Contains(q, "$3") {
		t.Fatalf("query must not reference an embedding argument: %s", q)
	}
	if !strings.Contains(q, "ORDER BY saved_at DESC") {
		t.Fatalf("expected newest-first ordering: %s", q)
	}
	if !strings.Contains(q, "NULL::float8 AS similarity") {
		t.Fatalf("expected a null similarity column so both variants scan alike: %s", q)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 20}, {-5, 20}, {10, 10}, {200, 200}, {1000, 200},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.in, 20, 200); got != tc.want {
			t.Fatalf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeStringSlice(t *testing.T) {
	got := sanitizeStringSlice([]string{" health ", "", "  ", "STEM"})
	if len(got) != 2 || got[0] != "health" || got[1] != "STEM" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if got := sanitizeStringSlice(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestMigrationFiles_CreateExpectedTables(t *testing.T) {
	files, err := MigrationFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("unexpected migration files: %v", files)
	}

	var all strings.Builder
	for _, f := range files {
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			t.Fatal(err)
		}
		all.Write(content)
	}
	for _, table := range ExpectedTables {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("migrations do not create table %s", table)
		}
	}
}
