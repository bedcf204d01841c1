package pgtest

import "testing"

func TestSplitSQL(t *testing.T) {
	in := stripSQLComments(`
-- header
CREATE TABLE a (id INT);

  -- indented comment
CREATE INDEX a_idx ON a (id);
`)
	got := splitSQL(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "CREATE INDEX a_idx ON a (id)" {
		t.Errorf("unexpected statement %q", got[1])
	}
}

func TestRepoRoot(t *testing.T) {
	if _, err := repoRoot(); err != nil {
		t.Fatalf("repo root: %v", err)
	}
}
