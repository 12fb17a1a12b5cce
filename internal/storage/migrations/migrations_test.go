package migrations

import (
	"strings"
	"testing"
)

func TestStatements(t *testing.T) {
	input := `
-- header comment
CREATE VIEW a AS SELECT 1; -- trailing

CREATE VIEW b AS
    SELECT 'x;y' AS s, 'it''s' AS q;
`
	stmts, err := statements(input)
	if err != nil {
		t.Fatalf("statements: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE VIEW a AS SELECT 1" {
		t.Errorf("first statement = %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "'x;y'") || !strings.Contains(stmts[1], "'it''s'") {
		t.Errorf("literals not preserved: %q", stmts[1])
	}
}

func TestStatements_UnterminatedLiteral(t *testing.T) {
	if _, err := statements(`SELECT 'open`); err == nil {
		t.Error("expected error for unterminated literal")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []string{"clickhouse", "postgres"} {
		fsys := PostgresFS
		if dir == "clickhouse" {
			fsys = ClickhouseFS
		}
		files, err := load(fsys, dir)
		if err != nil {
			t.Fatalf("load(%s): %v", dir, err)
		}
		if len(files) == 0 {
			t.Fatalf("no %s migrations embedded", dir)
		}
		for i := 1; i < len(files); i++ {
			if files[i-1].name >= files[i].name {
				t.Errorf("%s migrations out of order: %s before %s", dir, files[i-1].name, files[i].name)
			}
		}
		if dir != "clickhouse" {
			continue
		}
		for _, m := range files {
			stmts, err := statements(m.sql)
			if err != nil {
				t.Errorf("%s: %v", m.name, err)
			}
			if len(stmts) == 0 {
				t.Errorf("%s: no statements", m.name)
			}
		}
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{"clickhouse://default:@localhost:9000/solana", "solana", false},
		{"clickhouse://localhost:9000", "", true},
		{"clickhouse://localhost:9000/bad-name", "", true},
	}
	for _, tt := range tests {
		got, err := databaseFromDSN(tt.dsn)
		if (err != nil) != tt.wantErr {
			t.Errorf("databaseFromDSN(%q) err = %v, wantErr %v", tt.dsn, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("databaseFromDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
