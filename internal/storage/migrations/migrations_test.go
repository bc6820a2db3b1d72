package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	input := `
-- comment; with semicolon
CREATE TABLE a (x Int64) ENGINE = MergeTree() ORDER BY x;

CREATE TABLE b (y String DEFAULT 'a;b') -- trailing; comment
ENGINE = MergeTree() ORDER BY y;
INSERT INTO b VALUES ('it''s; fine')
`
	stmts := statements(input)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x Int64) ENGINE = MergeTree() ORDER BY x", stmts[0])
	assert.Contains(t, stmts[1], "DEFAULT 'a;b'")
	assert.Contains(t, stmts[1], "ENGINE = MergeTree() ORDER BY y")
	assert.NotContains(t, stmts[1], "trailing")
	assert.Equal(t, "INSERT INTO b VALUES ('it''s; fine')", stmts[2])
}

func TestStatements_Empty(t *testing.T) {
	assert.Empty(t, statements("-- nothing here\n\n  ;\n"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/autotrade")
	require.NoError(t, err)
	assert.Equal(t, "autotrade", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	names := func(ms []migration) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			assert.NotEmpty(t, m.sql, m.name)
			out = append(out, m.name)
		}
		return out
	}

	pg, err := load(postgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_agents.sql", "002_positions.sql", "003_idempotency.sql"}, names(pg))

	ch, err := load(clickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_trigger_decisions.sql"}, names(ch))
}
