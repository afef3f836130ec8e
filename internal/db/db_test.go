package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railsense/railsense/internal/config"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "rail", Password: "pw", DBName: "railsense",
	})
	require.Equal(t, "host=localhost port=5432 user=rail password=pw dbname=railsense sslmode=disable", dsn)

	withSSL := buildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "require",
	})
	require.Contains(t, withSSL, "sslmode=require")

	explicit := buildDSN(config.DatabaseConfig{DSN: "postgres://rail@localhost/railsense"})
	require.Equal(t, "postgres://rail@localhost/railsense", explicit)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE EXTENSION IF NOT EXISTS vector;\n\nCREATE TABLE t (a int);\n")
	require.Equal(t, []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE TABLE t (a int)",
	}, stmts)
	require.Nil(t, splitStatements(" ;\n; "))
}

func TestSchemaEmbedded(t *testing.T) {
	content, err := schemaFS.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(content))
	require.NotEmpty(t, stmts)
	// The vector extension must come before the table using it.
	require.Contains(t, stmts[0], "CREATE EXTENSION IF NOT EXISTS vector")
}
