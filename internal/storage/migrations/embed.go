// Package migrations applies the embedded schema of the PostgreSQL and ClickHouse stores.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
)

var (
	//go:embed postgres/*.sql
	postgresFS embed.FS

	//go:embed clickhouse/*.sql
	clickhouseFS embed.FS
)

// migration is one embedded schema file.
type migration struct {
	name string
	sql  string
}

// load reads the .sql files of dir in file-name order.
func load(fsys fs.FS, dir string) ([]migration, error) {
	paths, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}

	out := make([]migration, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		out = append(out, migration{name: path.Base(p), sql: string(data)})
	}
	return out, nil
}
