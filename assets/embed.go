package assets

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var FS embed.FS

// Migrations lists the embedded migration files in apply order.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(FS, "sql")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		out = append(out, "sql/"+e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// ReadMigration returns the SQL text of one migration.
func ReadMigration(name string) (string, error) {
	b, err := FS.ReadFile(name)
	return string(b), err
}
