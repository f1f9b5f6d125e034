package postgres

import (
	"os"
	"strings"
)

// Migrate applies the shared schema. Postgres tolerates the sqlite-flavored
// DDL except AUTOINCREMENT, which is rewritten on the fly.
func (s *Postgres) Migrate(schemaPath string) error {
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		return err
	}
	ddl := strings.ReplaceAll(string(b), "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
	for _, stmt := range strings.Split(ddl, ";\n") {
		st := strings.TrimSpace(stmt)
		if st == "" {
			continue
		}
		if _, err = s.Db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}
