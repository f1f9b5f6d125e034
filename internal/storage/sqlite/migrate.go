package sqlite

import (
	"os"
	"strings"
)

func (s *Sqlite) Migrate(schemaPath string) error {
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";\n") {
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
