package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/watercolor-storefront/pkg/config"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Drivers lists the dialect trees kept under the migrations root. Every
// schema change lands in both with the same version.
var Drivers = []string{config.DriverSQLite, config.DriverPostgres}

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s (%[2]s)
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s (%[2]s)
-- +goose StatementEnd
`

// CreateSQLMigration scaffolds one goose migration per driver tree:
//
//	<root>/sqlite/<YYYYMMDDHHMMSS>_<name>.sql
//	<root>/postgres/<YYYYMMDDHHMMSS>_<name>.sql
func CreateSQLMigration(root string, name string) ([]string, error) {
	return createSQLMigration(root, name, time.Now().UTC())
}

func createSQLMigration(root, name string, now time.Time) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("migrations root is required")
	}
	safe := sanitizeMigrationName(name)
	if safe == "" {
		return nil, fmt.Errorf("migration name %q results in an empty filename", name)
	}

	filename := fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), safe)

	paths := make([]string, 0, len(Drivers))
	for _, driver := range Drivers {
		full := filepath.Join(DirFor(root, driver), filename)
		if _, err := os.Stat(full); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", full)
		}
		paths = append(paths, full)
	}

	for i, driver := range Drivers {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", filepath.Dir(paths[i]), err)
		}
		body := fmt.Sprintf(migrationTemplate, safe, driver)
		if err := os.WriteFile(paths[i], []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("write migration %q: %w", paths[i], err)
		}
	}
	return paths, nil
}

func sanitizeMigrationName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
