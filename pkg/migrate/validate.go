package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateTree checks every driver tree under root and that the trees carry
// the same migration files.
func ValidateTree(root string) error {
	if root == "" {
		root = DefaultDir
	}

	var reference []string
	var referenceDriver string
	for _, driver := range Drivers {
		names, err := validateDir(DirFor(root, driver))
		if err != nil {
			return fmt.Errorf("%s migrations: %w", driver, err)
		}
		if reference == nil {
			reference, referenceDriver = names, driver
			continue
		}
		if missing := difference(reference, names); len(missing) > 0 {
			return fmt.Errorf("%s migrations missing %s", driver, strings.Join(missing, ", "))
		}
		if extra := difference(names, reference); len(extra) > 0 {
			return fmt.Errorf("%s migrations missing %s", referenceDriver, strings.Join(extra, ", "))
		}
	}
	return nil
}

// ValidateDir validates migration filenames and goose annotations in one tree.
func ValidateDir(dir string) error {
	_, err := validateDir(dir)
	return err
}

func validateDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	var names []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return nil, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkAnnotations(string(b)); err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no migrations found in %q", dir)
	}
	sort.Strings(names)
	return names, nil
}

func checkAnnotations(txt string) error {
	if !strings.Contains(txt, "-- +goose Up") {
		return fmt.Errorf(`missing "-- +goose Up"`)
	}
	if !strings.Contains(txt, "-- +goose Down") {
		return fmt.Errorf(`missing "-- +goose Down"`)
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("unbalanced StatementBegin/StatementEnd (%d/%d)", begins, ends)
	}
	return nil
}

func difference(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, n := range have {
		present[n] = struct{}{}
	}
	var out []string
	for _, n := range want {
		if _, ok := present[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
