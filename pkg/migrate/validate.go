package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var (
	sqlFileRe     = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	createTypeRe  = regexp.MustCompile(`(?i)CREATE TYPE\s+([a-z0-9_]+)`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE(?:\s+IF NOT EXISTS)?\s+([a-z0-9_]+)`)
	floatMoneyRe  = regexp.MustCompile(`(?im)^\s*([a-z0-9_]*(?:amount|balance|contributed)[a-z0-9_]*)\s+(?:float[0-9]*|real|double precision)\b`)
)

// ValidateDir checks migration filenames and contents on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys. Besides goose
// headers it rejects money columns stored as floating point and types or
// tables the Down block forgets to drop.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	var errs error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		errs = multierr.Append(errs, validateContent(name, string(b)))
	}
	return errs
}

func validateContent(name, txt string) error {
	upIdx := strings.Index(txt, "-- +goose Up")
	if upIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	downIdx := strings.Index(txt, "-- +goose Down")
	if downIdx < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}
	if downIdx < upIdx {
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	up, down := txt[upIdx:downIdx], strings.ToLower(txt[downIdx:])

	var errs error
	for _, match := range floatMoneyRe.FindAllStringSubmatch(up, -1) {
		errs = multierr.Append(errs, fmt.Errorf("migration %q stores money column %s as floating point", name, match[1]))
	}
	for _, match := range createTypeRe.FindAllStringSubmatch(up, -1) {
		if !strings.Contains(down, "drop type if exists "+strings.ToLower(match[1])) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q never drops type %s", name, match[1]))
		}
	}
	for _, match := range createTableRe.FindAllStringSubmatch(up, -1) {
		if !strings.Contains(down, "drop table if exists "+strings.ToLower(match[1])) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q never drops table %s", name, match[1]))
		}
	}
	return errs
}
