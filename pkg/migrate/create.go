package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateOptions controls the generated goose file.
type CreateOptions struct {
	// NoTransaction emits the goose annotation required by
	// CREATE INDEX CONCURRENTLY on the busy ledger tables.
	NoTransaction bool
	// Now stamps the version; defaults to time.Now.
	Now func() time.Time
}

// CreateSQLMigration creates <dir>/<YYYYMMDDHHMMSS>_<name>.sql with empty
// Up and Down blocks that pass ValidateDir.
func CreateSQLMigration(dir string, name string, opts CreateOptions) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeMigrationName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := opts.Now().UTC().Format("20060102150405")
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	var b strings.Builder
	if opts.NoTransaction {
		b.WriteString("-- +goose NO TRANSACTION\n")
	}
	fmt.Fprintf(&b, "-- +goose Up\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n\n", safe)
	fmt.Fprintf(&b, "-- +goose Down\n-- +goose StatementBegin\n-- rollback %s\n-- +goose StatementEnd\n", safe)

	if err := os.WriteFile(fullpath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeMigrationName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
