package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/kolo-backend/internal/app"
	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/db"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
	noTx    bool
}

// command is one -cmd value. Offline commands never open a database and get
// a nil migrator.
type command struct {
	offline bool
	run     func(ctx context.Context, m *migrate.Migrator, opts options) error
}

var commands = map[string]command{
	"up":   {run: func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Up(ctx) }},
	"down": {run: func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Down(ctx) }},
	"status": {run: func(ctx context.Context, m *migrate.Migrator, _ options) error {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATE\tAPPLIED AT\tMIGRATION")
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", st.State, applied, filepath.Base(st.Source.Path))
		}
		return w.Flush()
	}},
	"version": {run: func(ctx context.Context, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			current, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println("schema version:", current)
			return nil
		}
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return m.MigrateTo(ctx, target)
	}},
	"create": {offline: true, run: func(_ context.Context, _ *migrate.Migrator, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, migrate.CreateOptions{NoTransaction: opts.noTx})
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {offline: true, run: func(_ context.Context, _ *migrate.Migrator, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	var opts options
	cmdName := flag.String("cmd", "up", fmt.Sprintf("migration command: %v", commandNames()))
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version; empty prints the current one")
	flag.BoolVar(&opts.noTx, "no-tx", false, "create a migration that runs outside a transaction")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmdName)
		os.Exit(2)
	}

	cfg, logg, err := app.LoadConfig("migrate")
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmdName, "dir": opts.dir})

	if err := execute(ctx, cfg, logg, cmd, opts); err != nil {
		logg.Error(ctx, "migrate failed", err)
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmdName, err)
		os.Exit(1)
	}
	logg.Info(ctx, "migrate finished")
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd command, opts options) error {
	if cmd.offline {
		return cmd.run(ctx, nil, opts)
	}
	if cfg.FeatureFlags.UseSQLite {
		return errors.New("goose migrations target postgres; sqlite schemas come from KOLO_AUTO_MIGRATE")
	}

	client, err := db.New(ctx, cfg.DB, false, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := migrate.New(sqlDB, opts.dir, logg)
	if err != nil {
		return err
	}
	return cmd.run(ctx, m, opts)
}
