// Command migrate manages the payroll schema with golang-migrate.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hrpay/backend/internal/infrastructure/config"
	"github.com/hrpay/backend/internal/infrastructure/logger"
	"github.com/hrpay/backend/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

type options struct {
	path    string
	confirm bool
	args    []string
	log     *zap.Logger
}

type command struct {
	usage       string
	needsDB     bool
	destructive bool
	fileRun     func(o options) error
	dbRun       func(o options, m *migration.Migrator) error
}

var commands = map[string]command{
	"up": {
		usage:   "up                    Apply all pending migrations",
		needsDB: true,
		dbRun:   func(_ options, m *migration.Migrator) error { return m.Up() },
	},
	"down": {
		usage:       "down                  Roll back all migrations (requires -confirm)",
		needsDB:     true,
		destructive: true,
		dbRun:       func(_ options, m *migration.Migrator) error { return m.Down() },
	},
	"step": {
		usage:   "step <n>              Apply n migrations (negative rolls back)",
		needsDB: true,
		dbRun: func(o options, m *migration.Migrator) error {
			n, err := intArg(o.args, "step count")
			if err != nil {
				return err
			}
			return m.Steps(n)
		},
	},
	"goto": {
		usage:   "goto <version>        Migrate to a specific version",
		needsDB: true,
		dbRun: func(o options, m *migration.Migrator) error {
			v, err := intArg(o.args, "version")
			if err != nil {
				return err
			}
			if v < 0 {
				return fmt.Errorf("version must not be negative")
			}
			return m.GoTo(uint(v))
		},
	},
	"version": {
		usage:   "version               Show the applied schema version",
		needsDB: true,
		dbRun:   func(o options, m *migration.Migrator) error { _, err := reportStatus(o, m); return err },
	},
	"status": {
		usage:   "status                Like version, exits 2 when migrations are pending",
		needsDB: true,
		dbRun: func(o options, m *migration.Migrator) error {
			upToDate, err := reportStatus(o, m)
			if err == nil && !upToDate {
				os.Exit(2)
			}
			return err
		},
	},
	"force": {
		usage:   "force <version>       Mark a version as applied after a failed run",
		needsDB: true,
		dbRun: func(o options, m *migration.Migrator) error {
			v, err := intArg(o.args, "version")
			if err != nil {
				return err
			}
			return m.Force(v)
		},
	},
	"drop": {
		usage:       "drop                  Drop every table (requires -confirm)",
		needsDB:     true,
		destructive: true,
		dbRun:       func(_ options, m *migration.Migrator) error { return m.Drop() },
	},
	"create": {
		usage:   "create <name> [desc]  Write a new up/down migration pair",
		fileRun: createMigration,
	},
	"list": {
		usage:   "list                  List migration files",
		fileRun: listMigrations,
	},
}

var commandOrder = []string{"up", "down", "step", "goto", "version", "status", "force", "drop", "create", "list"}

func main() {
	var (
		path     string
		logLevel string
		confirm  bool
	)
	flag.StringVar(&path, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&confirm, "confirm", false, "Confirm a destructive command")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"}, "payroll-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	path, err = resolveMigrationsPath(path)
	if err != nil {
		log.Fatal("Invalid migrations path", zap.Error(err))
	}
	o := options{path: path, confirm: confirm, args: flag.Args()[1:], log: log}
	log.Info("Running migration command", zap.String("command", name), zap.String("path", path))

	if cmd.destructive && !confirm {
		log.Fatal("Refusing to run without -confirm; this removes payroll history", zap.String("command", name))
	}
	if !cmd.needsDB {
		if err := cmd.fileRun(o); err != nil {
			log.Fatal("Command failed", zap.String("command", name), zap.Error(err))
		}
		return
	}

	if err := withMigrator(o, func(m *migration.Migrator) error { return cmd.dbRun(o, m) }); err != nil {
		log.Fatal("Command failed", zap.String("command", name), zap.Error(err))
	}
}

func withMigrator(o options, fn func(m *migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, o.path, o.log)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func reportStatus(o options, m *migration.Migrator) (bool, error) {
	st, err := m.Status(o.path)
	if err != nil {
		return false, err
	}
	o.log.Info("Schema status",
		zap.Uint("version", st.Version),
		zap.Uint("latest", st.Latest),
		zap.Bool("dirty", st.Dirty),
		zap.Bool("up_to_date", st.UpToDate()),
	)
	return st.UpToDate(), nil
}

func createMigration(o options) error {
	if len(o.args) == 0 {
		return fmt.Errorf("usage: migrate create <name> [description]")
	}
	desc := ""
	if len(o.args) > 1 {
		desc = o.args[1]
	}
	mf, err := migration.CreateMigration(o.path, o.args[0], desc)
	if err != nil {
		return err
	}
	o.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath),
	)
	return nil
}

func listMigrations(o options) error {
	files, err := migration.ListMigrations(o.path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		o.log.Info("No migrations found")
		return nil
	}
	for _, f := range files {
		suffix := ""
		if !f.HasDown {
			suffix = " (no down)"
		}
		fmt.Printf("  %s%s\n", f.BaseName(), suffix)
	}
	return nil
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s required", what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return n, nil
}

// resolveMigrationsPath tries ./migrations, then the repository root
// relative to the executable.
func resolveMigrationsPath(path string) (string, error) {
	if path != "" {
		return filepath.Abs(path)
	}
	candidates := []string{defaultMigrationsPath}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsPath))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return filepath.Abs(c)
		}
	}
	return filepath.Abs(defaultMigrationsPath)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Payroll schema migrations\n\nUsage:\n  migrate [flags] <command> [arguments]\n\nCommands:")
	for _, name := range commandOrder {
		fmt.Fprintln(os.Stderr, "  "+commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, `
Flags:
  -path string       Migrations directory (default: ./migrations)
  -log-level string  debug, info, warn or error (default: info)
  -confirm           Allow down and drop

Database settings come from config.toml or PAYROLL_DATABASE_HOST,
PAYROLL_DATABASE_PORT, PAYROLL_DATABASE_USER, PAYROLL_DATABASE_PASSWORD,
PAYROLL_DATABASE_DBNAME and PAYROLL_DATABASE_SSLMODE.`)
}
