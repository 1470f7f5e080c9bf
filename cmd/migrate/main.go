package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/erp/platform/internal/infrastructure/config"
	"github.com/erp/platform/internal/infrastructure/logger"
	"github.com/erp/platform/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

type cli struct {
	migrationsPath string
	logLevel       string
	embedded       bool
	log            *zap.Logger
}

func main() {
	c := &cli{}
	if err := c.rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the core schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(&logger.Config{
				Level:      c.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.migrationsPath, "path", "", "Path to migrations directory (default: ./migrations)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.embedded, "embedded", false, "Use the migrations compiled into the binary instead of --path")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  c.withMigrator(func(m *migration.Migrator, _ []string) error { return m.Up() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE:  c.withMigrator(func(m *migration.Migrator, _ []string) error { return m.Down() }),
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, negative n rolls back",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
				return m.Steps(n)
			}),
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(m *migration.Migrator, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return m.GoTo(uint(v))
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: c.withMigrator(func(m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return m.Force(v)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: c.withMigrator(func(m *migration.Migrator, _ []string) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				c.log.Info("Current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "create <name> [description]",
			Short: "Write the next sequential up/down migration pair",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(_ *cobra.Command, args []string) error {
				description := ""
				if len(args) > 1 {
					description = args[1]
				}
				mf, err := migration.CreateMigration(c.path(), args[0], description, time.Now())
				if err != nil {
					return c.fail("Failed to create migration", err)
				}
				c.log.Info("Migration created successfully",
					zap.String("version", mf.Version),
					zap.String("up_file", mf.UpPath),
					zap.String("down_file", mf.DownPath),
				)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List migration files",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				files, err := migration.ListMigrations(c.path())
				if err != nil {
					return c.fail("Failed to list migrations", err)
				}
				for _, f := range files {
					fmt.Println(f)
				}
				return nil
			},
		},
	)
	return root
}

// withMigrator opens the configured database and hands a Migrator to fn
func (c *cli) withMigrator(fn func(m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return c.fail("Failed to load configuration", err)
		}
		if cfg.Database.Driver != "postgres" {
			return c.fail("Migrations require the postgres driver", fmt.Errorf("driver is %q", cfg.Database.Driver))
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return c.fail("Failed to open database", err)
		}
		if err := db.PingContext(cmd.Context()); err != nil {
			_ = db.Close()
			return c.fail("Failed to connect to database", err)
		}

		var opts []migration.Option
		if !c.embedded {
			opts = append(opts, migration.WithPath(c.path()))
		}
		m, err := migration.New(db, c.log, opts...)
		if err != nil {
			_ = db.Close()
			return c.fail("Failed to create migrator", err)
		}
		// Closing the migrator also closes db
		defer func() {
			if err := m.Close(); err != nil {
				c.log.Warn("Failed to close migrator", zap.Error(err))
			}
		}()

		c.log.Info("Migration CLI started",
			zap.String("command", cmd.Name()),
			zap.Bool("embedded", c.embedded),
			zap.String("migrations_path", c.path()),
		)
		if err := fn(m, args); err != nil {
			return c.fail("Migration failed", err)
		}
		return nil
	}
}

// path resolves the migrations directory, looking next to the binary when ./migrations is missing
func (c *cli) path() string {
	p := c.migrationsPath
	if p == "" {
		p = defaultMigrationsPath
		if _, err := os.Stat(p); err != nil {
			if exe, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					p = candidate
				}
			}
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (c *cli) fail(msg string, err error) error {
	c.log.Error(msg, zap.Error(err))
	return err
}
