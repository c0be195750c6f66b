package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
	"github.com/angelmondragon/venuepay-backend/pkg/db"
	"github.com/angelmondragon/venuepay-backend/pkg/logger"
	"github.com/angelmondragon/venuepay-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// command is one -cmd value. needsDB commands get an open *sql.DB.
type command struct {
	needsDB bool
	run     func(ctx context.Context, conn *sql.DB, dialect string, opts options) (string, error)
}

var commands = map[string]command{
	"create": {run: func(_ context.Context, _ *sql.DB, _ string, opts options) (string, error) {
		if opts.name == "" {
			return "", fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		return "created " + path, err
	}},
	"validate": {run: func(_ context.Context, _ *sql.DB, _ string, opts options) (string, error) {
		return "migrations valid", migrate.ValidateDir(opts.dir)
	}},
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": {needsDB: true, run: func(ctx context.Context, conn *sql.DB, dialect string, opts options) (string, error) {
		if opts.version == "" {
			return "", fmt.Errorf("-version is required for version")
		}
		return "at version " + opts.version, migrate.MigrateToVersion(ctx, conn, dialect, opts.dir, opts.version)
	}},
}

func gooseCommand(name string) command {
	return command{needsDB: true, run: func(ctx context.Context, conn *sql.DB, dialect string, opts options) (string, error) {
		return "goose " + name + " done", migrate.Run(ctx, conn, dialect, opts.dir, name)
	}}
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	name := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	cmd, ok := commands[*name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q (want %s)\n", *name, strings.Join(commandNames(), "|"))
		os.Exit(2)
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	dialect := migrate.DialectFor(cfg.DB.Driver)
	ctx = logg.WithFields(ctx, map[string]any{"cmd": *name, "dir": opts.dir, "dialect": dialect})

	var conn *sql.DB
	if cmd.needsDB {
		client, err := db.New(ctx, cfg.DB, logg)
		exitOn(ctx, logg, "open database", err)
		defer func() { _ = client.Close() }()
		conn, err = client.DB().DB()
		exitOn(ctx, logg, "unwrap sql database", err)
	}

	msg, err := cmd.run(ctx, conn, dialect, opts)
	exitOn(ctx, logg, "migrate "+*name, err)
	logg.Info(ctx, msg)
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
