package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/agentkitai/agentlens/config"
	"github.com/agentkitai/agentlens/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// migrateCommand 是一个迁移子命令；positional 为版本号等位置参数个数
type migrateCommand struct {
	positional int
	usage      string
	run        func(ctx context.Context, cli *migration.CLI, fs *flag.FlagSet, positional []string) error
}

var migrateCommands = map[string]migrateCommand{
	"up": {
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, _ []string) error {
			return cli.RunUp(ctx)
		},
	},
	"down": {
		run: func(ctx context.Context, cli *migration.CLI, fs *flag.FlagSet, _ []string) error {
			if fs.Lookup("all").Value.String() == "true" {
				return cli.RunDownAll(ctx)
			}
			return cli.RunDown(ctx)
		},
	},
	"steps": {
		positional: 1,
		usage:      "agentlens migrate steps <n>",
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, pos []string) error {
			n, err := strconv.Atoi(pos[0])
			if err != nil {
				return fmt.Errorf("invalid step count: %s", pos[0])
			}
			return cli.RunSteps(ctx, n)
		},
	},
	"status": {
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, _ []string) error {
			return cli.RunStatus(ctx)
		},
	},
	"version": {
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, _ []string) error {
			return cli.RunVersion(ctx)
		},
	},
	"info": {
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, _ []string) error {
			return cli.RunInfo(ctx)
		},
	},
	"goto": {
		positional: 1,
		usage:      "agentlens migrate goto <version>",
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, pos []string) error {
			v, err := strconv.ParseUint(pos[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version number: %s", pos[0])
			}
			return cli.RunGoto(ctx, uint(v))
		},
	},
	"force": {
		positional: 1,
		usage:      "agentlens migrate force <version>",
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, pos []string) error {
			v, err := strconv.ParseInt(pos[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version number: %s", pos[0])
			}
			return cli.RunForce(ctx, int(v))
		},
	},
	"reset": {
		run: func(ctx context.Context, cli *migration.CLI, _ *flag.FlagSet, _ []string) error {
			return cli.RunDownAll(ctx)
		},
	},
}

// runMigrate 分发 migrate 子命令
func runMigrate(args []string) error {
	if len(args) == 0 {
		printMigrateUsage()
		return errUsage
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		printMigrateUsage()
		return nil
	}
	cmd, ok := migrateCommands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand %q\n\n", name)
		printMigrateUsage()
		return errUsage
	}

	if err := execMigrate(context.Background(), name, cmd, args[1:]); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	return nil
}

func execMigrate(ctx context.Context, name string, cmd migrateCommand, args []string) error {
	if len(args) < cmd.positional {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	positional, flagArgs := args[:cmd.positional], args[cmd.positional:]

	fs := flag.NewFlagSet("migrate "+name, flag.ContinueOnError)
	fs.Bool("all", false, "Rollback all migrations (down only)")
	migrator, err := createMigrator(fs, flagArgs)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	return cmd.run(ctx, migration.NewCLI(migrator), fs, positional)
}

// createMigrator 根据 --db-type/--db-url 或配置文件创建迁移器
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  agentlens migrate <subcommand> [args] [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all for every migration)
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  status      Show migration status
  version     Show current migration version
  info        Show migration summary
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentlens migrate up
  agentlens migrate up --config /etc/agentlens/config.yaml
  agentlens migrate down --all
  agentlens migrate goto 1
  agentlens migrate up --db-type sqlite --db-url ./agentlens.db`)
}
