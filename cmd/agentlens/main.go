// @title AgentLens API
// @version 1.0.0
// @description Capability registry, anonymous discovery and task delegation between agents.
// @license.name MIT
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token carrying tenant_id and agent_id claims

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/config"
	"github.com/agentkitai/agentlens/internal/metrics"
	"github.com/agentkitai/agentlens/internal/telemetry"
	"github.com/agentkitai/agentlens/internal/tlsutil"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage 已打印用法，只需以非零状态退出
var errUsage = errors.New("usage")

var commands = map[string]func(args []string) error{
	"serve":   runServe,
	"migrate": runMigrate,
	"health":  runHealthCheck,
	"version": func([]string) error {
		fmt.Printf("AgentLens %s\n  Build Time: %s\n  Git Commit: %s\n", Version, BuildTime, GitCommit)
		return nil
	},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errUsage
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		return errUsage
	}
	return cmd(args[1:])
}

// =============================================================================
// 🖥️ serve
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting agentlens",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	// 遥测失败不阻止启动，Providers 为 nil 时回落到全局 noop
	providers, err := telemetry.Init(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry unavailable", zap.Error(err))
	}

	srv := NewServer(cfg, *configPath, logger, level, providers, metrics.NewCollector("agentlens", logger))
	if err := srv.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start server: %w", err)
	}
	srv.WaitForShutdown()

	logger.Info("agentlens stopped")
	return nil
}

// =============================================================================
// 🏥 health
// =============================================================================

// runHealthCheck 请求运行中实例的 /health，供容器 HEALTHCHECK 使用
func runHealthCheck(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := tlsutil.SecureHTTPClient(*timeout).Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Println("OK")
	return nil
}

func printUsage() {
	fmt.Println(`AgentLens - agent discovery and delegation

Usage:
  agentlens <command> [options]

Commands:
  serve     Start the HTTP API (--config <path>)
  migrate   Database migrations, see 'agentlens migrate help'
  health    Probe a running server (--addr <url>, --timeout <d>)
  version   Show build information
  help      Show this message`)
}
