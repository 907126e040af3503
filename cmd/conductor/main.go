// =============================================================================
// Conductor 主入口
// =============================================================================
// 完整进程入口点，包含配置加载、持久化、指标与编排内核的装配。
//
// 使用方法:
//
//	conductor serve                       # 启动编排内核
//	conductor serve --config config.yaml  # 指定配置文件
//	conductor version                     # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agentforge/conductor/agentmanager"
	"github.com/agentforge/conductor/config"
	"github.com/agentforge/conductor/cycle"
	"github.com/agentforge/conductor/failover"
	"github.com/agentforge/conductor/internal/database"
	"github.com/agentforge/conductor/internal/metrics"
	"github.com/agentforge/conductor/internal/telemetry"
	"github.com/agentforge/conductor/lifecycle"
	"github.com/agentforge/conductor/llm/keymanager"
	"github.com/agentforge/conductor/llm/performance"
	"github.com/agentforge/conductor/llm/registry"
	"github.com/agentforge/conductor/persistence"
	"github.com/agentforge/conductor/tools"
	"github.com/agentforge/conductor/tools/builtin"
	"github.com/agentforge/conductor/types"
	"github.com/agentforge/conductor/workflow"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting conductor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProviders.Shutdown(ctx)
	}()

	collector := metrics.NewCollector("conductor", logger)

	mgr, stopMetricsServer, err := assemble(cfg, logger, collector)
	if err != nil {
		logger.Fatal("failed to assemble conductor", zap.Error(err))
	}
	defer stopMetricsServer()

	bootstrap, err := createBootstrapAdmin(context.Background(), mgr, cfg.Agents.Bootstrap)
	if err != nil {
		logger.Fatal("failed to create bootstrap admin agent", zap.Error(err))
	}
	mgr.agentManager.Register(bootstrap)
	mgr.agentManager.ScheduleCycle(bootstrap, 0)

	logger.Info("conductor running", zap.String("bootstrap_agent", bootstrap.ID))
	waitForShutdown(logger)
	logger.Info("conductor stopped")
}

// conductor bundles every long-lived component assemble wires together, so
// runServe has one thing to hold onto and one thing to tear down.
type conductor struct {
	agentManager *agentmanager.Manager
	lifecycle    *lifecycle.Manager
	store        persistence.Store
	pool         *database.PoolManager
}

// assemble wires C1-C10 plus the ambient stack into a running conductor,
// mirroring the teacher's NewServer wiring shape but without any HTTP
// front-end (spec §1's external-collaborators boundary leaves that to the
// operator). Returns a func that stops the metrics HTTP listener and closes
// the database pool.
func assemble(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*conductor, func(), error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxOpenConns
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}

	keys, err := keymanager.New(db, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create key manager: %w", err)
	}

	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
	}
	perf := performance.New(cache, logger)

	prober := lifecycle.NewProber(func(instanceName string) string {
		kc, ok := keys.GetActiveKeyConfig(context.Background(), instanceName)
		if !ok {
			return ""
		}
		return kc.APIKey
	})

	registryConfigs := make([]registry.Config, 0, len(cfg.Providers))
	instances := make([]lifecycle.InstanceConfig, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		registryConfigs = append(registryConfigs, registry.Config{Name: p.Name, BaseURL: p.BaseURL, IsLocal: p.IsLocal})
		instances = append(instances, lifecycle.InstanceConfig{Name: p.Name, BaseURL: p.BaseURL, IsLocal: p.IsLocal})
		if !p.IsLocal && p.APIKey != "" {
			if err := keys.LoadKey(context.Background(), p.Name, p.APIKey, ""); err != nil {
				logger.Warn("failed to seed provider key", zap.String("provider", p.Name), zap.Error(err))
			}
		}
	}
	reg := registry.New(registryConfigs, prober, logger)
	reg.Refresh(context.Background())

	tier := cfg.Agents.ParseTier()
	lifecycleMgr := lifecycle.New(instances, reg, perf, keys, tier, cfg.Agents.SandboxRoot, logger)

	workflows := workflow.NewManager(logger)
	workflows.ApplyTokenBudgets(cfg.Agents.TokenBudgets.ToStateMap())

	projectStore := workflow.NewProjectStore()
	workflows.Register(workflow.NewProjectCreation(projectStore, lifecycleMgr))
	workflows.Register(workflow.NewPMKickoff(projectStore, lifecycleMgr))

	toolRegistry := tools.NewRegistry(logger)
	builtin.RegisterFileSystem(toolRegistry)
	builtin.RegisterToolInformation(toolRegistry)
	builtin.RegisterProjectManagement(toolRegistry, projectStore)
	executor := tools.NewExecutor(toolRegistry, logger)

	failoverHandler := failover.New(reg, perf, keys, tier, logger)
	failoverHandler.SetMetrics(collector)

	store := persistence.NewInMemoryStore()

	agentMgr := agentmanager.New(nil, nil, logger)
	agentMgr.SetMetrics(collector)

	scheduler := cycle.NewScheduler(failoverHandler, agentMgr, cfg.Cycle.MaxRetries, cfg.Cycle.RetryDelay, logger)
	assembler := cycle.NewPromptAssembler(workflows)
	caller := cycle.NewLLMCaller(lifecycleMgr, keys)
	handler := cycle.NewHandler(assembler, caller, workflows, executor, scheduler, logger)
	agentMgr.SetHandler(handler)

	builtin.RegisterSendMessage(toolRegistry, agentMgr)

	stop := startMetricsServer(cfg.Server.MetricsPort, logger)

	return &conductor{agentManager: agentMgr, lifecycle: lifecycleMgr, store: store, pool: pool}, func() {
		stop()
		if err := pool.Close(); err != nil {
			logger.Warn("error closing database pool", zap.Error(err))
		}
	}, nil
}

// createBootstrapAdmin spawns the single well-known Admin agent through the
// Lifecycle Manager, the same path a PM-kickoff workflow uses to spawn
// Workers, so the Admin gets the same provider/model selection and sandbox
// wiring as every other agent.
func createBootstrapAdmin(ctx context.Context, c *conductor, bootstrap config.BootstrapConfig) (*types.Agent, error) {
	return c.lifecycle.CreateAgent(ctx, types.CreateAgentRequest{
		RequestedID: types.BootstrapAgentID,
		AgentType:   types.AgentTypeAdmin,
		Persona:     bootstrap.Persona,
		Provider:    bootstrap.Provider,
		Model:       bootstrap.Model,
	})
}

func startMetricsServer(port int, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutdown signal received", zap.String("signal", s.String()))
}

func printVersion() {
	fmt.Printf("conductor %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`conductor - multi-agent LLM orchestration core

Usage:
  conductor <command> [options]

Commands:
  serve     Start the orchestration core
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Examples:
  conductor serve
  conductor serve --config /etc/conductor/config.yaml
  conductor version`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
