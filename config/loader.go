// =============================================================================
// Conductor configuration loader
// =============================================================================
// Unified config loading: defaults -> YAML file -> environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CONDUCTOR").
//	    Load()
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/agentforge/conductor/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Core configuration structures
// =============================================================================

// Config is the conductor's complete configuration tree.
type Config struct {
	// Server carries the metrics/health HTTP listener settings. There is no
	// REST/WebSocket API config here: that front-end is an external
	// collaborator per spec §1, not reconfigured by this package.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agents carries the bootstrap Admin entry, default temperature, model
	// tier, sandbox root, and per-state token budgets (spec §6).
	Agents AgentsConfig `yaml:"agents" env:"AGENTS"`

	// Providers lists the configured provider instances the Lifecycle
	// Manager may attach agents to. Loaded from YAML only: the env-var
	// walker below only recurses into plain structs, not slices of
	// structs, and a flat env encoding of a variable-length provider list
	// would need its own ad hoc syntax the teacher's loader doesn't have.
	Providers []ProviderConfig `yaml:"providers"`

	// Cycle carries the Next-Step Scheduler's retry knobs.
	Cycle CycleConfig `yaml:"cycle" env:"CYCLE"`

	// Redis backs the Performance Tracker's ranked-model cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database backs the Key Manager's quarantine/outcome tables.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the metrics/health HTTP listener.
type ServerConfig struct {
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// BootstrapConfig describes the single Admin agent created at startup.
type BootstrapConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER"`
	Model    string `yaml:"model" env:"MODEL"`
	Persona  string `yaml:"persona" env:"PERSONA"`
}

// TokenBudgetsConfig carries spec §6's `ADMIN_*`, `PM_*_STATE_MAX_TOKENS`,
// `WORKER_*_STATE_MAX_TOKENS` per-state token budgets. A zero value leaves
// the corresponding workflow.StateSpec's built-in default untouched.
type TokenBudgetsConfig struct {
	AdminConversation  int `yaml:"admin_conversation_max_tokens" env:"ADMIN_CONVERSATION_MAX_TOKENS"`
	AdminPlanning      int `yaml:"admin_planning_max_tokens" env:"ADMIN_PLANNING_MAX_TOKENS"`
	AdminWorkDelegated int `yaml:"admin_work_delegated_max_tokens" env:"ADMIN_WORK_DELEGATED_MAX_TOKENS"`
	AdminWork          int `yaml:"admin_work_max_tokens" env:"ADMIN_WORK_MAX_TOKENS"`
	AdminStandby       int `yaml:"admin_standby_max_tokens" env:"ADMIN_STANDBY_MAX_TOKENS"`

	PMPlanDecomposition int `yaml:"pm_plan_decomposition_state_max_tokens" env:"PM_PLAN_DECOMPOSITION_STATE_MAX_TOKENS"`
	PMBuildTeamTasks    int `yaml:"pm_build_team_tasks_state_max_tokens" env:"PM_BUILD_TEAM_TASKS_STATE_MAX_TOKENS"`
	PMActivateWorkers   int `yaml:"pm_activate_workers_state_max_tokens" env:"PM_ACTIVATE_WORKERS_STATE_MAX_TOKENS"`
	PMManage            int `yaml:"pm_manage_state_max_tokens" env:"PM_MANAGE_STATE_MAX_TOKENS"`
	PMStandby           int `yaml:"pm_standby_state_max_tokens" env:"PM_STANDBY_STATE_MAX_TOKENS"`
	PMWork              int `yaml:"pm_work_state_max_tokens" env:"PM_WORK_STATE_MAX_TOKENS"`

	WorkerWork int `yaml:"worker_work_state_max_tokens" env:"WORKER_WORK_STATE_MAX_TOKENS"`
	WorkerWait int `yaml:"worker_wait_state_max_tokens" env:"WORKER_WAIT_STATE_MAX_TOKENS"`
}

// ToStateMap projects the budget fields onto the workflow.Manager's
// per-state override map, omitting zero entries so unset budgets fall back
// to the graph's built-in default.
func (b TokenBudgetsConfig) ToStateMap() map[types.State]int {
	out := make(map[types.State]int)
	add := func(state types.State, n int) {
		if n > 0 {
			out[state] = n
		}
	}
	add(types.AdminStateConversation, b.AdminConversation)
	add(types.AdminStatePlanning, b.AdminPlanning)
	add(types.AdminStateWorkDelegated, b.AdminWorkDelegated)
	add(types.AdminStateWork, b.AdminWork)
	add(types.AdminStateStandby, b.AdminStandby)

	add(types.PMStatePlanDecomposition, b.PMPlanDecomposition)
	add(types.PMStateBuildTeamTasks, b.PMBuildTeamTasks)
	add(types.PMStateActivateWorkers, b.PMActivateWorkers)
	add(types.PMStateManage, b.PMManage)
	add(types.PMStateStandby, b.PMStandby)
	add(types.PMStateWork, b.PMWork)

	add(types.WorkerStateWork, b.WorkerWork)
	add(types.WorkerStateWait, b.WorkerWait)
	return out
}

// AgentsConfig carries the agent-creation defaults consumed by the
// Lifecycle Manager.
type AgentsConfig struct {
	DefaultTemperature float64            `yaml:"default_temperature" env:"DEFAULT_TEMPERATURE"`
	// Tier is one of "LOCAL", "FREE", or "any", per spec §6.
	Tier         string             `yaml:"tier" env:"TIER"`
	SandboxRoot  string             `yaml:"sandbox_root" env:"SANDBOX_ROOT"`
	Bootstrap    BootstrapConfig    `yaml:"bootstrap" env:"BOOTSTRAP"`
	TokenBudgets TokenBudgetsConfig `yaml:"token_budgets" env:"TOKEN_BUDGETS"`
}

// ParseTier converts the configured tier string into a types.Tier, defaulting
// to types.TierAny for an empty or unrecognized value.
func (a AgentsConfig) ParseTier() types.Tier {
	switch strings.ToUpper(a.Tier) {
	case string(types.TierLocal):
		return types.TierLocal
	case string(types.TierFree):
		return types.TierFree
	default:
		return types.TierAny
	}
}

// ProviderConfig describes one provider instance the Lifecycle Manager may
// attach an agent to, plus the API key the Key Manager seeds for it at
// startup (empty for local instances).
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	IsLocal bool   `yaml:"is_local"`
	APIKey  string `yaml:"api_key"`
}

// CycleConfig carries the Next-Step Scheduler's retry knobs, defaulting to
// cycle.DefaultMaxRetries / cycle.DefaultRetryDelay when zero.
type CycleConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// RedisConfig configures the Performance Tracker's cache client.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the Key Manager's sqlite-backed gorm database.
// Only sqlite is supported: the teacher's postgres/mysql drivers serve its
// HTTP front-end's durable storage, out of scope per spec §1.
type DatabaseConfig struct {
	Path         string `yaml:"path" env:"PATH"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the otel tracer provider wrapping one cycle and
// one LLM stream call per spec §3's tracing addition.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader constructs a Loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CONDUCTOR",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads configuration in priority order: defaults -> YAML file -> env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively applies environment variable overrides to a
// struct's fields. It does not descend into slices: Config.Providers is
// loaded from YAML only, see its doc comment.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the cross-field invariants the reflect-driven env loader
// can't express.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Agents.DefaultTemperature < 0 || c.Agents.DefaultTemperature > 2 {
		errs = append(errs, "default_temperature must be between 0 and 2")
	}
	if c.Cycle.MaxRetries <= 0 {
		errs = append(errs, "cycle.max_retries must be positive")
	}
	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider must be configured")
	}
	switch strings.ToUpper(c.Agents.Tier) {
	case string(types.TierLocal), string(types.TierFree), "ANY":
	default:
		errs = append(errs, "agents.tier must be one of LOCAL, FREE, any")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
