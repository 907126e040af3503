// =============================================================================
// Conductor default configuration
// =============================================================================
// Supplies reasonable defaults for every config section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agents:    DefaultAgentsConfig(),
		Providers: DefaultProviders(),
		Cycle:     DefaultCycleConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default metrics/health server config.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultAgentsConfig returns the default agent-creation settings.
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		DefaultTemperature: 0.7,
		Tier:               "any",
		SandboxRoot:        "./sandboxes",
		Bootstrap: BootstrapConfig{
			Provider: "ollama",
			Model:    "ollama/llama3",
			Persona:  "You are the Admin agent coordinating this project.",
		},
	}
}

// DefaultProviders returns a single local Ollama instance, the only
// provider that needs no API key to exercise out of the box.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "ollama", BaseURL: "http://localhost:11434", IsLocal: true},
	}
}

// DefaultCycleConfig mirrors cycle.DefaultMaxRetries / cycle.DefaultRetryDelay.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
	}
}

// DefaultRedisConfig returns the default Redis config.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default sqlite database config.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path:         "conductor.db",
		MaxOpenConns: 1,
	}
}

// DefaultLogConfig returns the default logging config.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default tracing config.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "conductor",
		SampleRate:   0.1,
	}
}
