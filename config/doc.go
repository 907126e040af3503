/*
Package config loads the conductor's configuration: defaults, optional YAML
file, then environment variable overrides, in that priority order.

# Core structures

  - Config: top-level aggregate covering Server, Agents, Providers, Cycle,
    Redis, Database, Log, Telemetry
  - Loader: builder-pattern loader for chaining a config file path, env
    prefix, and validators

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("CONDUCTOR").
		Load()
*/
package config
