// Package config provides the configuration of the library lending example programs:
// loading settings with viper, building the slog logger, opening the snapshot store
// and wiring the OpenTelemetry providers.
//
// Settings are read from defaults, an optional YAML file and LENDING_* environment
// variables, in increasing order of precedence. Nested keys map to environment
// variables with dots replaced by underscores, e.g. store.kind -> LENDING_STORE_KIND.
package config
