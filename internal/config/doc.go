// Package config loads healthcal's configuration.
//
// Values are layered: built-in defaults, then the TOML file
// ($XDG_CONFIG_HOME/healthcal/config.toml or --config), then a .env file in
// the working directory, then the process environment. Command-line flags
// are applied last by the cmd package. A .env entry never overrides a
// variable already set in the environment.
package config
