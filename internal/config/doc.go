// Package config loads the sluice configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/sluice/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing/empty, use defaults
//
// # TOML Format
//
//	api_url = "http://127.0.0.1:7490"
//	poll_interval = "2s"
//	metrics_bind = "127.0.0.1:9464"
//	log_level = "info"
//	log_file = "~/.local/state/sluice/sluice.log"
//	route_reuse = true
//
// Every field is optional. A bare host:port api_url is treated as http.
// metrics_bind is empty by default, which leaves the metrics endpoint off.
//
// # Validation
//
// After defaults are applied the struct is checked with validator tags: the
// API URL must be absolute, the poll interval at least 100ms, metrics_bind a
// host:port pair and log_level one of debug, info, warn or error. Failures are
// returned wrapped as "validate config: ...".
//
// # Path Expansion
//
// A leading "~" is expanded to the home directory for the config path and
// log_file, and relative paths are made absolute.
package config
