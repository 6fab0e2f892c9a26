// Package config loads runtime configuration for the field client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the collaboration server
//	-d string   path of the local database file
//	-i int      online status check interval (seconds)
//	-p int      polling interval (seconds)
//	-w int      network workers
//	-l string   log file
//	-v string   log level (debug, info, warn, error)
//	-m string   address to serve /metrics on; empty disables it
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds. Absent keys keep their defaults:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "db_path": "fieldsync.db",
//	  "online_check_interval": "3s",
//	  "poll_interval": "30s",
//	  "request_timeout": "15s",
//	  "db_workers": 1,
//	  "network_workers": 4,
//	  "retry_attempts": 5,
//	  "retry_base": "500ms",
//	  "retry_max": "30s",
//	  "log_file": "fieldsync.log",
//	  "log_level": "info",
//	  "metrics_addr": ""
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
