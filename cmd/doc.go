// Package cmd provides the command-line interface for bruwatch.
//
// # Available Commands
//
//   - watch: watch collections and serve their tree over WebSocket
//   - classify: print the kind every path of a collection is routed as
//   - cache: inspect, prune or clear the parsed-file cache
//   - secrets: store encrypted values for secret environment variables
//   - new: create a collection from a built-in template
//   - version: print build information
//
// # Command Examples
//
//	// Watch two collections and print every update
//	bruwatch watch ./api ./admin --console
//
//	// Watch over a network share where native watches are unreliable
//	bruwatch watch /mnt/share/api --polling
//
//	// Drop stale cache entries
//	bruwatch cache prune --older-than 168h
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. BRUWATCH_CONFIG_FILE environment variable - custom config file path
//  3. Environment variables (BRUWATCH_<SECTION>_<KEY>)
//  4. Configuration file (.bruwatch.yml)
//  5. Default values (lowest priority)
package cmd
