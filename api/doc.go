// Package api holds the HTTP wire types of the custody service and the
// configuration shared by its servers.
//
// Subpackages:
//
//   - custodyhandler: chi handlers for wallets, activation, rotation and recovery
//   - server: HTTP server lifecycle with health, drain and pprof endpoints
//
// Request and response bodies are JSON with snake_case keys. Challenge
// values are standard base64, the same encoding the canonical raw data uses.
package api
