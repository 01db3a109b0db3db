// Command custodyserver serves the key-share custody API.
//
// At startup it validates the configuration, opens the SQLite store, loads
// the recovery-file signing seed from the configured secret backends and
// starts the reaper. The API, health endpoints and metrics are served until
// SIGINT or SIGTERM.
//
// Every flag can also be set through a CUSTODY_-prefixed environment
// variable, for example CUSTODY_SHARE_ACTIVE_TTL=168h.
package main
