// Package api serves the live state of a load run over HTTP.
//
// Routes:
//
//	GET /api/status  JSON snapshot with current delay and pending workers
//	GET /metrics     Prometheus exposition of the run's collector
//	/ws              websocket stream of bus events and a status message every second
//
// The server is optional and only started when an address is configured. Listen
// binds the address up front so a busy port is reported before the run starts.
package api
