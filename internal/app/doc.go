// Package app wires the application together: logging, the unit and backend
// registries, the dispatcher, the HTTP API, and scheduled triggers. It owns
// the two run modes, one-shot execution of a workflow file and long-running
// service mode.
package app
