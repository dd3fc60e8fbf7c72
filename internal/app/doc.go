// Package app wires configuration, logging, observability, the license
// gate and the HTTP server into a runnable application. The license is
// evaluated exactly once at startup; the HTTP API serves the resulting
// status to the GUI and accepts activation requests.
package app
