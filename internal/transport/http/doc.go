// Package http exposes the license API consumed by the desktop GUI:
// status polling, key activation and machine code lookup. Handlers are
// thin adapters over the services layer; chi/render does request
// binding and response rendering.
package http
