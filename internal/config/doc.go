// Package config loads and validates the application configuration.
//
// Configuration is assembled from three layers, lowest precedence first:
// built-in defaults, an optional config.yaml next to the executable, and
// CONVERTER_* environment variables. The license section carries the
// license authority endpoint and the offline grace window; paths are
// resolved relative to the executable directory so the tool behaves the
// same regardless of the working directory it is launched from.
package config
