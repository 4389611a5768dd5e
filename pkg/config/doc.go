// Package config loads the static service configuration (listen
// addresses, pool sizes, directory roots) from YAML and the broker,
// store and TLS credentials from the well-known secret-file layout,
// read once at process start and never mutated.
package config
