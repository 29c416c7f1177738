// Package config implements the configuration store for the live feed server
// and the feedwatch client.
//
// Values come from a compiled-in baseline, then LIVEFEED_* environment
// overrides, then an optional YAML file. The merged result is validated
// before use.
package config
