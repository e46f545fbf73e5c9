// Package config loads the service configuration from defaults, an optional
// config.yaml and ANNOTATOR_-prefixed environment variables, and validates
// it before any component is built.
package config
