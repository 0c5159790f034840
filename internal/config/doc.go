// Package config loads the gatherer YAML configuration.
//
// Loading happens in three layers: Load (read + ${VAR} expansion + parse),
// LoadWithDefaults (fill optional fields) and LoadAndValidate.
package config
