// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// The load generator reads a ClientConfig and the chat server a ServerConfig;
// an empty path yields the defaults.
package config
