// Package config defines the application configuration structure and loading.
// Configuration comes from an optional YAML file plus EXAMFLOW_-prefixed
// environment variables, validated with go-playground/validator.
package config
