// Package config loads engine configuration from files and environment
// variables via viper. Precedence is explicit file values, then TASKMESH_*
// environment variables, then defaults.
package config
