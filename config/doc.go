// Package config loads and validates runtime configuration.
//
// Configuration is layered: a YAML file establishes the base, a .env
// file fills gaps, and CHAINKIT_ prefixed environment variables win
// over both. Applications embed RuntimeConfig in their own structs and
// load with:
//
//	var cfg AppConfig
//	err := config.Load("my-service", &cfg)
package config
