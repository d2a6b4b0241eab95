// Package config handles configuration loading for solace-core.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SOLACE_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	autosave:
//	  delay: "1s"
//	auth:
//	  code_ttl: "10m"
//	  credential_ttl: "720h"
//	gateway:
//	  request_timeout: "60s"
//
// # Configuration Sections
//
// Gateway:
//
//	gateway:
//	  inference_url: "https://inference.solace.app/v1/respond"
//	  request_timeout: "60s"
//
// Database:
//
//	database:
//	  path: "/var/lib/solace/solace.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${SOLACE_JWT_SECRET}"  # Required, >= 32 bytes
//	  code_length: 6
//	  code_ttl: "10m"
//	  credential_ttl: "720h"
//
// Autosave:
//
//	autosave:
//	  delay: "1s"        # Debounce window for draft writes
//	  min_meaningful: 3  # Residual runes required before persisting
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/solace/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
