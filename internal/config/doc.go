// Package config provides 12-factor configuration for the container orchestrator.
//
// Configuration is loaded from environment variables with defaults. A `.env`
// file in the working directory is applied first when present, and an optional
// YAML file can overlay the result (see LoadFile).
//
// Configuration Sections:
//   - Runtime: working directory, transport mode, preview port range
//   - Bridge: local interceptor listener and route prefix
//   - Sandbox: isolated origin URL, parent origins, handshake/request timeouts
//   - Installer: package registry endpoint and retry policy
//   - Storage: durable client storage location and hash cache size
//   - ImportMap: CDN used for the fallback dependency resolution map
//   - Logging: log level and output format
//   - RateLimit: per-IP limits on the preview bridge
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("serving %s previews from %s\n", cfg.Runtime.Mode, cfg.Runtime.WorkDir)
//
// Environment Variables:
//   - DEVC_WORKDIR, DEVC_MODE, DEVC_PORT_BASE, DEVC_PORT_SPAN
//   - BRIDGE_ADDR, BRIDGE_PREFIX
//   - SANDBOX_URL, SANDBOX_HOST_ADDR, SANDBOX_PARENT_ORIGINS, SANDBOX_*_TIMEOUT
//   - REGISTRY_URL, REGISTRY_RETRIES
//   - STORAGE_PATH, HASH_CACHE_SIZE
//   - IMPORT_MAP_CDN
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
