// Package middleware provides the gin middleware shared by the preview
// bridge and the sandbox host.
//
//   - CORS: origin allow-list for parent pages embedding a preview
//   - RateLimit: per-client token bucket with idle eviction
//   - Recovery: panic recovery logged through zap
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.Sandbox.ParentOrigins)))
//	router.Use(middleware.RateLimit(cfg.RateLimit))
package middleware
