/*
Package monitoring provides Prometheus metrics for the container orchestrator.

# Overview

Collectors are registered on a private registry per Metrics value so several
orchestrators (and tests) can coexist in one process. The registry is exposed
through Handler for the bridge's /metrics route.

# Collected Metrics

  - Project setups, dependency installs and install duration
  - Dev server starts per transport mode and classified start failures
  - Sandbox messages by direction/type and in-flight correlated requests
  - VFS sync messages mirrored to the sandbox
  - Bridge HTTP requests (latency, status)

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics.InstallDuration)
	// ... run installer ...
	timer.Stop()
*/
package monitoring
