// Package main is the entry point for the devcontainer CLI.
//
// It turns a project directory into a previewable dev server held entirely
// in memory, and can run the isolated sandbox origin on its own.
//
// Architecture:
//
//	serve: disk → VFS → installer → dev server → bridge (local)
//	                                           → sandbox channel → sandbox-host
//
// Configuration:
//   - Environment variables (12-factor), optionally from .env
//   - YAML overlay via --config
//   - CLI flags override both
//
// Usage:
//
//	# Serve a project same-origin
//	devcontainer serve ./my-app
//
//	# Serve through an isolated sandbox origin
//	devcontainer sandbox-host --addr 127.0.0.1:8788 &
//	SANDBOX_URL=ws://127.0.0.1:8788/ws devcontainer serve ./my-app --mode sandbox
//
//	# Explain a dev server error
//	devcontainer classify "Error: Cannot find module 'react'"
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
