// Package logging provides structured logging for the orchestrator using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON lines for log shipping
//   - Development: colored console output
//
// Components receive a named child logger so every line carries its origin:
//
//	logger := logging.NewDevelopment()
//	orch := logger.Named("orchestrator")
//	orch.Info("project ready", zap.String("project", "p1"))
//
// Tests use NewNop, or logtest.New to assert on emitted entries.
package logging
