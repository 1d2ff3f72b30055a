// Package cleanup provides coordinated, time-bounded shutdown for the
// supervisor process.
//
// # Overview
//
// Subsystems register named, prioritized handlers with a Registry during
// normal operation. When the process receives a termination signal, an
// uncaught fault, or an explicit stop request, the Coordinator runs every
// handler through two phases:
//
//   - Graceful phase: all handlers run concurrently, each with its own
//     sequential retry ladder and per-attempt timeout. The phase as a whole
//     is bounded by GracefulTimeout and abandoned when it expires.
//   - Force phase: handlers that did not succeed are re-run exactly once,
//     bounded by ForceTimeout.
//
// A handler that fails both phases is recorded as failed but never blocks
// completion: shutdown latency is bounded by GracefulTimeout + ForceTimeout,
// trading clean resource release for a guarantee that the process never
// hangs on a stuck handler.
//
// # Usage
//
//	registry := cleanup.NewRegistry(logger)
//	coord := cleanup.NewCoordinator(cleanup.DefaultConfig(), registry, logger)
//	bridge := cleanup.NewBridge(coord, logger)
//	bridge.InstallSignalHandlers()
//	bridge.InstallFaultHandlers()
//
//	registry.Register(cleanup.Handler{
//		Name:     "workspace-" + ws.ID,
//		Priority: 50,
//		Timeout:  5 * time.Second,
//		Run: func(ctx context.Context) error {
//			return supervisor.Terminate(ctx, ws.Process())
//		},
//	})
//
// Handlers execute in descending priority order with ties broken by
// registration order. Registering a handler under an existing name replaces
// it; registration and unregistration are rejected once shutdown has begun.
package cleanup
