// Package server provides the HTTP exposition surface.
//
// Available endpoints:
//   - /           : Landing page showing exporter status
//   - /metrics    : Prometheus metrics endpoint
//   - /health     : Liveness probe (always returns 200)
//   - /ready      : Readiness probe (returns 200 only after the first
//     full poll cycle has completed)
//
// The /metrics handler serves the registry the collector writes limit
// gauges into, so every value set during a poll cycle is visible on the
// next scrape with no buffering in between.
//
// The server is configured with sensible timeout defaults (15s read/write,
// 60s idle) and supports graceful shutdown:
//
//	srv := server.NewServer(cfg, coll, registry, log)
//
//	serverErrors := make(chan error, 1)
//	go func() {
//		serverErrors <- srv.Start()
//	}()
//
//	// ... on shutdown signal:
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := srv.Shutdown(ctx); err != nil {
//		log.Error("Error during shutdown", "error", err)
//	}
package server
