// Package handlers contains reusable HTTP building blocks: health checks
// and middleware.
//
// # Health Checks
//
// The HealthChecker interface runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("store", handlers.NewPingCheck(repo))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Warn("health check failed", logger.String("reason", status.Message))
//	}
//
// # Authentication
//
// APIKeyAuth compares the X-API-Key header against a bcrypt hash, so the
// plain key never has to be stored in configuration:
//
//	auth, err := handlers.NewAPIKeyAuth("X-API-Key", os.Getenv("API_KEY_HASH"))
//	mux.Handle("POST /api/v1/...", auth.Middleware(h))
//
// # Middleware
//
// Chain composes middleware left to right:
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
package handlers
