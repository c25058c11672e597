// Package middleware provides HTTP middleware for the logscout API.
//
// Available middleware:
//   - RateLimiter: per-client token bucket rate limiting
//   - RequestID: request ID propagation into the context and response
//   - APIKey: shared-key authentication
//   - Logging: request logging
//   - CORS: permissive CORS headers
//   - Recover: panic recovery
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = rl.Middleware(handler)
package middleware
