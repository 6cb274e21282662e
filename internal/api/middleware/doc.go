// Package middleware provides HTTP middleware for the API server.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//
// CORS Configuration:
//   - DefaultCORSConfig: editor API (GET, POST)
//   - PublicReadCORSConfig: read-only public endpoints (GET from any origin)
//
// Rate Limiting:
//   - Per-IP tracking with lazy cleanup of idle clients
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
