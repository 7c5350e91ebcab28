// Package security collects the protective plumbing around the OAuth endpoints:
// audit logging with hashed user identifiers, per-client-IP rate limiting,
// request ID propagation, response security headers and encryption of stored
// credentials at rest.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per identifier (usually the client IP).
// The number of tracked identifiers is bounded; when the bound is reached the
// least recently used bucket is evicted, and idle buckets are swept periodically.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // respond with 429
//	}
//
// # Encryption at rest
//
// Encryptor seals stored values with AES-256-GCM. Keys are 32 bytes, supplied
// base64-encoded (KeyFromBase64) or derived from a passphrase with HKDF
// (DeriveKey).
package security
