package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// Stream settings for GET /vram/stream.
var (
	streamInterval    = time.Second
	streamMaxLifetime = 30 * time.Minute
)

// SetStreamOptions configures the emission cadence and maximum lifetime of
// snapshot streams. Zero values keep the current settings.
func SetStreamOptions(interval, maxLifetime time.Duration) {
	if interval > 0 {
		streamInterval = interval
	}
	if maxLifetime > 0 {
		streamMaxLifetime = maxLifetime
	}
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
