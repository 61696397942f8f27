// security.go sets protective response headers. The JSON API profile locks
// everything down; uploads and the single-page app each relax it.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds (default: 1 year)
	HSTSMaxAge int
	// HSTSIncludeSubdomains includes subdomains in HSTS
	HSTSIncludeSubdomains bool
	// HSTSPreload enables HSTS preloading
	HSTSPreload bool
	// EnableFrameOptions enables X-Frame-Options header
	EnableFrameOptions bool
	// FrameOptionsValue is the value for X-Frame-Options (DENY, SAMEORIGIN)
	FrameOptionsValue string
	// EnableContentTypeOptions enables X-Content-Type-Options: nosniff
	EnableContentTypeOptions bool
	// EnableXSSProtection enables X-XSS-Protection header
	EnableXSSProtection bool
	// ContentSecurityPolicy is the CSP header value
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string
	// PermissionsPolicy is the Permissions-Policy header value
	PermissionsPolicy string
	// CrossOriginResourcePolicy defaults to same-origin. Stored images use
	// cross-origin so the portfolio front end on another origin can embed them.
	CrossOriginResourcePolicy string
}

// SPASecurityHeadersConfig returns headers for the single-page front end
// served from server.static_dir. Its CSP allows the bundle's own scripts and
// styles and images from any https origin (Cloudinary, S3, CDN).
func SPASecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:               true,
		HSTSMaxAge:               31536000, // 1 year
		HSTSIncludeSubdomains:    true,
		EnableFrameOptions:       true,
		FrameOptionsValue:        "DENY",
		EnableContentTypeOptions: true,
		EnableXSSProtection:      true,
		ContentSecurityPolicy:    "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self'; connect-src 'self' https:",
		ReferrerPolicy:           "strict-origin-when-cross-origin",
		PermissionsPolicy:        "geolocation=(), microphone=(), camera=()",
	}
}

// APISecurityHeadersConfig returns security headers suitable for API endpoints
func APISecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:               true,
		HSTSMaxAge:               31536000,
		HSTSIncludeSubdomains:    true,
		EnableFrameOptions:       true,
		FrameOptionsValue:        "DENY",
		EnableContentTypeOptions: true,
		ContentSecurityPolicy:    "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:           "no-referrer",
	}
}

// UploadsSecurityHeadersConfig returns the API profile relaxed for stored
// images served under the local backend's URL prefix.
func UploadsSecurityHeadersConfig() SecurityHeadersConfig {
	cfg := APISecurityHeadersConfig()
	cfg.CrossOriginResourcePolicy = "cross-origin"
	return cfg
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		WriteSecurityHeaders(c, config)
		c.Next()
	}
}

// WriteSecurityHeaders sets the headers of config on the response, replacing
// any values an outer profile already wrote.
func WriteSecurityHeaders(c *gin.Context, config SecurityHeadersConfig) {
	h := c.Writer.Header()

	if config.EnableHSTS {
		hstsValue := "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hstsValue += "; includeSubDomains"
		}
		if config.HSTSPreload {
			hstsValue += "; preload"
		}
		h.Set("Strict-Transport-Security", hstsValue)
	} else {
		h.Del("Strict-Transport-Security")
	}

	setOrClear(h, "X-Frame-Options", config.FrameOptionsValue, config.EnableFrameOptions)
	setOrClear(h, "X-Content-Type-Options", "nosniff", config.EnableContentTypeOptions)
	// Legacy, still honoured by older browsers
	setOrClear(h, "X-XSS-Protection", "1; mode=block", config.EnableXSSProtection)
	setOrClear(h, "Content-Security-Policy", config.ContentSecurityPolicy, true)
	setOrClear(h, "Referrer-Policy", config.ReferrerPolicy, true)
	setOrClear(h, "Permissions-Policy", config.PermissionsPolicy, true)

	corp := config.CrossOriginResourcePolicy
	if corp == "" {
		corp = "same-origin"
	}
	h.Set("X-Permitted-Cross-Domain-Policies", "none")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", corp)
}

func setOrClear(h http.Header, key, value string, enabled bool) {
	if enabled && value != "" {
		h.Set(key, value)
		return
	}
	h.Del(key)
}
