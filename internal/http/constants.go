// Package httpx assembles the security pipeline: it maps the configured
// endpoint paths onto the credential verifier, the federated identity
// resolver, and the outcome handlers, and carries the shared HTTP plumbing
// (JSON errors, metrics, middleware).
package httpx

// Content types
const (
	// ContentTypeJSON is the MIME type for JSON responses with UTF-8 charset
	ContentTypeJSON = "application/json; charset=utf-8"
	// ContentTypeFormURLEncoded is the MIME type for URL-encoded form data
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// HTTP headers
const (
	// HeaderContentType is the Content-Type header name
	HeaderContentType = "Content-Type"
	// HeaderLocation is the Location header name for redirects
	HeaderLocation = "Location"
)

// Form fields accepted by the login and exchange endpoints
const (
	// FormIdentifier is the login form field carrying the username
	FormIdentifier = "identifier"
	// FormSecret is the login form field carrying the password
	FormSecret = "secret"
	// FormCode is the exchange form field carrying the one-time code
	FormCode = "code"
)
