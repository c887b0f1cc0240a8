// Package middleware provides the HTTP middleware of the ddmark API server.
package middleware

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler
