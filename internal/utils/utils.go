package utils

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func GetRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if pattern := rctx.RoutePattern(); pattern != "" {
		// Pattern is already available
		return pattern
	}

	routePath := r.URL.Path

	if r.URL.RawPath != "" {
		routePath = r.URL.RawPath
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return "undefined"
	}

	// tctx has the updated pattern, since Match mutates it
	return tctx.RoutePattern()
}

// StringPtr returns a pointer to a string
func StringPtr(s string) *string {
	return &s
}

// StringPtrEq compares a string pointer with a string value and returns true if they are equal.
func StringPtrEq(sp *string, s string) bool {
	return sp != nil && *sp == s
}

// IntPtr returns a pointer to an int
func IntPtr(i int) *int {
	return &i
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
