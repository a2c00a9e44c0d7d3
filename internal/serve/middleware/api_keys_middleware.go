package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
)

type ContextKey string

const (
	CustomerContextKey ContextKey = "authenticated_customer"
	ResellerContextKey ContextKey = "authenticated_reseller"
)

// extractAPIKey accepts either a Bearer token or the X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	authHeader := r.Header.Get("Authorization")
	if parts := strings.Split(authHeader, " "); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return authHeader
}

// AdminAuthMiddleware guards the operational endpoints with the shared admin
// key. The comparison is constant time.
func AdminAuthMiddleware(adminAPIKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			if adminAPIKey == "" {
				httperror.Unauthorized("Admin API is not configured.", nil, nil).Render(rw)
				return
			}

			apiKey := extractAPIKey(req)
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminAPIKey)) != 1 {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			next.ServeHTTP(rw, req)
		})
	}
}

// CustomerAuthMiddleware resolves the caller's customer record from its API
// key and stores it on the request context.
func CustomerAuthMiddleware(models *data.Models) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			apiKey := extractAPIKey(req)
			if apiKey == "" {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			ctx := req.Context()
			customer, err := models.Customers.GetByAPIKey(ctx, models.DBConnectionPool, apiKey)
			if err != nil {
				if !errors.Is(err, data.ErrRecordNotFound) {
					log.Ctx(ctx).Errorf("validating customer api key: %v", err)
				}
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			ctx = context.WithValue(ctx, CustomerContextKey, customer)
			ctx = log.Set(ctx, log.Ctx(ctx).WithField("customer_id", customer.ID))
			next.ServeHTTP(rw, req.WithContext(ctx))
		})
	}
}

// ResellerAuthMiddleware resolves an active reseller from its API key.
func ResellerAuthMiddleware(models *data.Models) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			apiKey := extractAPIKey(req)
			if apiKey == "" {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			ctx := req.Context()
			reseller, err := models.Resellers.GetByAPIKey(ctx, models.DBConnectionPool, apiKey)
			if err != nil {
				if !errors.Is(err, data.ErrRecordNotFound) {
					log.Ctx(ctx).Errorf("validating reseller api key: %v", err)
				}
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			ctx = context.WithValue(ctx, ResellerContextKey, reseller)
			ctx = log.Set(ctx, log.Ctx(ctx).WithField("reseller_id", reseller.ID))
			next.ServeHTTP(rw, req.WithContext(ctx))
		})
	}
}

// CustomerFromContext returns the customer injected by CustomerAuthMiddleware.
func CustomerFromContext(ctx context.Context) (*data.Customer, bool) {
	customer, ok := ctx.Value(CustomerContextKey).(*data.Customer)
	return customer, ok
}

// ResellerFromContext returns the reseller injected by ResellerAuthMiddleware.
func ResellerFromContext(ctx context.Context) (*data.Reseller, bool) {
	reseller, ok := ctx.Value(ResellerContextKey).(*data.Reseller)
	return reseller, ok
}
