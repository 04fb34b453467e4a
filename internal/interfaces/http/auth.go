package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wordmine/wordmine/internal/errs"
)

type contextKey string

const (
	ctxKeyUserID    contextKey = "user_id"
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyAdmin     contextKey = "admin"
)

// TokenVerifier resolves a bearer token to a user id. The production
// verifier lives outside the core; StaticVerifier ships for dev and tests.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticVerifier maps fixed tokens to user ids.
type StaticVerifier map[string]string

// Verify implements TokenVerifier.
func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", errs.Validation("unknown token")
}

// authMiddleware requires a bearer token and stores the resolved user id on
// the request context. The admin token also passes and flags the request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Kind: "unauthorized"})
			return
		}

		ctx := r.Context()
		if s.isAdminToken(token) {
			ctx = context.WithValue(ctx, ctxKeyAdmin, true)
			ctx = context.WithValue(ctx, ctxKeyUserID, "admin")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		userID, err := s.verifier.Verify(ctx, token)
		if err != nil || userID == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid bearer token", Kind: "unauthorized"})
			return
		}
		ctx = context.WithValue(ctx, ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware restricts a route to the admin token.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r.Context()) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin token required", Kind: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isAdminToken(token string) bool {
	return s.adminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func userIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func isAdmin(ctx context.Context) bool {
	v, ok := ctx.Value(ctxKeyAdmin).(bool)
	return ok && v
}
