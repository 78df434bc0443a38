package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kugelpos/transactional-core/infrastructure/httputil"
	"github.com/kugelpos/transactional-core/infrastructure/logging"
)

// TenantClaims is the bearer-JWT claim set consumed by tenant-scoped admin
// operations — claim tenant_id is authoritative.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type tenantIDKey struct{}

// BearerAuth verifies a tenant-scoped JWT signed with secret (HS256) and
// stashes tenant id / user id / role on the request context.
func BearerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.Unauthorized(w, "auth", "missing bearer token")
				return
			}
			claims := &TenantClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !parsed.Valid || claims.TenantID == "" {
				httputil.Unauthorized(w, "auth", "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), tenantIDKey{}, claims.TenantID)
			ctx = logging.WithUserID(ctx, claims.UserID)
			ctx = logging.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantID extracts the authenticated tenant id set by BearerAuth or APIKeyAuth.
func TenantID(r *http.Request) string {
	if v, ok := r.Context().Value(tenantIDKey{}).(string); ok {
		return v
	}
	return ""
}

// TerminalResolver resolves an API key to its owning tenant id, used by
// APIKeyAuth so terminal-initiated requests never need a bearer token.
type TerminalResolver func(ctx context.Context, apiKey string) (tenantID string, ok bool)

// APIKeyAuth resolves the X-API-Key header to a tenant id via resolve.
func APIKeyAuth(resolve TerminalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				httputil.Unauthorized(w, "auth", "missing X-API-Key header")
				return
			}
			tenantID, ok := resolve(r.Context(), key)
			if !ok {
				httputil.Unauthorized(w, "auth", "unrecognised API key")
				return
			}
			ctx := context.WithValue(r.Context(), tenantIDKey{}, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MintServiceToken mints a short-TTL HS256 token for inter-service calls
// (delivery-status callbacks, report→journal), signed with a shared secret.
func MintServiceToken(secret []byte, issuer string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyServiceToken verifies a service-to-service token minted by MintServiceToken.
func VerifyServiceToken(secret []byte, tokenStr string) error {
	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	return err
}
