// Package admin guards operator endpoints with short-lived HS256 bearer tokens.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "garagedata/pkg/domain-errors"
	"garagedata/pkg/platform/httputil"
	"garagedata/pkg/requestcontext"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mssola/useragent"
)

// Audience is the aud claim every admin token must carry.
const Audience = "garagedata-admin"

type (
	contextKeyAdminActorID struct{}
	contextKeyAdminClient  struct{}
)

// ContextKeyAdminActorID is exported for use in handlers and tests.
var ContextKeyAdminActorID = contextKeyAdminActorID{}

// GetAdminActorID returns the token subject of an authenticated admin request,
// or "" outside one.
func GetAdminActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ContextKeyAdminActorID).(string); ok {
		return actorID
	}
	return ""
}

// GetAdminClient returns a short description of the operator's client
// ("resolverctl", "curl", "Firefox/Linux"), or "" when unknown.
func GetAdminClient(ctx context.Context) string {
	if client, ok := ctx.Value(contextKeyAdminClient{}).(string); ok {
		return client
	}
	return ""
}

// IssueToken signs an admin token for actor valid for ttl from now.
func IssueToken(signingKey []byte, actor string, ttl time.Duration, now time.Time) (string, error) {
	if len(signingKey) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "signing key is required")
	}
	if strings.TrimSpace(actor) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   actor,
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(signingKey)
}

// ParseToken validates tokenString and returns its subject.
func ParseToken(signingKey []byte, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid admin token")
	}
	if claims.Subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "admin token has no subject")
	}
	return claims.Subject, nil
}

// RequireAdminToken rejects requests without a valid admin bearer token.
// The token subject becomes the admin actor for audit attribution.
func RequireAdminToken(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, err := authenticate(signingKey, r.Header.Get("Authorization"))
			if err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAdminActorID, actor)
			ctx = context.WithValue(ctx, contextKeyAdminClient{}, describeClient(r.UserAgent()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errMissingBearer = errors.New("missing bearer token")

func authenticate(signingKey []byte, header string) (string, error) {
	if len(signingKey) == 0 {
		return "", errors.New("admin api disabled")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingBearer
	}
	return ParseToken(signingKey, strings.TrimSpace(raw))
}

// describeClient reduces a User-Agent header to browser/OS for CLI tools
// and browsers alike.
func describeClient(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	name, _ := ua.Browser()
	if ua.Bot() || name == "" {
		// Non-browser tools like "resolverctl/1.0" or "curl/8.5.0".
		product, _, _ := strings.Cut(userAgent, "/")
		return strings.TrimSpace(product)
	}
	if os := ua.OS(); os != "" {
		return name + "/" + os
	}
	return name
}
