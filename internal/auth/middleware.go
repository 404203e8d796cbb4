package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// Claims is what the service needs from a verified token.
type Claims struct {
	Subject string
	Roles   []string
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// NewVerifier prefers the OIDC issuer and falls back to the shared dev secret.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.AllowedAlgs)
	}
	if cfg.DevSecret != "" {
		return NewHMACVerifier([]byte(cfg.DevSecret)), nil
	}
	return nil, errors.New("neither OIDC_ISSUER nor AUTH_DEV_SECRET is set")
}

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string, algs []string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider for %s: %w", issuer, err)
	}

	// Access tokens carry no client audience.
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck:    true,
		SupportedSigningAlgs: algs,
	})
	return &OIDCVerifier{verifier: verifier}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Sub         string   `json:"sub"`
		Roles       []string `json:"roles"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Sub == "" {
		return nil, errors.New("token has no subject")
	}

	return &Claims{
		Subject: claims.Sub,
		Roles:   append(claims.RealmAccess.Roles, claims.Roles...),
	}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, utils.CodeUnauthorized, err.Error())
				return
			}

			claims, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, http.StatusUnauthorized, utils.CodeUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole must run after Middleware.
func RequireRole(role string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasRole(r.Context(), role) {
				log.LogSecurity("ROLE_DENIED", fmt.Sprintf("user=%s role=%s %s %s", UserID(r.Context()), role, r.Method, r.URL.Path))
				utils.WriteError(w, http.StatusForbidden, utils.CodeForbidden, "administrator role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFrom(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok {
		return c
	}
	return nil
}

// UserID returns the verified subject, or "" outside an authenticated request.
func UserID(ctx context.Context) string {
	if c := ClaimsFrom(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func HasRole(ctx context.Context, role string) bool {
	c := ClaimsFrom(ctx)
	return c != nil && c.HasRole(role)
}
