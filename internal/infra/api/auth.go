package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"astro-referrals/internal/infra/logging"
)

// ServiceClaims identify the calling backend. Only HS256 tokens signed with
// the shared secret and issued by the configured issuer are accepted.
type ServiceClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type ServiceAuth struct {
	secret []byte
	issuer string
	log    *zerolog.Logger
}

func NewServiceAuth(secret, issuer string, logger *zerolog.Logger) *ServiceAuth {
	compLog := logger.With().Str("component", "ServiceAuth").Logger()
	return &ServiceAuth{secret: []byte(secret), issuer: issuer, log: &compLog}
}

// Mint signs a token for a caller; used by tooling and tests.
func (a *ServiceAuth) Mint(subject, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *ServiceAuth) ParseFromRequest(r *http.Request) (*ServiceClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *ServiceAuth) parse(tok string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Require rejects requests without a valid service token.
func (a *ServiceAuth) Require() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(a.secret) == 0 {
				a.log.Error().Msg("service token secret is not configured")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				l := logging.With(r.Context(), a.log)
				l.Debug().Err(err).Msg("rejected service token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := logging.WithCaller(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
