package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"okinoko_treasury/contract"
	"okinoko_treasury/sdk"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenService signs and checks HS256 tokens whose subject is the caller identity.
type TokenService struct {
	signingKey []byte
	issuer     string
}

func NewTokenService(signingKey, issuer string) *TokenService {
	return &TokenService{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue mints a token for identity, valid for ttl.
// Example payload: tokens.Issue("principal:alice", time.Hour)
func (s *TokenService) Issue(identity sdk.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identity.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	})
	return token.SignedString(s.signingKey)
}

// Validate returns the identity a token was issued for.
func (s *TokenService) Validate(tokenString string) (sdk.Address, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.Join(ErrUnauthorized, errors.New("token has expired"))
		}
		return "", errors.Join(ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return "", ErrUnauthorized
	}
	identity := sdk.Address(claims.Subject)
	if !identity.IsValid() {
		return "", errors.Join(ErrUnauthorized, errors.New("token subject is not an identity"))
	}
	return identity, nil
}

// RequireCaller authenticates the bearer token and attaches the caller
// identity for the engine.
func RequireCaller(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token", "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, &errorView{Kind: "Unauthorized", Message: "missing or invalid Authorization header"})
				return
			}
			caller, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token", "error", err, "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, &errorView{Kind: "Unauthorized", Message: "invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(contract.WithCaller(ctx, caller)))
		})
	}
}
