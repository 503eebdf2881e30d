// Package auth verifies bearer tokens and carries the calling team through
// the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("access token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrAdminOnly    = errors.New("admin access required")
)

// Identity is the authenticated caller
type Identity struct {
	TeamID   int64
	TeamName string
	IsAdmin  bool
}

// Claims is the JWT body issued at login
type Claims struct {
	jwt.RegisteredClaims
	TeamID   int64  `json:"teamId"`
	TeamName string `json:"teamName"`
	IsAdmin  bool   `json:"is_admin"`
}

// Config holds the HMAC secret and token lifetime
type Config struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"JWT_TTL"`
}

// Verifier signs and parses HS256 tokens
type Verifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier; an empty secret is rejected
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Verifier{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for id
func (v *Verifier) Issue(id Identity) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", id.TeamID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		TeamID:   id.TeamID,
		TeamName: id.TeamName,
		IsAdmin:  id.IsAdmin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates token and returns the identity it carries
func (v *Verifier) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.TeamID == 0 {
		return Identity{}, fmt.Errorf("%w: missing team", ErrInvalidToken)
	}
	return Identity{TeamID: claims.TeamID, TeamName: claims.TeamName, IsAdmin: claims.IsAdmin}, nil
}

// FromAuthorization extracts the token from an "Authorization: Bearer" header
func FromAuthorization(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type ctxKey struct{}

// WithIdentity stores id on ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the interceptor
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireTeam returns the calling team or an Unauthenticated connect error
func RequireTeam(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, connect.NewError(connect.CodeUnauthenticated, ErrMissingToken)
	}
	return id, nil
}

// RequireAdmin is RequireTeam plus the admin claim
func RequireAdmin(ctx context.Context) (Identity, error) {
	id, err := RequireTeam(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.IsAdmin {
		return Identity{}, connect.NewError(connect.CodePermissionDenied, ErrAdminOnly)
	}
	return id, nil
}

// NewInterceptor rejects unary calls without a valid bearer token
func NewInterceptor(v *Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			id, err := v.Parse(FromAuthorization(req.Header().Get("Authorization")))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithIdentity(ctx, id), req)
		}
	}
}

// NewBearerInterceptor attaches token to every outgoing client call
func NewBearerInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient && token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
