package module

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emrgen/docview/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	authorization = "Authorization"
	bearer        = "Bearer "
)

var (
	ErrNoSecret     = errors.New("capability secret not configured")
	ErrInvalidToken = errors.New("invalid capability token")
)

type callerKey struct{}

type capabilityClaims struct {
	Capability string `json:"cap"`
	jwt.RegisteredClaims
}

// CapabilityIssuer mints and verifies HS256 tokens carrying the admin capability.
type CapabilityIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

func NewCapabilityIssuer(secret string, ttl time.Duration) *CapabilityIssuer {
	return &CapabilityIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Issue returns a signed admin token for subject and its expiry.
func (i *CapabilityIssuer) Issue(subject string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}

	now := i.clock()
	expiresAt := now.Add(i.ttl)
	claims := capabilityClaims{
		Capability: service.CapabilityAdmin.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, expiresAt, nil
}

// Verify checks a token and returns the caller it authenticates.
func (i *CapabilityIssuer) Verify(token string) (service.Caller, error) {
	if len(i.secret) == 0 {
		return service.PublicCaller(), ErrNoSecret
	}

	var claims capabilityClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock))
	if err != nil {
		return service.PublicCaller(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Capability != service.CapabilityAdmin.String() {
		return service.PublicCaller(), fmt.Errorf("%w: unknown capability %q", ErrInvalidToken, claims.Capability)
	}

	return service.AdminCaller(claims.Subject), nil
}

// Middleware attaches the authenticated caller to the request context. Requests
// without a token are public; requests with a bad token are rejected.
func Middleware(issuer *CapabilityIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken, err := accessTokenFromHeader(r, authorization)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := issuer.Verify(accessToken)
			if err != nil {
				logrus.Warnf("rejected capability token from %s: %v", r.RemoteAddr, err)
				http.Error(w, "invalid capability token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller service.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller of the request, public when unauthenticated.
func CallerFromContext(ctx context.Context) service.Caller {
	caller, ok := ctx.Value(callerKey{}).(service.Caller)
	if !ok {
		return service.PublicCaller()
	}

	return caller
}

func accessTokenFromHeader(r *http.Request, header string) (string, error) {
	val := r.Header.Get(header)
	if val == "" {
		return "", errors.New("header not found")
	}

	if !strings.HasPrefix(val, bearer) {
		return "", errors.New("bearer prefix not found")
	}

	authToken := strings.TrimSpace(val[len(bearer):])
	if authToken == "" {
		return "", errors.New("authToken not found")
	}

	return authToken, nil
}
