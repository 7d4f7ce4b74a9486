package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/square/go-jose.v2/jwt"
)

const leeway = time.Minute

type contextKey string

const callerKey contextKey = "caller"

var ErrNoCaller = errors.New("the token names no caller")

type JwtTokenParams struct {
	// Issuer is checked when not empty.
	Issuer string
}

// TokenValidator reads the caller from a bearer token. Signatures are verified by the gateway
// in front of the service, only the claims are checked here.
type TokenValidator struct {
	JwtTokenParams
	logger *zap.Logger
}

// NewTokenValidator does not verify token signatures. The service must only be reachable
// through a gateway that verifies them, otherwise any caller can be impersonated.
func NewTokenValidator(logger *zap.Logger, params JwtTokenParams) TokenValidator {
	return TokenValidator{logger: logger, JwtTokenParams: params}
}

// RequireCaller rejects requests without a valid token and stores the caller in the context.
func (t TokenValidator) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if !strings.HasPrefix(token, "Bearer ") {
			t.authError(w, errors.New("missing bearer token"))
			return
		}

		claims, standard, err := parseToken(strings.TrimPrefix(token, "Bearer "))
		if err != nil {
			t.authError(w, errors.New("failed to parse the auth token: "+err.Error()))
			return
		}

		caller, err := t.validateClaims(claims, standard)
		if err != nil {
			t.authError(w, errors.New("auth token validation: "+err.Error()))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the raw caller address stored by RequireCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey).(string)
	return caller, ok && caller != ""
}

func (t TokenValidator) authError(w http.ResponseWriter, err error) {
	t.logger.Warn(err.Error())
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(err.Error()))
}

// validateClaims checks expiry and issuer. The caller is the `principal` claim, or the subject.
func (t TokenValidator) validateClaims(claims map[string]interface{}, standard jwt.Claims) (string, error) {
	expected := jwt.Expected{Issuer: t.Issuer, Time: time.Now()}
	if err := standard.ValidateWithLeeway(expected, leeway); err != nil {
		return "", err
	}

	if principal, ok := claims["principal"].(string); ok && principal != "" {
		return principal, nil
	}
	if standard.Subject != "" {
		return standard.Subject, nil
	}
	return "", ErrNoCaller
}

func parseToken(tokenString string) (map[string]interface{}, jwt.Claims, error) {
	var claims map[string]interface{}
	var standard jwt.Claims

	token, err := jwt.ParseSigned(tokenString)
	if err != nil {
		return nil, jwt.Claims{}, err
	}

	if err := token.UnsafeClaimsWithoutVerification(&claims, &standard); err != nil {
		return nil, jwt.Claims{}, err
	}

	return claims, standard, nil
}
