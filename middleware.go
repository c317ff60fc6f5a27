package tokenauth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// MiddlewareOption customizes Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	auth      *Authenticator
	realm     string
	devBypass *DevBypassSubject
	logger    zerolog.Logger
}

// WithRealm sets the realm advertised in WWW-Authenticate.
func WithRealm(realm string) MiddlewareOption {
	return func(m *middleware) {
		m.realm = realm
	}
}

// WithDevBypass binds subject to requests that carry no Authorization header.
func WithDevBypass(subject DevBypassSubject) MiddlewareOption {
	return func(m *middleware) {
		m.devBypass = &subject
	}
}

// WithMiddlewareLogger sets the request logger.
func WithMiddlewareLogger(l zerolog.Logger) MiddlewareOption {
	return func(m *middleware) {
		m.logger = l
	}
}

// Middleware authenticates the bearer token of every request and binds the
// resulting Caller to the request context. Rejected requests get a 401 (or a
// 503 when the verifier is unavailable).
func Middleware(auth *Authenticator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	m := &middleware{auth: auth, realm: "api", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m.wrap
}

func (m *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" && m.devBypass != nil {
			ctx := BindCaller(r.Context(), m.devBypass.ToCaller())
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		result, err := m.auth.Authenticate(r.Context(), credentialFromHeader(header))
		if err != nil {
			m.fail(w, r, err)
			return
		}
		ctx := BindCaller(r.Context(), Caller{Subject: result.Subject, Token: result.Token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	m.logger.Info().Str("path", r.URL.Path).Str("code", string(code)).Msg("request unauthenticated")

	if code == ErrCodeVerifierUnavailable {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	challenge := `Bearer realm="` + m.realm + `"`
	switch code {
	case ErrCodeCredentialExpired:
		challenge += `, error="invalid_token", error_description="token expired"`
	case ErrCodeCredentialIncorrect:
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// credentialFromHeader builds a credential from an Authorization header. A
// missing or non-bearer header yields a credential without a token value.
func credentialFromHeader(header string) Credential {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return NewCredential(CredentialJWTAccessToken, nil)
	}
	return NewAccessTokenCredential(strings.TrimSpace(token))
}
