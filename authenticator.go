package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Authentication is the outcome of a successful Authenticate call.
type Authentication struct {
	Subject *Subject
	Token   *SignedToken
}

// Authenticator turns JWT access token credentials into subjects. It holds no
// per-call state and is safe for concurrent use when its verifier is.
type Authenticator struct {
	verifier TokenVerifier
	vc       VerificationContext
	logger   zerolog.Logger
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger used to record rejected credentials.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = l
	}
}

// NewAuthenticator builds an authenticator delegating trust decisions to verifier.
func NewAuthenticator(verifier TokenVerifier, vc VerificationContext, opts ...Option) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	a := &Authenticator{verifier: verifier, vc: vc, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate verifies credential and returns the subject it proves. Failures
// are returned as *Error carrying one of the ErrCode* codes.
func (a *Authenticator) Authenticate(ctx context.Context, credential Credential) (*Authentication, error) {
	raw, err := tokenString(credential)
	if err != nil {
		a.reject(err)
		return nil, err
	}

	token, err := ParseSignedToken(raw)
	if err != nil {
		e := newError(ErrCodeCredentialIncorrect, err)
		e.Reasons = NewFailureReasons(ReasonMalformed)
		a.reject(e)
		return nil, e
	}

	reasons, err := a.verifier.Verify(ctx, token, a.vc)
	if err != nil {
		e := newError(ErrCodeVerifierUnavailable, err)
		a.reject(e)
		return nil, e
	}
	if !reasons.Empty() {
		code := ErrCodeCredentialIncorrect
		if reasons.Has(ReasonExpired) {
			code = ErrCodeCredentialExpired
		}
		e := newReasonsError(code, reasons)
		a.reject(e)
		return nil, e
	}

	claims := token.Claims()
	subject := NewSubject(
		[]Principal{{Type: PrincipalPrimary, ID: claims.Subject, Roles: claims.Roles()}},
		[]Credential{credential},
	)
	return &Authentication{Subject: subject, Token: token}, nil
}

func (a *Authenticator) reject(err error) {
	var e *Error
	if !errors.As(err, &e) {
		return
	}
	evt := a.logger.Debug().Str("code", string(e.Code))
	if len(e.Reasons) > 0 {
		reasons := make([]string, 0, len(e.Reasons))
		for _, r := range e.Reasons.List() {
			reasons = append(reasons, string(r))
		}
		evt = evt.Strs("reasons", reasons)
	}
	if e.Err != nil {
		evt = evt.AnErr("cause", e.Err)
	}
	evt.Msg("credential rejected")
}

// tokenString extracts the encoded token from credential before any parsing.
func tokenString(credential Credential) (string, error) {
	value, ok := credential.Value(TokenValueKey)
	if !ok || value == nil {
		return "", newError(ErrCodeCredentialMissing, nil)
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return "", newError(ErrCodeCredentialIncorrect, fmt.Errorf("token value has type %T", value))
	}
	if strings.TrimSpace(raw) == "" {
		return "", newError(ErrCodeCredentialMissing, nil)
	}
	if credential.Type() != CredentialJWTAccessToken {
		return "", newError(ErrCodeCredentialIncorrect, fmt.Errorf("unsupported credential type %s", credential.Type()))
	}
	return raw, nil
}
