package tokenauth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testNow    = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
)

func fixedClock(at time.Time) jwt.Clock {
	return jwt.ClockFunc(func() time.Time { return at })
}

func newTestContext(t *testing.T, at time.Time, skew time.Duration, required ...string) VerificationContext {
	t.Helper()
	vc, err := NewVerificationContext(VerificationConfig{
		ExpectedIssuer: "auth.example",
		ClockSkew:      skew,
		RequiredClaims: required,
		Clock:          fixedClock(at),
	})
	if err != nil {
		t.Fatalf("NewVerificationContext: %v", err)
	}
	return vc
}

func newHMACVerifier(t *testing.T) *JWSVerifier {
	t.Helper()
	v, err := NewJWSVerifier(jwa.HS256, NewStaticKey(testSecret, ""))
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	return v
}

func newHMACSigner(t *testing.T) *KeySigner {
	t.Helper()
	s, err := NewKeySigner(jwa.HS256, testSecret)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	return s
}

func newTestIssuer(t *testing.T, roles RoleSource, opts ...IssuerOption) *CredentialIssuer {
	t.Helper()
	if roles != nil {
		opts = append([]IssuerOption{WithRoleSource(roles)}, opts...)
	}
	issuer, err := NewCredentialIssuer(IssuerConfig{
		Issuer:          "auth.example",
		ValidFromOffset: 0,
		ValidToOffset:   time.Hour,
		Clock:           fixedClock(testNow),
	}, newHMACSigner(t), opts...)
	if err != nil {
		t.Fatalf("NewCredentialIssuer: %v", err)
	}
	return issuer
}

func newSubject(id string) *Subject {
	return NewSubject([]Principal{{Type: PrincipalPrimary, ID: id}}, nil)
}

// signClaims builds and HMAC-signs a token with the test secret.
func signClaims(t *testing.T, header Header, claims Claims) *SignedToken {
	t.Helper()
	if header.Algorithm == "" {
		header.Algorithm = jwa.HS256
	}
	unsigned, err := NewUnsignedToken(header, claims)
	if err != nil {
		t.Fatalf("NewUnsignedToken: %v", err)
	}
	sig, err := newHMACSigner(t).Sign(context.Background(), unsigned.SigningInput())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return NewSignedToken(unsigned, sig)
}
