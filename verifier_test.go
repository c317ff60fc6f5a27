package tokenauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func TestJWSVerifier_Reasons(t *testing.T) {
	verifier := newHMACVerifier(t)
	vc := newTestContext(t, testNow, DefaultClockSkew, "sub")

	valid := Claims{Issuer: "auth.example", Subject: "user-1", ValidFrom: testNow.Add(-time.Minute), ValidTo: testNow.Add(time.Hour)}

	tampered := func() *SignedToken {
		tok := signClaims(t, DefaultHeader(), valid)
		other := signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "admin", ValidTo: testNow.Add(time.Hour)})
		parts := strings.Split(tok.Encode(), ".")
		otherParts := strings.Split(other.Encode(), ".")
		parsed, err := ParseSignedToken(parts[0] + "." + otherParts[1] + "." + parts[2])
		if err != nil {
			t.Fatalf("ParseSignedToken: %v", err)
		}
		return parsed
	}

	cases := []struct {
		name  string
		token *SignedToken
		want  []FailureReason
	}{
		{"valid", signClaims(t, DefaultHeader(), valid), nil},
		{"within skew", signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "u", ValidTo: testNow.Add(-10 * time.Second)}), nil},
		{"expired", signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "u", ValidTo: testNow.Add(-time.Hour)}), []FailureReason{ReasonExpired}},
		{"not yet valid", signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "u", ValidFrom: testNow.Add(time.Hour), ValidTo: testNow.Add(2 * time.Hour)}), []FailureReason{ReasonNotYetValid}},
		{"issuer mismatch", signClaims(t, DefaultHeader(), Claims{Issuer: "evil.example", Subject: "u"}), []FailureReason{ReasonIssuerMismatch}},
		{"missing required claim", signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example"}), []FailureReason{ReasonMissingClaim}},
		{"tampered payload", tampered(), []FailureReason{ReasonBadSignature}},
		{"expired and wrong issuer", signClaims(t, DefaultHeader(), Claims{Issuer: "evil.example", Subject: "u", ValidTo: testNow.Add(-time.Hour)}), []FailureReason{ReasonExpired, ReasonIssuerMismatch}},
		{"algorithm mismatch", signClaims(t, Header{Algorithm: jwa.HS384}, valid), []FailureReason{ReasonAlgorithmMismatch}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reasons, err := verifier.Verify(context.Background(), tc.token, vc)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			want := tc.want
			if want == nil {
				want = []FailureReason{}
			}
			if diff := cmp.Diff(want, reasons.List()); diff != "" {
				t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJWSVerifier_ZeroSkewIsStrict(t *testing.T) {
	token := signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "u", ValidTo: testNow.Add(-10 * time.Second)})

	strict := newTestContext(t, testNow, 0)
	if strict.ClockSkew() != 0 {
		t.Fatalf("expected zero skew, got %s", strict.ClockSkew())
	}
	reasons, err := newHMACVerifier(t).Verify(context.Background(), token, strict)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff := cmp.Diff([]FailureReason{ReasonExpired}, reasons.List()); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}

	_, err = newAuthenticator(t, newHMACVerifier(t), strict).Authenticate(context.Background(), NewAccessTokenCredential(token.Encode()))
	expectCode(t, err, ErrCodeCredentialExpired)

	lenient := newTestContext(t, testNow, DefaultClockSkew)
	if _, err := newAuthenticator(t, newHMACVerifier(t), lenient).Authenticate(context.Background(), NewAccessTokenCredential(token.Encode())); err != nil {
		t.Fatalf("expected token within skew to authenticate: %v", err)
	}
}

func TestJWSVerifier_ReportsEveryTimeFailure(t *testing.T) {
	cases := []struct {
		name   string
		claims Claims
		want   []FailureReason
	}{
		{
			name:   "issued in future and expired",
			claims: Claims{Issuer: "auth.example", Subject: "u", IssuedAt: testNow.Add(time.Hour), ValidTo: testNow.Add(-time.Minute)},
			want:   []FailureReason{ReasonExpired, ReasonIssuedInFuture},
		},
		{
			name:   "not yet valid and expired",
			claims: Claims{Issuer: "auth.example", Subject: "u", ValidFrom: testNow.Add(time.Hour), ValidTo: testNow.Add(-time.Minute)},
			want:   []FailureReason{ReasonExpired, ReasonNotYetValid},
		},
		{
			name:   "every time claim wrong",
			claims: Claims{Issuer: "auth.example", Subject: "u", IssuedAt: testNow.Add(time.Hour), ValidFrom: testNow.Add(time.Hour), ValidTo: testNow.Add(-time.Minute)},
			want:   []FailureReason{ReasonExpired, ReasonIssuedInFuture, ReasonNotYetValid},
		},
	}
	vc := newTestContext(t, testNow, 0)
	auth := newAuthenticator(t, newHMACVerifier(t), vc)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := signClaims(t, DefaultHeader(), tc.claims)
			reasons, err := newHMACVerifier(t).Verify(context.Background(), token, vc)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if diff := cmp.Diff(tc.want, reasons.List()); diff != "" {
				t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
			}
			_, err = auth.Authenticate(context.Background(), NewAccessTokenCredential(token.Encode()))
			expectCode(t, err, ErrCodeCredentialExpired)
		})
	}
}

func TestJWSVerifier_Deterministic(t *testing.T) {
	verifier := newHMACVerifier(t)
	vc := newTestContext(t, testNow, 0)
	token := signClaims(t, DefaultHeader(), Claims{Issuer: "x", Subject: "u", ValidTo: testNow.Add(-time.Minute)})

	first, err := verifier.Verify(context.Background(), token, vc)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	second, err := verifier.Verify(context.Background(), token, vc)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff := cmp.Diff(first.List(), second.List()); diff != "" {
		t.Fatalf("verification not deterministic:\n%s", diff)
	}
}

func TestJWSVerifier_WrongKey(t *testing.T) {
	verifier, err := NewJWSVerifier(jwa.HS256, NewStaticKey([]byte("another-secret-another-secret-00"), ""))
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	token := signClaims(t, DefaultHeader(), Claims{Issuer: "auth.example", Subject: "u"})
	reasons, err := verifier.Verify(context.Background(), token, newTestContext(t, testNow, 0))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !reasons.Has(ReasonBadSignature) {
		t.Fatalf("expected BAD_SIGNATURE, got %v", reasons.List())
	}
}

func TestJWSVerifier_StaticKeyID(t *testing.T) {
	verifier, err := NewJWSVerifier(jwa.HS256, NewStaticKey(testSecret, "k1"))
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	token := signClaims(t, Header{KeyID: "k2"}, Claims{Issuer: "auth.example", Subject: "u"})
	reasons, err := verifier.Verify(context.Background(), token, newTestContext(t, testNow, 0))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff := cmp.Diff([]FailureReason{ReasonUnknownKey}, reasons.List()); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestJWSVerifier_JWKS(t *testing.T) {
	privateKey, jwksURL, kid := newJWKS(t)
	keys, err := NewJWKSKeys(context.Background(), JWKSConfig{URL: jwksURL, MinRefresh: time.Second, HTTPTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewJWKSKeys: %v", err)
	}
	if err := keys.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	verifier, err := NewJWSVerifier(jwa.RS256, keys)
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	signer, err := NewKeySigner(jwa.RS256, privateKey)
	if err != nil {
		t.Fatalf("NewKeySigner: %v", err)
	}
	issuer, err := NewCredentialIssuer(IssuerConfig{Issuer: "auth.example", KeyID: kid, Clock: fixedClock(testNow)}, signer)
	if err != nil {
		t.Fatalf("NewCredentialIssuer: %v", err)
	}
	vc := newTestContext(t, testNow, 0)

	t.Run("known kid", func(t *testing.T) {
		token, err := issuer.CreateToken(context.Background(), newSubject("svc-1"))
		if err != nil {
			t.Fatalf("CreateToken: %v", err)
		}
		reasons, err := verifier.Verify(context.Background(), token, vc)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if !reasons.Empty() {
			t.Fatalf("unexpected reasons %v", reasons.List())
		}
	})

	t.Run("unknown kid", func(t *testing.T) {
		unsigned, err := NewUnsignedToken(Header{Algorithm: jwa.RS256, KeyID: "rotated-away"}, Claims{Issuer: "auth.example", Subject: "svc-1"})
		if err != nil {
			t.Fatalf("NewUnsignedToken: %v", err)
		}
		sig, err := signer.Sign(context.Background(), unsigned.SigningInput())
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		reasons, err := verifier.Verify(context.Background(), NewSignedToken(unsigned, sig), vc)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if !reasons.Has(ReasonUnknownKey) {
			t.Fatalf("expected UNKNOWN_KEY, got %v", reasons.List())
		}
	})
}

func TestJWSVerifier_JWKSUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	keys, err := NewJWKSKeys(context.Background(), JWKSConfig{URL: server.URL, HTTPTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewJWKSKeys: %v", err)
	}
	verifier, err := NewJWSVerifier(jwa.RS256, keys)
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	auth := newAuthenticator(t, verifier, newTestContext(t, testNow, 0))
	token := signClaims(t, Header{Algorithm: jwa.RS256}, Claims{Issuer: "auth.example", Subject: "u"})

	_, err = auth.Authenticate(context.Background(), NewAccessTokenCredential(token.Encode()))
	expectCode(t, err, ErrCodeVerifierUnavailable)
}

func TestNewVerificationContext(t *testing.T) {
	if _, err := NewVerificationContext(VerificationConfig{}); err == nil {
		t.Fatalf("expected error without issuer")
	}
	if _, err := NewVerificationContext(VerificationConfig{ExpectedIssuer: "a", ClockSkew: -time.Second}); err == nil {
		t.Fatalf("expected error for negative skew")
	}
	if _, err := NewVerificationContext(VerificationConfig{ExpectedIssuer: "a", RequiredClaims: []string{" "}}); err == nil {
		t.Fatalf("expected error for blank required claim")
	}

	vc, err := NewVerificationContext(VerificationConfig{ExpectedIssuer: " a ", RequiredClaims: []string{"sub", "roles", "sub"}, Clock: fixedClock(testNow)})
	if err != nil {
		t.Fatalf("NewVerificationContext: %v", err)
	}
	if vc.ExpectedIssuer() != "a" || vc.ClockSkew() != 0 || !vc.ReferenceTime().Equal(testNow) {
		t.Fatalf("unexpected context %+v", vc)
	}
	if diff := cmp.Diff([]string{"roles", "sub"}, vc.RequiredClaims()); diff != "" {
		t.Fatalf("required claims mismatch (-want +got):\n%s", diff)
	}
}

func newJWKS(t *testing.T) (*rsa.PrivateKey, string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	const kid = "test-key"
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("set alg: %v", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("add key: %v", err)
	}

	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)

	return key, server.URL, kid
}
