package tokenauth

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
)

func TestJWKSIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("RUN_INTEGRATION_TESTS not set to true")
	}

	jwksURL := strings.TrimSpace(os.Getenv("TOKENAUTH_JWKS_URL"))
	issuer := strings.TrimSpace(os.Getenv("TOKENAUTH_ISSUER"))
	if jwksURL == "" || issuer == "" {
		t.Fatal("TOKENAUTH_JWKS_URL and TOKENAUTH_ISSUER environment variables required")
	}
	alg := jwa.SignatureAlgorithm(os.Getenv("TOKENAUTH_ALGORITHM"))
	if alg == "" {
		alg = jwa.RS256
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys, err := NewJWKSKeys(ctx, JWKSConfig{URL: jwksURL, MinRefresh: time.Minute, HTTPTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewJWKSKeys: %v", err)
	}
	if err := keys.Warmup(ctx); err != nil {
		t.Fatalf("Warmup: %v", err)
	}

	token := strings.TrimSpace(os.Getenv("TOKENAUTH_TEST_TOKEN"))
	if token == "" {
		return
	}
	verifier, err := NewJWSVerifier(alg, keys)
	if err != nil {
		t.Fatalf("NewJWSVerifier: %v", err)
	}
	vc, err := NewVerificationContext(VerificationConfig{ExpectedIssuer: issuer, ClockSkew: time.Minute})
	if err != nil {
		t.Fatalf("NewVerificationContext: %v", err)
	}
	auth, err := NewAuthenticator(verifier, vc)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	result, err := auth.Authenticate(ctx, NewAccessTokenCredential(token))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal, _ := result.Subject.PrimaryPrincipal(); principal.ID == "" {
		t.Fatal("primary principal id empty")
	}
}
