package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrUnknownKey reports that no key matches a token header.
var ErrUnknownKey = errors.New("unknown key")

// KeyResolver returns the verification key for a token header.
type KeyResolver interface {
	Key(ctx context.Context, header Header) (any, error)
}

// StaticKey resolves every header to the same key. For HMAC algorithms the key
// is the shared secret; otherwise it is a public key.
type StaticKey struct {
	key   any
	keyID string
}

// NewStaticKey returns a resolver for key. If keyID is non-empty, tokens must
// carry a matching kid.
func NewStaticKey(key any, keyID string) *StaticKey {
	return &StaticKey{key: key, keyID: keyID}
}

// Key implements KeyResolver.
func (s *StaticKey) Key(_ context.Context, header Header) (any, error) {
	if s.keyID != "" && header.KeyID != s.keyID {
		return nil, ErrUnknownKey
	}
	return s.key, nil
}

// JWKSKeys resolves keys by kid from a cached remote JWKS.
type JWKSKeys struct {
	cfg   JWKSConfig
	cache *jwk.Cache
}

// NewJWKSKeys registers cfg.URL with a refreshing JWKS cache. The cache lives
// until ctx is done.
func NewJWKSKeys(ctx context.Context, cfg JWKSConfig) (*JWKSKeys, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	cache := jwk.NewCache(ctx)
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
	if err := cache.Register(
		cfg.URL,
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(httpClient),
	); err != nil {
		return nil, fmt.Errorf("register jwks %q: %w", cfg.URL, err)
	}
	return &JWKSKeys{cfg: cfg, cache: cache}, nil
}

// Warmup fetches the key set so the first verification does not pay for it.
func (j *JWKSKeys) Warmup(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(ctx, j.cfg.HTTPTimeout)
	defer cancel()
	if _, err := j.cache.Refresh(refreshCtx, j.cfg.URL); err != nil {
		return fmt.Errorf("refresh jwks: %w", err)
	}
	return nil
}

// Key implements KeyResolver.
func (j *JWKSKeys) Key(ctx context.Context, header Header) (any, error) {
	set, err := j.cache.Get(ctx, j.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	var key jwk.Key
	if header.KeyID != "" {
		found, ok := set.LookupKeyID(header.KeyID)
		if !ok {
			return nil, ErrUnknownKey
		}
		key = found
	} else {
		if set.Len() != 1 {
			return nil, ErrUnknownKey
		}
		found, ok := set.Key(0)
		if !ok {
			return nil, ErrUnknownKey
		}
		key = found
	}

	if alg := key.Algorithm(); alg != nil && alg.String() != "" && alg.String() != header.Algorithm.String() {
		return nil, ErrUnknownKey
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("jwk %q: %w", header.KeyID, err)
	}
	return raw, nil
}
