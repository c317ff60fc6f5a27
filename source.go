package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource minting access tokens for subject.
// Tokens are reused until shortly before they expire.
func (i *CredentialIssuer) TokenSource(ctx context.Context, subject *Subject) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &issuerTokenSource{
		ctx:     persistentContext(ctx),
		issuer:  i,
		subject: subject,
	})
}

type issuerTokenSource struct {
	ctx     context.Context
	issuer  *CredentialIssuer
	subject *Subject
}

func (s *issuerTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.issuer.CreateToken(s.ctx, s.subject)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token.Encode(),
		TokenType:   "Bearer",
		Expiry:      token.claims.ValidTo,
	}, nil
}

// Provider caches one reusable token source per primary principal.
type Provider struct {
	mu      sync.RWMutex
	issuer  *CredentialIssuer
	entries map[string]oauth2.TokenSource
}

// NewProvider returns a Provider minting through issuer.
func NewProvider(issuer *CredentialIssuer) *Provider {
	return &Provider{
		issuer:  issuer,
		entries: make(map[string]oauth2.TokenSource),
	}
}

// Token returns a current access token for subject.
func (p *Provider) Token(ctx context.Context, subject *Subject) (string, error) {
	primary, ok := subject.PrimaryPrincipal()
	if !ok || primary.ID == "" {
		return "", errors.New("subject has no primary principal")
	}

	tok, err := p.getOrCreate(ctx, primary.ID, subject).Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

// Forget drops the cached token source for principalID.
func (p *Provider) Forget(principalID string) {
	p.mu.Lock()
	delete(p.entries, principalID)
	p.mu.Unlock()
}

func (p *Provider) getOrCreate(ctx context.Context, id string, subject *Subject) oauth2.TokenSource {
	p.mu.RLock()
	src, ok := p.entries[id]
	p.mu.RUnlock()
	if ok {
		return src
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if src, ok = p.entries[id]; ok {
		return src
	}
	src = p.issuer.TokenSource(ctx, subject)
	p.entries[id] = src
	return src
}

func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if _, ok := ctx.(*detachedContext); ok {
		return ctx
	}
	return &detachedContext{parent: ctx}
}

// detachedContext keeps parent values but never expires, so a cached token
// source outlives the request that created it.
type detachedContext struct {
	parent context.Context
}

func (d *detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (d *detachedContext) Done() <-chan struct{} {
	return nil
}

func (d *detachedContext) Err() error {
	return nil
}

func (d *detachedContext) Value(key any) any {
	if d.parent == nil {
		return nil
	}
	return d.parent.Value(key)
}
