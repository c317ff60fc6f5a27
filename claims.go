package tokenauth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RolesClaim is the custom claim carrying the subject's role names.
const RolesClaim = "roles"

var registeredClaims = map[string]struct{}{
	jwt.IssuerKey:     {},
	jwt.SubjectKey:    {},
	jwt.AudienceKey:   {},
	jwt.NotBeforeKey:  {},
	jwt.ExpirationKey: {},
	jwt.IssuedAtKey:   {},
	jwt.JwtIDKey:      {},
}

// Claims is the payload of a token. Registered claims have typed fields; every
// other claim lives in Custom and is serialized in key order.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	ValidFrom time.Time
	ValidTo   time.Time
	IssuedAt  time.Time
	TokenID   string

	Custom map[string]any
}

// Set stores a custom claim. Registered claim names must use the typed fields.
func (c *Claims) Set(name string, value any) error {
	if _, ok := registeredClaims[name]; ok {
		return fmt.Errorf("claim %q is registered", name)
	}
	if c.Custom == nil {
		c.Custom = make(map[string]any)
	}
	c.Custom[name] = value
	return nil
}

// Get returns a custom claim.
func (c Claims) Get(name string) (any, bool) {
	v, ok := c.Custom[name]
	return v, ok
}

// Roles returns the roles claim, or an empty slice when absent.
func (c Claims) Roles() []string {
	return normalizeRoles(c.Custom[RolesClaim])
}

// SetRoles replaces the roles claim.
func (c *Claims) SetRoles(roles []string) {
	_ = c.Set(RolesClaim, append([]string{}, roles...))
}

// Clone returns a deep copy of the registered claims and a shallow copy of Custom.
func (c Claims) Clone() Claims {
	out := c
	out.Audience = cloneStrings(c.Audience)
	if c.Custom != nil {
		out.Custom = make(map[string]any, len(c.Custom))
		for k, v := range c.Custom {
			if s, ok := v.([]string); ok {
				v = append([]string{}, s...)
			}
			out.Custom[k] = v
		}
	}
	return out
}

func (c Claims) toJWT() (jwt.Token, error) {
	tok := jwt.New()
	for k, v := range c.Custom {
		if err := tok.Set(k, v); err != nil {
			return nil, fmt.Errorf("set claim %q: %w", k, err)
		}
	}
	set := func(key string, value any) error {
		if err := tok.Set(key, value); err != nil {
			return fmt.Errorf("set claim %q: %w", key, err)
		}
		return nil
	}
	if c.Issuer != "" {
		if err := set(jwt.IssuerKey, c.Issuer); err != nil {
			return nil, err
		}
	}
	if c.Subject != "" {
		if err := set(jwt.SubjectKey, c.Subject); err != nil {
			return nil, err
		}
	}
	if len(c.Audience) > 0 {
		if err := set(jwt.AudienceKey, c.Audience); err != nil {
			return nil, err
		}
	}
	if !c.ValidFrom.IsZero() {
		if err := set(jwt.NotBeforeKey, c.ValidFrom); err != nil {
			return nil, err
		}
	}
	if !c.ValidTo.IsZero() {
		if err := set(jwt.ExpirationKey, c.ValidTo); err != nil {
			return nil, err
		}
	}
	if !c.IssuedAt.IsZero() {
		if err := set(jwt.IssuedAtKey, c.IssuedAt); err != nil {
			return nil, err
		}
	}
	if c.TokenID != "" {
		if err := set(jwt.JwtIDKey, c.TokenID); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

func unmarshalClaims(payload []byte) (jwt.Token, Claims, error) {
	tok := jwt.New()
	if err := json.Unmarshal(payload, tok); err != nil {
		return nil, Claims{}, fmt.Errorf("decode claims: %w", err)
	}
	return tok, claimsFromJWT(tok), nil
}

func claimsFromJWT(tok jwt.Token) Claims {
	claims := Claims{
		Issuer:    tok.Issuer(),
		Subject:   tok.Subject(),
		Audience:  cloneStrings(tok.Audience()),
		ValidFrom: tok.NotBefore(),
		ValidTo:   tok.Expiration(),
		IssuedAt:  tok.IssuedAt(),
		TokenID:   tok.JwtID(),
	}
	if private := tok.PrivateClaims(); len(private) > 0 {
		claims.Custom = make(map[string]any, len(private))
		for k, v := range private {
			claims.Custom[k] = v
		}
	}
	return claims
}

func normalizeRoles(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return []string{}
}
