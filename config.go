package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultClockSkew is a common skew tolerance for callers that want one.
// VerificationConfig applies ClockSkew as given, so zero means no tolerance.
const DefaultClockSkew = 30 * time.Second

const (
	defaultValidTo     = time.Hour
	defaultMinRefresh  = 5 * time.Minute
	defaultHTTPTimeout = 5 * time.Second
	maxClockSkew       = 5 * time.Minute
)

// VerificationConfig describes the trust parameters tokens are checked against.
type VerificationConfig struct {
	ExpectedIssuer string
	// ClockSkew is the tolerance applied to exp, nbf and iat. Zero is strict.
	ClockSkew      time.Duration
	RequiredClaims []string
	// Clock supplies the reference time. Defaults to the system clock.
	Clock jwt.Clock
}

func (c *VerificationConfig) normalize() {
	c.ExpectedIssuer = strings.TrimSpace(c.ExpectedIssuer)
	if c.Clock == nil {
		c.Clock = jwt.ClockFunc(time.Now)
	}
}

func (c VerificationConfig) validate() error {
	switch {
	case c.ExpectedIssuer == "":
		return errors.New("expected issuer is required")
	case c.ClockSkew < 0 || c.ClockSkew > maxClockSkew:
		return fmt.Errorf("clock skew must be within [0, %s]", maxClockSkew)
	}
	for _, name := range c.RequiredClaims {
		if strings.TrimSpace(name) == "" {
			return errors.New("required claims contain an empty name")
		}
	}
	return nil
}

// IssuerConfig contains the parameters used when minting credentials.
type IssuerConfig struct {
	Issuer string
	KeyID  string
	// ValidFromOffset and ValidToOffset are added to the issuance instant.
	ValidFromOffset time.Duration
	ValidToOffset   time.Duration
	Clock           jwt.Clock
}

func (c *IssuerConfig) normalize() {
	c.Issuer = strings.TrimSpace(c.Issuer)
	c.KeyID = strings.TrimSpace(c.KeyID)
	if c.ValidToOffset == 0 {
		c.ValidToOffset = defaultValidTo
	}
	if c.Clock == nil {
		c.Clock = jwt.ClockFunc(time.Now)
	}
}

func (c IssuerConfig) validate() error {
	switch {
	case c.Issuer == "":
		return errors.New("issuer is required")
	case c.ValidToOffset <= c.ValidFromOffset:
		return errors.New("valid-to offset must be after valid-from offset")
	}
	return nil
}

// JWKSConfig describes a remote key set.
type JWKSConfig struct {
	URL         string
	MinRefresh  time.Duration
	HTTPTimeout time.Duration
}

func (c *JWKSConfig) normalize() {
	if c.MinRefresh <= 0 {
		c.MinRefresh = defaultMinRefresh
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

func (c JWKSConfig) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("jwks url is required")
	}
	return nil
}
