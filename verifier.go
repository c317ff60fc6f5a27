package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
)

// FailureReason is a symbolic verification failure code.
type FailureReason string

const (
	ReasonExpired           FailureReason = "EXPIRED"
	ReasonNotYetValid       FailureReason = "NOT_YET_VALID"
	ReasonIssuedInFuture    FailureReason = "ISSUED_IN_FUTURE"
	ReasonBadSignature      FailureReason = "BAD_SIGNATURE"
	ReasonAlgorithmMismatch FailureReason = "ALGORITHM_MISMATCH"
	ReasonUnknownKey        FailureReason = "UNKNOWN_KEY"
	ReasonIssuerMismatch    FailureReason = "ISSUER_MISMATCH"
	ReasonAudienceMismatch  FailureReason = "AUDIENCE_MISMATCH"
	ReasonMissingClaim      FailureReason = "MISSING_CLAIM"
	ReasonMalformed         FailureReason = "MALFORMED"
)

// FailureReasons is a set of failure reasons. The zero value is an empty set
// but must be initialized before Add.
type FailureReasons map[FailureReason]struct{}

// NewFailureReasons returns a set holding reasons.
func NewFailureReasons(reasons ...FailureReason) FailureReasons {
	set := make(FailureReasons, len(reasons))
	for _, r := range reasons {
		set[r] = struct{}{}
	}
	return set
}

// Add inserts r into the set.
func (s FailureReasons) Add(r FailureReason) {
	s[r] = struct{}{}
}

// Has reports whether r is in the set.
func (s FailureReasons) Has(r FailureReason) bool {
	_, ok := s[r]
	return ok
}

// Empty reports whether the set holds no reasons.
func (s FailureReasons) Empty() bool {
	return len(s) == 0
}

// List returns the reasons in lexical order.
func (s FailureReasons) List() []FailureReason {
	out := make([]FailureReason, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a copy of the set.
func (s FailureReasons) Clone() FailureReasons {
	if s == nil {
		return nil
	}
	out := make(FailureReasons, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}

// VerificationContext is the immutable set of trust parameters a token is
// verified against.
type VerificationContext struct {
	expectedIssuer string
	clock          jwt.Clock
	clockSkew      time.Duration
	requiredClaims []string
}

// NewVerificationContext validates cfg and freezes it into a context.
func NewVerificationContext(cfg VerificationConfig) (VerificationContext, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return VerificationContext{}, err
	}
	seen := make(map[string]struct{}, len(cfg.RequiredClaims))
	required := make([]string, 0, len(cfg.RequiredClaims))
	for _, name := range cfg.RequiredClaims {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		required = append(required, name)
	}
	sort.Strings(required)
	return VerificationContext{
		expectedIssuer: cfg.ExpectedIssuer,
		clock:          cfg.Clock,
		clockSkew:      cfg.ClockSkew,
		requiredClaims: required,
	}, nil
}

// ExpectedIssuer returns the issuer tokens must carry.
func (vc VerificationContext) ExpectedIssuer() string { return vc.expectedIssuer }

// ReferenceTime returns the current time according to the context clock.
func (vc VerificationContext) ReferenceTime() time.Time {
	if vc.clock == nil {
		return time.Now()
	}
	return vc.clock.Now()
}

// ClockSkew returns the tolerated clock skew.
func (vc VerificationContext) ClockSkew() time.Duration { return vc.clockSkew }

// RequiredClaims returns the claim names that must be present.
func (vc VerificationContext) RequiredClaims() []string {
	return append([]string(nil), vc.requiredClaims...)
}

// TokenVerifier decides whether a parsed token is trustworthy. A non-nil error
// means verification could not be carried out; token defects are reported as
// reasons.
type TokenVerifier interface {
	Verify(ctx context.Context, token *SignedToken, vc VerificationContext) (FailureReasons, error)
}

// VerifierFunc adapts a function to TokenVerifier.
type VerifierFunc func(ctx context.Context, token *SignedToken, vc VerificationContext) (FailureReasons, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token *SignedToken, vc VerificationContext) (FailureReasons, error) {
	return f(ctx, token, vc)
}

// JWSVerifier checks the signature of a token against a resolved key and its
// claims against the verification context.
type JWSVerifier struct {
	alg    jwa.SignatureAlgorithm
	keys   KeyResolver
	logger zerolog.Logger
}

// VerifierOption customizes a JWSVerifier.
type VerifierOption func(*JWSVerifier)

// WithVerifierLogger sets the logger used for key resolution failures.
func WithVerifierLogger(l zerolog.Logger) VerifierOption {
	return func(v *JWSVerifier) {
		v.logger = l
	}
}

// NewJWSVerifier builds a verifier accepting only alg.
func NewJWSVerifier(alg jwa.SignatureAlgorithm, keys KeyResolver, opts ...VerifierOption) (*JWSVerifier, error) {
	if alg == "" || alg == jwa.NoSignature {
		return nil, errors.New("signature algorithm is required")
	}
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	if _, err := jws.NewVerifier(alg); err != nil {
		return nil, fmt.Errorf("unsupported algorithm %q: %w", alg, err)
	}
	v := &JWSVerifier{alg: alg, keys: keys, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify implements TokenVerifier.
func (v *JWSVerifier) Verify(ctx context.Context, token *SignedToken, vc VerificationContext) (FailureReasons, error) {
	reasons := NewFailureReasons()
	if token == nil {
		reasons.Add(ReasonMalformed)
		return reasons, nil
	}

	if err := v.verifySignature(ctx, token, reasons); err != nil {
		return nil, err
	}
	checkClaims(token, vc, reasons)
	return reasons, nil
}

func (v *JWSVerifier) verifySignature(ctx context.Context, token *SignedToken, reasons FailureReasons) error {
	if token.header.Algorithm != v.alg {
		reasons.Add(ReasonAlgorithmMismatch)
		return nil
	}
	key, err := v.keys.Key(ctx, token.header)
	switch {
	case errors.Is(err, ErrUnknownKey):
		reasons.Add(ReasonUnknownKey)
		return nil
	case err != nil:
		v.logger.Warn().Err(err).Str("kid", token.header.KeyID).Msg("resolve verification key")
		return fmt.Errorf("resolve key: %w", err)
	}
	verifier, err := jws.NewVerifier(v.alg)
	if err != nil {
		return fmt.Errorf("verifier for %q: %w", v.alg, err)
	}
	if err := verifier.Verify(token.unsigned, token.signature, key); err != nil {
		reasons.Add(ReasonBadSignature)
	}
	return nil
}

// timeChecks run one at a time so every failing time claim is reported.
var timeChecks = []struct {
	validator jwt.Validator
	reason    FailureReason
}{
	{jwt.IsExpirationValid(), ReasonExpired},
	{jwt.IsNbfValid(), ReasonNotYetValid},
	{jwt.IsIssuedAtValid(), ReasonIssuedInFuture},
}

// checkClaims records every claim-level defect of token against vc.
func checkClaims(token *SignedToken, vc VerificationContext, reasons FailureReasons) {
	for _, check := range timeChecks {
		err := jwt.Validate(token.token,
			jwt.WithResetValidators(true),
			jwt.WithValidator(check.validator),
			jwt.WithClock(jwt.ClockFunc(vc.ReferenceTime)),
			jwt.WithAcceptableSkew(vc.clockSkew),
		)
		if err != nil {
			reasons.Add(check.reason)
		}
	}
	if token.claims.Issuer != vc.expectedIssuer {
		reasons.Add(ReasonIssuerMismatch)
	}
	for _, name := range vc.requiredClaims {
		if _, ok := token.token.Get(name); !ok {
			reasons.Add(ReasonMissingClaim)
			break
		}
	}
}
