package tokenauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClaimsPopulator adds custom claims to a token being issued for subject.
type ClaimsPopulator interface {
	PopulateClaims(ctx context.Context, subject *Subject, claims *Claims) error
}

// ClaimsPopulatorFunc adapts a function to ClaimsPopulator.
type ClaimsPopulatorFunc func(ctx context.Context, subject *Subject, claims *Claims) error

// PopulateClaims calls f.
func (f ClaimsPopulatorFunc) PopulateClaims(ctx context.Context, subject *Subject, claims *Claims) error {
	return f(ctx, subject, claims)
}

// RolesPopulator sets the roles claim from source for the primary principal.
func RolesPopulator(source RoleSource) ClaimsPopulator {
	return ClaimsPopulatorFunc(func(ctx context.Context, subject *Subject, claims *Claims) error {
		primary, _ := subject.PrimaryPrincipal()
		roles, err := source.RolesFor(ctx, primary.ID)
		if err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		claims.SetRoles(roles)
		return nil
	})
}

// TokenIDPopulator assigns a random jti to every token.
func TokenIDPopulator() ClaimsPopulator {
	return ClaimsPopulatorFunc(func(_ context.Context, _ *Subject, claims *Claims) error {
		claims.TokenID = uuid.NewString()
		return nil
	})
}

// AudiencePopulator sets the aud claim.
func AudiencePopulator(audience ...string) ClaimsPopulator {
	aud := append([]string(nil), audience...)
	return ClaimsPopulatorFunc(func(_ context.Context, _ *Subject, claims *Claims) error {
		claims.Audience = append([]string(nil), aud...)
		return nil
	})
}

// CredentialIssuer mints signed JWT access tokens for subjects.
type CredentialIssuer struct {
	cfg        IssuerConfig
	signer     Signer
	populators []ClaimsPopulator
	logger     zerolog.Logger
}

// IssuerOption customizes a CredentialIssuer.
type IssuerOption func(*CredentialIssuer)

// WithRoleSource adds the roles claim from source. Without it, issued tokens
// carry no roles claim and authenticate with an empty role list.
func WithRoleSource(source RoleSource) IssuerOption {
	return func(i *CredentialIssuer) {
		i.populators = append(i.populators, RolesPopulator(source))
	}
}

// WithClaimsPopulators appends populators, run in order after the built-in
// claims are set.
func WithClaimsPopulators(populators ...ClaimsPopulator) IssuerOption {
	return func(i *CredentialIssuer) {
		i.populators = append(i.populators, populators...)
	}
}

// WithIssuerLogger sets the logger used for issuance failures.
func WithIssuerLogger(l zerolog.Logger) IssuerOption {
	return func(i *CredentialIssuer) {
		i.logger = l
	}
}

// NewCredentialIssuer validates cfg and returns an issuer signing with signer.
// The roles claim is only written when WithRoleSource is given.
func NewCredentialIssuer(cfg IssuerConfig, signer Signer, opts ...IssuerOption) (*CredentialIssuer, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	i := &CredentialIssuer{cfg: cfg, signer: signer, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// CreateCredentialForSubject issues a JWT access token credential for subject.
func (i *CredentialIssuer) CreateCredentialForSubject(ctx context.Context, subject *Subject) (Credential, error) {
	token, err := i.CreateToken(ctx, subject)
	if err != nil {
		return Credential{}, err
	}
	return NewAccessTokenCredential(token.Encode()), nil
}

// CreateToken assembles, populates and signs a token for subject.
func (i *CredentialIssuer) CreateToken(ctx context.Context, subject *Subject) (*SignedToken, error) {
	primary, ok := subject.PrimaryPrincipal()
	if !ok || primary.ID == "" {
		return nil, errors.New("subject has no primary principal")
	}

	now := i.cfg.Clock.Now()
	claims := Claims{
		Issuer:    i.cfg.Issuer,
		Subject:   primary.ID,
		ValidFrom: now.Add(i.cfg.ValidFromOffset),
		ValidTo:   now.Add(i.cfg.ValidToOffset),
		IssuedAt:  now,
	}
	for _, p := range i.populators {
		if err := p.PopulateClaims(ctx, subject, &claims); err != nil {
			i.logger.Error().Err(err).Str("subject", primary.ID).Msg("populate claims")
			return nil, fmt.Errorf("populate claims: %w", err)
		}
	}

	header := DefaultHeader()
	header.Algorithm = i.signer.Algorithm()
	header.KeyID = i.cfg.KeyID
	unsigned, err := NewUnsignedToken(header, claims)
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}

	signature, err := i.signer.Sign(ctx, unsigned.SigningInput())
	if err != nil {
		i.logger.Error().Err(err).Str("subject", primary.ID).Msg("sign token")
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return NewSignedToken(unsigned, signature), nil
}
