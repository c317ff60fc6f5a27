package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

func newVerifyCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Authenticate an access token and print its subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if token == "" {
				token = os.Getenv("TOKENAUTH_TOKEN")
			}
			if token == "" {
				return errors.New("--token is required (or env TOKENAUTH_TOKEN)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTPTimeout+5*time.Second)
			defer cancel()

			verifier, err := buildVerifier(ctx, cfg)
			if err != nil {
				return err
			}
			vc, err := tokenauth.NewVerificationContext(tokenauth.VerificationConfig{
				ExpectedIssuer: cfg.Issuer,
				ClockSkew:      cfg.ClockSkew,
				RequiredClaims: cfg.RequiredClaims,
			})
			if err != nil {
				return fmt.Errorf("verification context: %w", err)
			}
			auth, err := tokenauth.NewAuthenticator(verifier, vc, tokenauth.WithLogger(log.Logger))
			if err != nil {
				return err
			}

			result, err := auth.Authenticate(ctx, tokenauth.NewAccessTokenCredential(token))
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			printAuthentication(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token to verify (env TOKENAUTH_TOKEN)")
	return cmd
}

func buildVerifier(ctx context.Context, cfg config) (tokenauth.TokenVerifier, error) {
	switch strings.ToLower(cfg.Verifier) {
	case "", "hmac":
		if cfg.Secret == "" {
			return nil, errors.New("--secret is required for the hmac verifier")
		}
		return tokenauth.NewJWSVerifier(jwa.SignatureAlgorithm(cfg.Algorithm), tokenauth.NewStaticKey([]byte(cfg.Secret), cfg.KeyID))
	case "jwks":
		keys, err := tokenauth.NewJWKSKeys(ctx, tokenauth.JWKSConfig{URL: cfg.JWKSURL, HTTPTimeout: cfg.HTTPTimeout})
		if err != nil {
			return nil, err
		}
		if err := keys.Warmup(ctx); err != nil {
			log.Warn().Err(err).Msg("jwks warmup")
		}
		return tokenauth.NewJWSVerifier(jwa.SignatureAlgorithm(cfg.Algorithm), keys, tokenauth.WithVerifierLogger(log.Logger))
	case "google":
		return tokenauth.NewGoogleVerifier(cfg.Audience, cfg.HTTPTimeout)
	default:
		return nil, fmt.Errorf("unknown verifier %q", cfg.Verifier)
	}
}

func printAuthentication(w io.Writer, result *tokenauth.Authentication) {
	principal, _ := result.Subject.PrimaryPrincipal()
	claims := result.Token.Claims()
	fmt.Fprintln(w, "== Token Verified ==")
	fmt.Fprintf(w, "principal    : %s\n", principal.ID)
	fmt.Fprintf(w, "roles        : %s\n", strings.Join(principal.Roles, ","))
	fmt.Fprintf(w, "issuer       : %s\n", claims.Issuer)
	if !claims.ValidFrom.IsZero() {
		fmt.Fprintf(w, "valid_from   : %s\n", claims.ValidFrom.Format(time.RFC3339))
	}
	if !claims.ValidTo.IsZero() {
		fmt.Fprintf(w, "valid_to     : %s\n", claims.ValidTo.Format(time.RFC3339))
	}
	if claims.TokenID != "" {
		fmt.Fprintf(w, "token_id     : %s\n", claims.TokenID)
	}
	if len(claims.Custom) > 0 {
		fmt.Fprintln(w, "custom_claims:")
		for k, v := range claims.Custom {
			fmt.Fprintf(w, "  %s: %v\n", k, v)
		}
	}
}
