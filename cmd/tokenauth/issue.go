package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bionicotaku/lingo-utils-tokenauth"
)

func newIssueCommand() *cobra.Command {
	var (
		principal string
		grant     []string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint an access token for a principal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if principal == "" {
				return errors.New("--principal is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTPTimeout+5*time.Second)
			defer cancel()

			signer, err := buildSigner(ctx, cfg)
			if err != nil {
				return err
			}
			roles, closeRoles, err := buildRoleSource(ctx, cfg, principal, grant)
			if err != nil {
				return err
			}
			defer closeRoles()

			issuer, err := tokenauth.NewCredentialIssuer(tokenauth.IssuerConfig{
				Issuer:          cfg.Issuer,
				KeyID:           cfg.KeyID,
				ValidFromOffset: cfg.ValidFrom,
				ValidToOffset:   cfg.ValidTo,
			}, signer,
				tokenauth.WithRoleSource(roles),
				tokenauth.WithClaimsPopulators(tokenauth.TokenIDPopulator()),
				tokenauth.WithIssuerLogger(log.Logger),
			)
			if err != nil {
				return fmt.Errorf("create issuer: %w", err)
			}

			subject := tokenauth.NewSubject([]tokenauth.Principal{{Type: tokenauth.PrincipalPrimary, ID: principal}}, nil)
			token, err := issuer.CreateToken(ctx, subject)
			if err != nil {
				return err
			}
			log.Info().Str("principal", principal).Time("valid_to", token.Claims().ValidTo).Msg("token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "Primary principal id")
	cmd.Flags().StringSliceVar(&grant, "grant", nil, "Roles to grant before issuing (Redis) or to use directly")
	return cmd
}

func buildSigner(ctx context.Context, cfg config) (tokenauth.Signer, error) {
	if cfg.ServiceAccount != "" {
		return tokenauth.NewIAMSigner(ctx, tokenauth.IAMSignerConfig{ServiceAccount: cfg.ServiceAccount})
	}
	if cfg.Secret == "" {
		return nil, errors.New("either --secret or --service-account is required")
	}
	return tokenauth.NewKeySigner(jwa.SignatureAlgorithm(cfg.Algorithm), []byte(cfg.Secret))
}

func buildRoleSource(ctx context.Context, cfg config, principal string, grant []string) (tokenauth.RoleSource, func(), error) {
	if cfg.RedisAddr == "" {
		roles := tokenauth.StaticRoles{}
		for id, r := range cfg.Roles {
			roles[id] = r
		}
		if len(grant) > 0 {
			roles[principal] = append(roles[principal], grant...)
		}
		return roles, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	closeFn := func() { _ = client.Close() }
	source := tokenauth.NewRedisRoleSource(client, cfg.RolePrefix)
	if err := source.GrantRoles(ctx, principal, grant...); err != nil {
		closeFn()
		return nil, nil, err
	}
	return source, closeFn, nil
}
