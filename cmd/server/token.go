package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		userID string
		admin  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the job control API",
		Long: `Mint a signed bearer token with the configured auth.jwt_secret.

Tokens are normally issued by the account service; this command exists for
development and operations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No logger setup: stdout carries only the token.
			cfg, err := config.LoadFile(root.configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}

			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			role := auth.RoleUser
			if admin {
				role = auth.RoleAdmin
			}
			return mintToken(cmd.Context(), cmd.OutOrStdout(), jwtService, id, role)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID the token is issued for")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func mintToken(ctx context.Context, out io.Writer, jwtService auth.JWTService, userID uuid.UUID, role string) error {
	token, err := jwtService.GenerateToken(ctx, userID, role)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
