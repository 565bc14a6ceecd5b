package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"benchrun/pkg/auth"
)

var (
	tokenUser   string
	tokenRole   string
	tokenExpiry time.Duration
)

// newTokenCmd builds the token command
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the run API",
		Long:  `Mint a signed access token using JWT_SECRET and JWT_ISSUER.`,
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "username (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleOperator), "role: admin, operator or viewer")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("user")
	return tokenCmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	role := auth.Role(tokenRole)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", tokenRole)
	}

	jwtCfg := auth.DefaultJWTConfig()
	jwtCfg.SecretKey = cfg.JWTSecret
	jwtCfg.Issuer = cfg.JWTIssuer
	jwtCfg.TokenExpiry = tokenExpiry
	svc, err := auth.NewJWTService(jwtCfg)
	if err != nil {
		return err
	}

	token, err := svc.GenerateToken(uuid.NewString(), tokenUser, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
