package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"warehouse.dev/monitor/internal/auth"
	"warehouse.dev/monitor/internal/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for a user",
	Long: `Issue a signed access token for an existing user. The token carries the
user's id, name and role and is accepted by the api service when it shares
the same jwt secret.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Uint("user-id", 0, "id of the user to issue the token for")
	tokenCmd.Flags().String("jwt-secret", "", "secret used to sign access tokens")
	_ = tokenCmd.MarkFlagRequired("user-id")
}

func runToken(cmd *cobra.Command, _ []string) error {
	logger := GetLogger()

	userID, err := cmd.Flags().GetUint("user-id")
	if err != nil {
		return err
	}
	if userID == 0 {
		return errors.New("user id must be positive")
	}

	// falls back to the api service's secret and ttl
	secret, _ := cmd.Flags().GetString("jwt-secret")
	if secret == "" {
		secret = viper.GetString("api.jwt_secret")
	}
	issuer, err := auth.NewIssuer(secret, viper.GetDuration("api.token_ttl"))
	if err != nil {
		return err
	}

	st, err := store.Open(dbConfig(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	user, err := st.Users.Get(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	token, err := issuer.Issue(user)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
