package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/database"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/spf13/cobra"
)

// NewOIDCCmd creates the OIDC provider command with set, list, test and delete subcommands
func NewOIDCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Manage OIDC providers",
		Long:  "Register, inspect, test or remove OIDC identity providers used for sign-in",
	}
	cmd.AddCommand(newOIDCSetCmd())
	cmd.AddCommand(newOIDCListCmd())
	cmd.AddCommand(newOIDCTestCmd())
	cmd.AddCommand(newOIDCDeleteCmd())
	return cmd
}

// oidcFlags are the registration fields accepted by "oidc set"
type oidcFlags struct {
	issuer       string
	domain       string
	clientID     string
	clientSecret string
	redirectURI  string
	jwksURL      string
}

// toConfig validates the flags and builds the registration for provider
func (f oidcFlags) toConfig(provider string) (*models.OIDCConfig, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if f.issuer == "" || f.clientID == "" || f.redirectURI == "" {
		return nil, fmt.Errorf("required flags: --issuer, --client-id, --redirect-uri (--client-secret is optional for public clients)")
	}

	issuer := strings.TrimRight(f.issuer, "/")
	jwksURL := f.jwksURL
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	config := &models.OIDCConfig{
		Provider:    provider,
		Issuer:      issuer,
		ClientID:    f.clientID,
		RedirectURI: f.redirectURI,
		JWKSUrl:     &jwksURL,
	}
	if f.domain != "" {
		config.Domain = &f.domain
	}
	if f.clientSecret != "" {
		config.ClientSecret = &f.clientSecret
	}
	return config, nil
}

func newOIDCSetCmd() *cobra.Command {
	var flags oidcFlags

	cmd := &cobra.Command{
		Use:   "set <provider-name>",
		Short: "Create or replace an OIDC provider",
		Long:  "Create or replace an OIDC provider registration. The name is any identifier (e.g., 'cognito', 'okta', 'auth0') and must match OIDC_PROVIDER on the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := flags.toConfig(args[0])
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB) error {
				if err := database.NewOIDCConfigRepository(db).Save(ctx, config); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved OIDC configuration for provider: %s\n", config.Provider)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.issuer, "issuer", "", "OIDC issuer URL (required)")
	cmd.Flags().StringVar(&flags.domain, "domain", "", "Hosted login domain when it differs from the issuer (optional)")
	cmd.Flags().StringVar(&flags.clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&flags.clientSecret, "client-secret", "", "OAuth2 client secret (optional for public clients)")
	cmd.Flags().StringVar(&flags.redirectURI, "redirect-uri", "", "OAuth2 redirect URI (required)")
	cmd.Flags().StringVar(&flags.jwksURL, "jwks-url", "", "JWKS URL (defaults to <issuer>/.well-known/jwks.json)")

	return cmd
}

func newOIDCListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured OIDC providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB) error {
				configs, err := database.NewOIDCConfigRepository(db).GetAll(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(configs) == 0 {
					fmt.Fprintln(out, "No OIDC providers configured")
					return nil
				}
				fmt.Fprintln(out, "Configured OIDC providers:")
				for _, c := range configs {
					fmt.Fprintf(out, "  - Provider: %s\n", c.Provider)
					fmt.Fprintf(out, "    Issuer: %s\n", c.Issuer)
					fmt.Fprintf(out, "    Client ID: %s\n", c.ClientID)
					fmt.Fprintf(out, "    Redirect URI: %s\n", c.RedirectURI)
					if c.JWKSUrl != nil {
						fmt.Fprintf(out, "    JWKS URL: %s\n", *c.JWKSUrl)
					}
				}
				return nil
			})
		},
	}
}

func newOIDCTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <provider-name>",
		Short: "Check that a provider's discovery and JWKS endpoints respond",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB) error {
				config, err := database.NewOIDCConfigRepository(db).GetByProvider(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				client := &http.Client{Timeout: 10 * time.Second}
				fmt.Fprintf(out, "Testing OIDC configuration for provider: %s\n", config.Provider)

				if err := checkEndpoint(ctx, client, config.Issuer+"/.well-known/openid-configuration"); err != nil {
					return fmt.Errorf("discovery endpoint: %w", err)
				}
				fmt.Fprintln(out, "✓ Discovery endpoint is accessible")

				if config.JWKSUrl != nil {
					if err := checkEndpoint(ctx, client, *config.JWKSUrl); err != nil {
						return fmt.Errorf("JWKS endpoint: %w", err)
					}
					fmt.Fprintln(out, "✓ JWKS endpoint is accessible")
				}
				return nil
			})
		},
	}
}

func newOIDCDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider-name>",
		Short: "Remove an OIDC provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *database.DB) error {
				err := database.NewOIDCConfigRepository(db).Delete(ctx, args[0])
				if errors.Is(err, database.ErrNotFound) {
					return fmt.Errorf("provider %s is not configured", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted OIDC configuration for provider: %s\n", args[0])
				return nil
			})
		},
	}
}

// checkEndpoint GETs url and requires a 200
func checkEndpoint(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close response body: %v\n", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}
