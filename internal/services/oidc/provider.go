package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/finance-advisor/internal/models"
	"golang.org/x/oauth2"
)

// ConfigStore looks up identity provider settings
type ConfigStore interface {
	GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error)
}

// Endpoints are the OAuth2 endpoints of a provider
type Endpoints struct {
	Authorization string
	Token         string
}

// Provider resolves identity provider settings and endpoints
type Provider struct {
	store      ConfigStore
	httpClient *http.Client
}

// NewProvider creates a new OIDC provider manager
func NewProvider(store ConfigStore) *Provider {
	return &Provider{store: store, httpClient: &http.Client{Timeout: 5 * time.Second}}
}

// GetConfig retrieves OIDC configuration for a provider
func (p *Provider) GetConfig(ctx context.Context, providerName string) (*models.OIDCConfig, error) {
	config, err := p.store.GetByProvider(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config: %w", err)
	}
	return config, nil
}

// Endpoints returns the provider's authorization and token endpoints. The discovery
// document is preferred; a configured hosted-UI domain overrides it, and the issuer is
// the last resort.
func (p *Provider) Endpoints(ctx context.Context, config *models.OIDCConfig) Endpoints {
	if config.Domain != nil && *config.Domain != "" {
		base := *config.Domain
		if !strings.HasPrefix(base, "https://") {
			base = "https://" + base
		}
		base = strings.TrimSuffix(base, "/")
		return Endpoints{Authorization: base + "/oauth2/authorize", Token: base + "/oauth2/token"}
	}

	issuer := strings.TrimSuffix(config.Issuer, "/")
	endpoints := Endpoints{Authorization: issuer + "/oauth2/authorize", Token: issuer + "/oauth2/token"}
	if discovered, err := p.discover(ctx, issuer); err == nil {
		if discovered.AuthorizationEndpoint != "" {
			endpoints.Authorization = discovered.AuthorizationEndpoint
		}
		if discovered.TokenEndpoint != "" {
			endpoints.Token = discovered.TokenEndpoint
		}
	}
	return endpoints
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

func (p *Provider) discover(ctx context.Context, issuer string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}
	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return &doc, nil
}

// GetLoginConfig returns what a frontend needs to start the authorization code flow.
// state is echoed back by the provider on redirect.
func (p *Provider) GetLoginConfig(ctx context.Context, providerName, state string) (*LoginConfig, error) {
	config, err := p.GetConfig(ctx, providerName)
	if err != nil {
		return nil, err
	}
	endpoints := p.Endpoints(ctx, config)
	client := NewClient(config, endpoints)
	verifier := oauth2.GenerateVerifier()

	return &LoginConfig{
		AuthorizationEndpoint: endpoints.Authorization,
		TokenEndpoint:         endpoints.Token,
		AuthorizationURL:      client.AuthCodeURL(state, verifier),
		CodeVerifier:          verifier,
		ClientID:              config.ClientID,
		RedirectURI:           config.RedirectURI,
		Scope:                 strings.Join(Scopes, " "),
		State:                 state,
	}, nil
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	AuthorizationURL      string `json:"authorization_url"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
	State                 string `json:"state"`
	// CodeVerifier must accompany the code at the token endpoint
	CodeVerifier string `json:"code_verifier"`
}
