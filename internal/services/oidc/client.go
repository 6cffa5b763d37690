package oidc

import (
	"github.com/benvon/finance-advisor/internal/models"
	"golang.org/x/oauth2"
)

// Scopes requested at login
var Scopes = []string{"openid", "email", "profile"}

// Client builds authorization requests for one provider. The browser app is a public
// client, so it runs the code exchange itself using the PKCE verifier handed out at login.
type Client struct {
	config *oauth2.Config
}

// NewClient creates an OAuth2 client from provider settings and resolved endpoints
func NewClient(oidcConfig *models.OIDCConfig, endpoints Endpoints) *Client {
	clientSecret := ""
	if oidcConfig.ClientSecret != nil {
		clientSecret = *oidcConfig.ClientSecret
	}

	return &Client{config: &oauth2.Config{
		ClientID:     oidcConfig.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  oidcConfig.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.Authorization,
			TokenURL: endpoints.Token,
		},
	}}
}

// AuthCodeURL returns the authorization URL carrying state and the S256 challenge for verifier
func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}
