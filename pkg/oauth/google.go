package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Mailbox scopes requested when the user connects their account
var mailboxScopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.labels",
}

// GoogleClient refreshes Google OAuth credentials
type GoogleClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// NewGoogleClient creates a new Google OAuth client from config
func NewGoogleClient(cfg types.GoogleOAuthConfig) *GoogleClient {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}

	return &GoogleClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GoogleClient) Name() string {
	return types.ProviderGoogle
}

// IsConfigured returns true if Google OAuth is configured
func (g *GoogleClient) IsConfigured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

// Refresh refreshes an access token using a refresh token
func (g *GoogleClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &types.AuthError{Reason: "no refresh token"}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	// A token with no access token is always refreshed by the token source
	src := g.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (g *GoogleClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Scopes:       mailboxScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   google.Endpoint.AuthURL,
			TokenURL:  g.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// classifyRefreshError maps a token endpoint failure to a typed error. A
// rejected grant is permanent; server errors and network failures are transient.
func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		if status >= 500 || status == http.StatusTooManyRequests {
			return &types.ProviderError{
				Provider:   types.ProviderGoogle,
				Op:         "refresh",
				Kind:       types.KindTransient,
				StatusCode: status,
				Err:        err,
			}
		}
		reason := "refresh rejected"
		if re.ErrorCode != "" {
			reason = re.ErrorCode
		}
		return &types.AuthError{Reason: reason, Err: err}
	}

	return &types.ProviderError{
		Provider: types.ProviderGoogle,
		Op:       "refresh",
		Kind:     types.KindTransient,
		Err:      err,
	}
}
