package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token
type Refresher interface {
	// Name returns the provider name (e.g., "google")
	Name() string

	// Refresh performs the refresh-token grant. Errors that a retry cannot fix
	// are returned as *types.AuthError.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}
