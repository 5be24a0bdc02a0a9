package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// OAuth2Refresher implements Refresher against a standard OAuth2 token
// endpoint using the stored refresh token.
type OAuth2Refresher struct {
	config *oauth2.Config
}

// NewOAuth2Refresher creates a refresher for the given OAuth2 client
// configuration.
func NewOAuth2Refresher(config *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{config: config}
}

// RefreshTokens exchanges the stored refresh token for fresh material.
// Failures are classified into the refresh error taxonomy.
func (r *OAuth2Refresher) RefreshTokens(ctx context.Context, current TokenRecord) (TokenRecord, error) {
	if current.RefreshToken == "" {
		return TokenRecord{}, NewRefreshError(KindNoToken,
			fmt.Errorf("no refresh token stored"))
	}

	src := r.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: current.RefreshToken,
	})

	token, err := src.Token()
	if err != nil {
		return TokenRecord{}, classifyOAuth2Error(err)
	}

	fresh := TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        current.Scope,
	}
	// Providers often omit the refresh token on rotation; keep the old one.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}
	return fresh, nil
}

// classifyOAuth2Error maps token endpoint failures to the taxonomy.
// invalid_grant and revocation messages mean the refresh token is dead
// and only re-authentication helps; everything at the transport level is
// treated as possibly transient.
func classifyOAuth2Error(err error) *RefreshError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewRefreshError(KindNetwork, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests:
			return NewRefreshError(KindRateLimited, err)
		case retrieveErr.ErrorCode == "invalid_grant":
			return NewRefreshError(KindTokenExpired, err)
		case retrieveErr.ErrorCode == "invalid_client",
			retrieveErr.ErrorCode == "unauthorized_client":
			return NewRefreshError(KindInvalidCredentials, err)
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "invalid_grant"),
		strings.Contains(msg, "Token has been expired or revoked"),
		strings.Contains(msg, "Token has been revoked"):
		return NewRefreshError(KindTokenExpired, err)
	case strings.Contains(msg, "invalid_client"):
		return NewRefreshError(KindInvalidCredentials, err)
	}

	return NewRefreshError(KindTransport, err)
}

var _ Refresher = (*OAuth2Refresher)(nil)

// coordinatorTokenSource adapts a Coordinator to oauth2.TokenSource so
// API clients built on the oauth2 transport pick up coordinated
// refreshes instead of running their own.
type coordinatorTokenSource struct {
	ctx   context.Context
	coord *Coordinator
}

// TokenSource returns an oauth2.TokenSource backed by this coordinator.
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &coordinatorTokenSource{ctx: ctx, coord: c}
}

// Token implements oauth2.TokenSource.
func (s *coordinatorTokenSource) Token() (*oauth2.Token, error) {
	rec, err := s.coord.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.ExpiresAt,
	}, nil
}
