package goBroker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// tokenEndpoint performs the refresh-token grant against the broker's token
// URL. Calls go through the refresh handler (transport wrapped in retry), so
// transient endpoint failures are retried and terminal ones come back as
// token_expired.
type tokenEndpoint struct {
	oauth   OAuthConfig
	token   TokenConfig
	handler Handler
}

func (e *tokenEndpoint) refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {e.oauth.ClientID},
	}
	if e.oauth.ClientSecret != "" {
		form.Set("client_secret", e.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.oauth.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: "building refresh request", cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, classifyBodyLimit)).Decode(&payload); err != nil {
		return nil, &Error{Kind: KindServerInternal, Message: "decoding token response", cause: err}
	}

	now := time.Now()
	return &TokenSet{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    inferExpiry(payload.AccessToken, payload.ExpiresIn, now, e.token.FallbackAccessTTL),
		IssuedAt:     now,
	}, nil
}

// inferExpiry resolves the access token expiry: an explicit expires_in wins,
// then a readable JWT exp claim, then the configured fallback TTL.
func inferExpiry(accessToken string, expiresIn int64, now time.Time, fallback time.Duration) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(accessToken); ok {
		return exp
	}
	return now.Add(fallback)
}

// jwtExpiry reads the exp claim without verifying the signature. The broker
// signs its tokens; this client only schedules refreshes around them.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func newOAuth2Config(cfg OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

// LoginURL builds the authorization-code URL the user visits to grant
// access. The offline access type asks the broker for a refresh token.
func (c *Client) LoginURL(state string) (string, error) {
	if c.cfg.OAuth.AuthURL == "" || c.cfg.OAuth.RedirectURL == "" {
		return "", errors.New("goBroker: LoginURL requires OAuth AuthURL and RedirectURL")
	}
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ExchangeCode trades an authorization code for the initial token set and
// hands it to the token manager. Only available when the client manages its
// own tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	if c.manager == nil {
		return ErrClientNotReady
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			kind := classifyStatus(retrieveErr.Response.StatusCode)
			return &Error{
				Kind:    kind,
				Status:  retrieveErr.Response.StatusCode,
				Message: retrieveErr.ErrorCode,
				cause:   err,
			}
		}
		return &Error{Kind: KindNetwork, Message: "code exchange failed", cause: err}
	}

	ts := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if ts.ExpiresAt.IsZero() {
		ts.ExpiresAt = inferExpiry(ts.AccessToken, 0, time.Now(), c.cfg.Token.FallbackAccessTTL)
	}
	return c.manager.Adopt(ctx, ts)
}
