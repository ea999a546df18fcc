package crm

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ajitpratap0/crmtap/pkg/config"
)

// sessionLifetime is assumed for access tokens issued without an expiry, so
// they are refreshed before the remote session times out.
const sessionLifetime = time.Hour

// tokenPath is the OAuth token endpoint relative to the login URL.
const tokenPath = "/services/oauth2/token"

// refreshingSource exchanges the refresh token for a new access token on
// every call. Callers wrap it in oauth2.ReuseTokenSource.
type refreshingSource struct {
	ctx          context.Context
	conf         *oauth2.Config
	mu           sync.Mutex
	refreshToken string
	now          func() time.Time
}

func newTokenSource(ctx context.Context, cfg config.Config) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(cfg.LoginURL, "/") + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	src := &refreshingSource{ctx: ctx, conf: conf, refreshToken: cfg.RefreshToken, now: time.Now}

	// A configured access token is only usable when the instance is known;
	// otherwise the refresh response has to supply instance_url.
	var seed *oauth2.Token
	if cfg.AccessToken != "" && cfg.InstanceURL != "" {
		seed = &oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(sessionLifetime),
		}
	}
	return oauth2.ReuseTokenSource(seed, src)
}

func (s *refreshingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.conf.TokenSource(s.ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = s.now().Add(sessionLifetime)
	}
	return tok, nil
}

// instanceURL reads the API host returned alongside the access token.
func instanceURL(tok *oauth2.Token) string {
	if v, ok := tok.Extra("instance_url").(string); ok {
		return strings.TrimRight(v, "/")
	}
	return ""
}
