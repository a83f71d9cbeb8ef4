package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

// TokenCache exchanges "clientID:clientSecret" credentials for access tokens
// through the OAuth2 client-credentials grant and reuses each token until it
// expires.
type TokenCache struct {
	client *http.Client

	mu      sync.Mutex
	sources map[string]*tokenSource
}

// NewTokenCache creates a cache whose exchanges use client.
func NewTokenCache(client *http.Client) *TokenCache {
	return &TokenCache{
		client:  client,
		sources: make(map[string]*tokenSource),
	}
}

// SplitClientCredential splits "clientID:clientSecret".
func SplitClientCredential(credential string) (clientID, clientSecret string, ok bool) {
	clientID, clientSecret, ok = strings.Cut(credential, ":")
	if !ok || clientID == "" || clientSecret == "" {
		return "", "", false
	}
	return clientID, clientSecret, true
}

// Token returns a valid access token for credential. Malformed credentials
// and rejected exchanges are credential errors.
func (c *TokenCache) Token(ctx context.Context, desc Descriptor, credential string) (string, error) {
	clientID, clientSecret, ok := SplitClientCredential(credential)
	if !ok {
		return "", llmerrors.NewCredentialError(desc.ID, 0, "invalid api key: expected clientId:clientSecret")
	}
	if c.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	}

	tok, err := c.source(desc.TokenURL, clientID, clientSecret).token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", llmerrors.NewCredentialError(desc.ID, re.Response.StatusCode,
				"authentication failed: "+re.Error())
		}
		return "", llmerrors.NewTransportError(desc.ID, err)
	}
	return tok.AccessToken, nil
}

// Invalidate drops the cached token of credential so the next call exchanges
// again.
func (c *TokenCache) Invalidate(desc Descriptor, credential string) {
	c.mu.Lock()
	delete(c.sources, desc.TokenURL+"|"+credential)
	c.mu.Unlock()
}

// Len returns the number of cached credentials.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *TokenCache) source(tokenURL, clientID, clientSecret string) *tokenSource {
	key := tokenURL + "|" + clientID + ":" + clientSecret
	c.mu.Lock()
	defer c.mu.Unlock()
	src, ok := c.sources[key]
	if !ok {
		src = &tokenSource{cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}}
		c.sources[key] = src
	}
	return src
}

// tokenSource holds the last token of one credential. The exchange context
// is supplied per call so cancellation follows the request.
type tokenSource struct {
	cfg clientcredentials.Config

	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *tokenSource) token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok.Valid() {
		return s.tok, nil
	}
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return nil, err
	}
	s.tok = tok
	return tok, nil
}
