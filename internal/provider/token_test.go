package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

func newTokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		if r.PostForm.Get("client_secret") != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + r.PostForm.Get("client_id") + `","expires_in":2592000}`))
	}))
}

func TestTokenCache_ExchangesAndReuses(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls)
	defer server.Close()

	cache := NewTokenCache(server.Client())
	desc := Descriptor{ID: "baidu", TokenURL: server.URL}

	tok, err := cache.Token(context.Background(), desc, "abc:secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)

	tok, err = cache.Token(context.Background(), desc, "abc:secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	tok, err = cache.Token(context.Background(), desc, "def:secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-def", tok)
	assert.Equal(t, 2, cache.Len())
}

func TestTokenCache_RejectedCredential(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls)
	defer server.Close()

	cache := NewTokenCache(server.Client())
	_, err := cache.Token(context.Background(), Descriptor{ID: "baidu", TokenURL: server.URL}, "abc:wrong")
	require.Error(t, err)

	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeCredential, ce.Type)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.True(t, llmerrors.IsKeyRelated(err))
}

func TestTokenCache_MalformedCredential(t *testing.T) {
	cache := NewTokenCache(nil)
	for _, cred := range []string{"nocolon", ":secret", "id:"} {
		_, err := cache.Token(context.Background(), Descriptor{ID: "baidu"}, cred)
		ce, ok := llmerrors.As(err)
		require.True(t, ok, cred)
		assert.Equal(t, llmerrors.TypeCredential, ce.Type)
		assert.True(t, llmerrors.IsKeyRelated(err))
	}
	assert.Equal(t, 0, cache.Len())
}
