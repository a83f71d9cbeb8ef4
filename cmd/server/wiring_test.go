package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/chatrelay/internal/config"
	"github.com/blueberrycongee/chatrelay/internal/quota"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewQuotaStore_Memory(t *testing.T) {
	store, stats, err := newQuotaStore(context.Background(), config.QuotaConfig{Store: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &quota.MemoryStore{}, store)
	assert.Nil(t, stats)
	require.NoError(t, store.Close())
}

func TestNewQuotaStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig().Quota
	cfg.Store = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	store, stats, err := newQuotaStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, stats)
	defer store.Close()

	require.NoError(t, store.Put(context.Background(), "k", []byte("v")))
	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestNewQuotaStore_Unknown(t *testing.T) {
	_, _, err := newQuotaStore(context.Background(), config.QuotaConfig{Store: "etcd"})
	require.Error(t, err)
}

func TestNewSecretManager_EnvOnly(t *testing.T) {
	t.Setenv("CHATRELAY_WIRING_KEY", "sk-one,sk-two")

	m, err := newSecretManager(config.DefaultConfig().Secrets, discardLogger())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []string{"env"}, m.Schemes())
	val, err := m.Get(context.Background(), "env://CHATRELAY_WIRING_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-one,sk-two", val)
}

func TestNewBlobStore_Disabled(t *testing.T) {
	s, err := newBlobStore(context.Background(), config.BlobConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
}
