package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/blueberrycongee/chatrelay/internal/blob"
	"github.com/blueberrycongee/chatrelay/internal/credential"
	"github.com/blueberrycongee/chatrelay/internal/observability"
	"github.com/blueberrycongee/chatrelay/internal/prompt"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/providers"
	"github.com/blueberrycongee/chatrelay/internal/quota"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

// fakeUpstream answers chat-dialect calls. Keys listed in bad get the
// configured failure status; all others succeed.
type fakeUpstream struct {
	server *httptest.Server

	mu         sync.Mutex
	bad        map[string]bool
	failStatus int
	calls      int
	keys       []string
	lastBody   map[string]any
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{bad: map[string]bool{}, failStatus: http.StatusUnauthorized}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.calls++
		f.keys = append(f.keys, key)
		_ = json.Unmarshal(body, &f.lastBody)
		bad, status := f.bad[key], f.failStatus
		f.mu.Unlock()

		if bad {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream said no"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"pong"}}],"usage":{"total_tokens":11}}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingStore records every value written to the quota store.
type countingStore struct {
	*quota.MemoryStore

	mu   sync.Mutex
	puts [][]byte
}

func (c *countingStore) Put(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.puts = append(c.puts, append([]byte(nil), value...))
	c.mu.Unlock()
	return c.MemoryStore.Put(ctx, key, value)
}

func (c *countingStore) records(t *testing.T) []quota.Record {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]quota.Record, 0, len(c.puts))
	for _, data := range c.puts {
		var r quota.Record
		require.NoError(t, json.Unmarshal(data, &r))
		out = append(out, r)
	}
	return out
}

type fixture struct {
	upstream   *fakeUpstream
	store      *countingStore
	pool       *credential.Pool
	ledger     *quota.Ledger
	registry   *provider.Registry
	dispatcher *Dispatcher
	spans      *tracetest.SpanRecorder
}

func newFixture(t *testing.T, openaiKeys string, opts ...Option) *fixture {
	t.Helper()
	up := newFakeUpstream(t)

	pool := credential.NewPool()
	pool.Configure("openai", credential.ParseKeys(openaiKeys))

	registry := provider.NewRegistry(provider.DefaultCatalog(), pool)
	require.NoError(t, registry.ApplyOverrides(map[string]provider.Override{"openai": {BaseURL: up.server.URL}}))
	providers.RegisterAll(registry, provider.Deps{
		Invoker: provider.NewInvoker(up.server.Client(), nil),
		Prompt:  prompt.NewBuilder(),
		Tokens:  provider.NewTokenCache(up.server.Client()),
	})

	store := &countingStore{MemoryStore: quota.NewMemoryStore()}
	ledger := quota.NewLedger(store, registry, quota.WithLocation(time.UTC))

	spans := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	opts = append([]Option{WithTracer(tp.Tracer("test"))}, opts...)
	return &fixture{
		upstream:   up,
		store:      store,
		pool:       pool,
		ledger:     ledger,
		registry:   registry,
		dispatcher: New(registry, pool, ledger, opts...),
		spans:      spans,
	}
}

func TestDispatch_Success(t *testing.T) {
	f := newFixture(t, "k1,k2")
	ctx := observability.ContextWithRequestID(context.Background(), "req-1")

	res, err := f.dispatcher.Dispatch(ctx, "openai", &types.ChatRequest{Message: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Content)
	assert.Equal(t, 11, res.TokensUsed)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "gpt-4.1-2025-04-14", res.Model)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "req-1", res.RequestID)
	require.NotNil(t, res.Quota)
	assert.Equal(t, 1, res.Quota.Used)
	assert.True(t, res.Quota.CanUse)

	require.Len(t, f.spans.Ended(), 1)
	assert.Equal(t, "provider.call", f.spans.Ended()[0].Name())
}

func TestDispatch_RotatesPastBadKey(t *testing.T) {
	f := newFixture(t, "bad,good")
	f.upstream.bad["bad"] = true

	res, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{"bad", "good"}, f.upstream.keys)

	stats := f.pool.Stats("openai")
	assert.Equal(t, 1, stats.Quarantined)
	assert.Equal(t, 1, res.Quota.Used)
	assert.Empty(t, res.Quota.LastError)

	// One write per attempt: the failure keeps used at 0 and stores the
	// credential class, the success counts once and clears it.
	records := f.store.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Used)
	assert.True(t, strings.HasPrefix(records[0].LastError, llmerrors.TypeCredential+":"), records[0].LastError)
	assert.Equal(t, 1, records[1].Used)
	assert.Empty(t, records[1].LastError)

	// The quarantined key is skipped on the next dispatch.
	_, err = f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "good", "good"}, f.upstream.keys)
}

func TestDispatch_StopsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, "a,b,c,d")
	for _, k := range []string{"a", "b", "c", "d"} {
		f.upstream.bad[k] = true
	}
	f.upstream.failStatus = http.StatusTooManyRequests

	_, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, f.upstream.callCount())
	assert.Equal(t, llmerrors.TypeQuota, llmerrors.Classify(err))
	assert.Contains(t, err.Error(), "429")

	assert.Equal(t, 3, f.pool.Stats("openai").Quarantined)
	view, err := f.dispatcher.CheckStatus(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, 0, view.Used)
	assert.True(t, strings.HasPrefix(view.LastError, llmerrors.TypeQuota+": "))

	// One key left, so the provider stays available.
	assert.Contains(t, f.dispatcher.AvailableProviders(), "openai")
}

func TestDispatch_SingleKeySelfHealsWithinDispatch(t *testing.T) {
	f := newFixture(t, "only")
	f.upstream.bad["only"] = true

	_, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Equal(t, []string{"only", "only", "only"}, f.upstream.keys)

	// Fully quarantined providers are not selectable until reset.
	_, err = f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeProviderUnavailable, ce.Type)

	require.NoError(t, f.dispatcher.ResetProvider("openai"))
	f.upstream.bad["only"] = false
	_, err = f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.NoError(t, err)
}

func TestDispatch_HardFailureAbortsImmediately(t *testing.T) {
	f := newFixture(t, "a,b")
	f.upstream.bad["a"] = true
	f.upstream.failStatus = http.StatusInternalServerError

	_, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, f.upstream.callCount())
	assert.Equal(t, 0, f.pool.Stats("openai").Quarantined)
	assert.Equal(t, llmerrors.TypeUpstream, llmerrors.Classify(err))
}

func TestDispatch_Unavailable(t *testing.T) {
	f := newFixture(t, "k")

	for _, id := range []string{"gemini", "no-such-provider"} {
		_, err := f.dispatcher.Dispatch(context.Background(), id, &types.ChatRequest{Message: "x"})
		ce, ok := llmerrors.As(err)
		require.True(t, ok, id)
		assert.Equal(t, llmerrors.TypeProviderUnavailable, ce.Type, id)
	}
	assert.Equal(t, 0, f.upstream.callCount())
}

func TestDispatch_InvalidRequest(t *testing.T) {
	f := newFixture(t, "k")
	_, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "  "})
	ce, ok := llmerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, llmerrors.TypeInvalidRequest, ce.Type)
	assert.Equal(t, 0, f.upstream.callCount())
}

func TestDispatch_HistoryWindow(t *testing.T) {
	f := newFixture(t, "k")
	req := &types.ChatRequest{Message: "latest"}
	for i := 0; i < 15; i++ {
		req.History = append(req.History, types.Turn{Role: "user", Content: "turn"})
	}

	_, err := f.dispatcher.Dispatch(context.Background(), "openai", req)
	require.NoError(t, err)

	messages, ok := f.upstream.lastBody["messages"].([]any)
	require.True(t, ok)
	// system + 10 turns + current message
	assert.Len(t, messages, 12)
	assert.Len(t, req.History, 15)
}

func TestDispatch_ConcurrentSuccessesAllCounted(t *testing.T) {
	f := newFixture(t, "a,b,c")

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.dispatcher.Dispatch(context.Background(), "openai", &types.ChatRequest{Message: "x"}); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failures))
	view, err := f.dispatcher.CheckStatus(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, 25, view.Used)
}

func TestProbe(t *testing.T) {
	f := newFixture(t, "good")

	view, err := f.dispatcher.Probe(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Used)
	assert.EqualValues(t, 1, f.upstream.lastBody["max_tokens"])

	f.upstream.bad["good"] = true
	view, err = f.dispatcher.Probe(context.Background(), "openai")
	require.Error(t, err)
	assert.Equal(t, 2, f.upstream.callCount())
	assert.NotEmpty(t, view.LastError)
	assert.Equal(t, 1, f.pool.Stats("openai").Quarantined)
}

func TestResetProviderAndDescribe(t *testing.T) {
	f := newFixture(t, "a,b")
	f.pool.MarkFailed("openai", 0, "test")

	assert.ErrorIs(t, f.dispatcher.ResetProvider("nope"), ErrUnknownProvider)
	require.NoError(t, f.dispatcher.ResetProvider("openai"))
	assert.Equal(t, 0, f.pool.Stats("openai").Quarantined)

	_, err := f.dispatcher.CheckStatus(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	all := f.dispatcher.DescribeAll()
	require.Len(t, all, len(provider.DefaultCatalog()))
	for _, o := range all {
		if o.ID == "openai" {
			assert.True(t, o.Available)
			assert.Equal(t, 2, o.Credentials.Total)
		} else {
			assert.Equal(t, provider.ReasonNoCredentials, o.Reason)
		}
	}

	statuses := f.dispatcher.AllStatuses(context.Background())
	assert.Len(t, statuses, 1)
	assert.Contains(t, statuses, "openai")
}

func TestPrepare_ResolvesImageRefs(t *testing.T) {
	store := blob.NewMemoryStore()
	store.Put("u/cat.png", []byte("png-bytes"))

	f := newFixture(t, "k", WithBlobStore(store))
	req := &types.ChatRequest{
		Message: "look",
		Attachments: []types.Attachment{
			{Name: "cat.png", MimeType: "image/png", Ref: "u/cat.png"},
			{Name: "gone.png", MimeType: "image/png", Ref: "u/gone.png"},
			{Name: "notes.txt", MimeType: "text/plain", Ref: "u/cat.png", Text: "t"},
		},
	}

	out := f.dispatcher.prepare(context.Background(), req, f.dispatcher.logger)
	assert.Equal(t, []byte("png-bytes"), out.Attachments[0].Data)
	assert.EqualValues(t, 9, out.Attachments[0].Size)
	assert.Nil(t, out.Attachments[1].Data)
	assert.Nil(t, out.Attachments[2].Data)
	// The caller's request is not modified.
	assert.Nil(t, req.Attachments[0].Data)
	assert.Len(t, out.Images(), 1)
}

func TestDispatch_DailyLimitDoesNotPreBlock(t *testing.T) {
	f := newFixture(t, "a,b")
	limit := 2
	require.NoError(t, f.registry.ApplyOverrides(map[string]provider.Override{
		"openai": {BaseURL: f.upstream.server.URL, DailyLimit: &limit},
	}))
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		res, err := f.dispatcher.Dispatch(ctx, "openai", &types.ChatRequest{Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, want, res.Quota.Used)
	}

	before, err := f.dispatcher.CheckStatus(ctx, "openai")
	require.NoError(t, err)
	assert.False(t, before.CanUse)
	require.NotNil(t, before.DailyLimit)
	assert.Equal(t, 2, *before.DailyLimit)

	res, err := f.dispatcher.Dispatch(ctx, "openai", &types.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quota.Used)
	assert.Equal(t, 3, f.upstream.callCount())
}
