// Package dispatch sends a canonical chat request to one named provider.
// A dispatch selects the provider, acquires a credential, calls the adapter
// and records the outcome in the quota ledger. Credential and quota failures
// quarantine the credential and retry with the next one; every other failure
// ends the dispatch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/chatrelay/internal/blob"
	"github.com/blueberrycongee/chatrelay/internal/credential"
	"github.com/blueberrycongee/chatrelay/internal/metrics"
	"github.com/blueberrycongee/chatrelay/internal/observability"
	"github.com/blueberrycongee/chatrelay/internal/prompt"
	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/quota"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
	"github.com/blueberrycongee/chatrelay/pkg/types"
)

const (
	// DefaultMaxAttempts bounds the provider calls of one dispatch.
	DefaultMaxAttempts = 3

	defaultBlobTimeout = 10 * time.Second

	probeMessage = "ping"
	unknownLabel = "unknown"
)

// ErrUnknownProvider is returned for ids that are not in the catalog.
var ErrUnknownProvider = errors.New("unknown provider")

// Dispatcher is safe for concurrent use. The pool, ledger and registry are
// shared by every request.
type Dispatcher struct {
	registry *provider.Registry
	pool     *credential.Pool
	ledger   *quota.Ledger
	blobs    blob.Store
	tracer   trace.Tracer
	logger   *slog.Logger

	maxAttempts  int
	historyLimit int
	blobTimeout  time.Duration
	now          func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxAttempts sets the attempt bound.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithHistoryLimit sets how many prior turns are sent upstream.
func WithHistoryLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.historyLimit = n
		}
	}
}

// WithBlobStore enables resolution of image attachments given by reference.
func WithBlobStore(s blob.Store) Option {
	return func(d *Dispatcher) { d.blobs = s }
}

// WithTracer sets the tracer for attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides time.Now for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher.
func New(registry *provider.Registry, pool *credential.Pool, ledger *quota.Ledger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		pool:         pool,
		ledger:       ledger,
		tracer:       otel.Tracer(observability.TracerName),
		logger:       slog.Default(),
		maxAttempts:  DefaultMaxAttempts,
		historyLimit: prompt.DefaultHistoryLimit,
		blobTimeout:  defaultBlobTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PoolHooks reports quarantines and self-heals of a credential pool as
// metrics.
func PoolHooks() credential.Option {
	return credential.WithHooks(
		metrics.RecordQuarantine,
		func(provider string) { metrics.RecordPoolReset(provider, metrics.ResetHeal) },
	)
}

// Dispatch sends req to providerID. On success the result carries a fresh
// quota snapshot. On failure the last classified error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, providerID string, req *types.ChatRequest) (*types.ChatResult, error) {
	start := d.now()
	ctx, requestID := observability.EnsureRequestID(ctx)
	logger := observability.LoggerWithRequestID(ctx, d.logger).With("provider", providerID)

	if err := req.Validate(); err != nil {
		return nil, llmerrors.NewInvalidRequestError(err.Error())
	}

	// SELECT
	desc, adapter, err := d.selectProvider(providerID)
	if err != nil {
		metrics.RecordDispatch(d.label(providerID), llmerrors.Classify(err), 0)
		return nil, err
	}

	prepared := d.prepare(ctx, req, logger)

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		// ACQUIRE
		lease, err := d.pool.Acquire(providerID)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		// CALL
		result, err := d.attempt(ctx, attempt, lease, desc, adapter, prepared, requestID, logger)

		// RECORD
		if err == nil {
			d.ledger.RecordOutcome(ctx, providerID, true, "")
			view := d.ledger.CheckStatus(ctx, providerID)
			result.Provider = providerID
			result.Model = desc.Model
			result.Elapsed = d.now().Sub(start)
			result.Attempts = attempt
			result.RequestID = requestID
			result.Quota = &view
			metrics.RecordDispatch(providerID, "success", result.TokensUsed)
			logger.Info("dispatch succeeded",
				"attempts", attempt,
				"tokens", result.TokensUsed,
				"elapsed_ms", result.Elapsed.Milliseconds(),
			)
			return result, nil
		}

		lastErr = err
		d.ledger.RecordOutcome(ctx, providerID, false, llmerrors.Summary(err))

		if !llmerrors.IsKeyRelated(err) {
			break
		}
		d.pool.MarkFailed(providerID, lease.Index, llmerrors.Summary(err))
	}

	metrics.RecordDispatch(providerID, llmerrors.Classify(lastErr), 0)
	logger.Warn("dispatch failed", "error_class", llmerrors.Classify(lastErr), "error", lastErr)
	return nil, lastErr
}

// Probe sends a minimal request through one credential without retrying,
// records the outcome and returns the refreshed quota view with the call's
// error, if any.
func (d *Dispatcher) Probe(ctx context.Context, providerID string) (types.QuotaView, error) {
	ctx, requestID := observability.EnsureRequestID(ctx)
	logger := observability.LoggerWithRequestID(ctx, d.logger).With("provider", providerID, "probe", true)

	desc, adapter, err := d.selectProvider(providerID)
	if err != nil {
		return types.QuotaView{}, err
	}
	lease, err := d.pool.Acquire(providerID)
	if err != nil {
		return d.ledger.CheckStatus(ctx, providerID), err
	}

	desc.MaxTokens = 1
	_, err = d.attempt(ctx, 1, lease, desc, adapter, &types.ChatRequest{Message: probeMessage}, requestID, logger)
	if err != nil {
		d.ledger.RecordOutcome(ctx, providerID, false, llmerrors.Summary(err))
		if llmerrors.IsKeyRelated(err) {
			d.pool.MarkFailed(providerID, lease.Index, llmerrors.Summary(err))
		}
	} else {
		d.ledger.RecordOutcome(ctx, providerID, true, "")
	}
	return d.ledger.CheckStatus(ctx, providerID), err
}

// CheckStatus returns the quota view of one provider.
func (d *Dispatcher) CheckStatus(ctx context.Context, providerID string) (types.QuotaView, error) {
	if _, ok := d.registry.Lookup(providerID); !ok {
		return types.QuotaView{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return d.ledger.CheckStatus(ctx, providerID), nil
}

// AllStatuses returns the quota view of every configured provider.
func (d *Dispatcher) AllStatuses(ctx context.Context) map[string]types.QuotaView {
	return d.ledger.AllStatuses(ctx)
}

// AvailableProviders returns the dispatchable providers in priority order.
func (d *Dispatcher) AvailableProviders() []string {
	return d.registry.AvailableProviders()
}

// ProviderOverview is one catalog entry with its credential pool state.
type ProviderOverview struct {
	provider.Status
	Credentials credential.Stats `json:"credentials"`
}

// DescribeAll returns the catalog with availability and pool state.
func (d *Dispatcher) DescribeAll() []ProviderOverview {
	statuses := d.registry.DescribeAll()
	out := make([]ProviderOverview, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, ProviderOverview{Status: s, Credentials: d.pool.Stats(s.ID)})
	}
	return out
}

// ResetProvider clears the credential quarantine of providerID.
func (d *Dispatcher) ResetProvider(providerID string) error {
	if _, ok := d.registry.Lookup(providerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	d.pool.ResetProvider(providerID)
	metrics.RecordPoolReset(providerID, metrics.ResetAdmin)
	return nil
}

func (d *Dispatcher) selectProvider(providerID string) (provider.Descriptor, provider.Adapter, error) {
	if !d.registry.IsAvailable(providerID) {
		return provider.Descriptor{}, nil, llmerrors.NewProviderUnavailableError(providerID)
	}
	desc, _ := d.registry.Lookup(providerID)
	adapter, ok := d.registry.Adapter(providerID)
	if !ok {
		return provider.Descriptor{}, nil, llmerrors.NewProviderUnavailableError(providerID)
	}
	return desc, adapter, nil
}

func (d *Dispatcher) attempt(
	ctx context.Context,
	attempt int,
	lease credential.Lease,
	desc provider.Descriptor,
	adapter provider.Adapter,
	req *types.ChatRequest,
	requestID string,
	logger *slog.Logger,
) (*types.ChatResult, error) {
	ctx, span := observability.StartAttemptSpan(ctx, d.tracer, observability.AttemptSpanAttributes{
		Provider:  desc.ID,
		Model:     desc.Model,
		Dialect:   string(desc.Dialect),
		Attempt:   attempt,
		KeyIndex:  lease.Index,
		RequestID: requestID,
	})
	defer span.End()

	start := time.Now()
	result, err := d.call(ctx, lease, desc, adapter, req)
	latency := time.Since(start)

	if err != nil {
		class := llmerrors.Classify(err)
		observability.RecordError(span, err, class)
		metrics.RecordAttempt(desc.ID, class, latency)
		logger.Warn("provider call failed",
			"attempt", attempt,
			"key", observability.MaskCredential(lease.Credential),
			"key_index", lease.Index,
			"error_class", class,
			"error", err,
		)
		return nil, err
	}

	observability.RecordUsage(span, result.TokensUsed)
	metrics.RecordAttempt(desc.ID, "success", latency)
	return result, nil
}

func (d *Dispatcher) call(ctx context.Context, lease credential.Lease, desc provider.Descriptor, adapter provider.Adapter, req *types.ChatRequest) (*types.ChatResult, error) {
	httpReq, err := adapter.BuildRequest(ctx, req, lease.Credential, desc)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := adapter.Invoke(httpReq)
	if err != nil {
		return nil, err
	}
	return adapter.ParseResponse(resp, desc)
}

// prepare returns a copy of req with the history window applied and image
// references resolved. Unresolvable images are logged and sent without data.
func (d *Dispatcher) prepare(ctx context.Context, req *types.ChatRequest, logger *slog.Logger) *types.ChatRequest {
	out := *req
	out.History = req.RecentHistory(d.historyLimit)
	if len(req.Attachments) == 0 {
		return &out
	}

	out.Attachments = make([]types.Attachment, len(req.Attachments))
	copy(out.Attachments, req.Attachments)
	if d.blobs == nil {
		return &out
	}

	for i := range out.Attachments {
		a := &out.Attachments[i]
		if !a.IsImage() || len(a.Data) > 0 || a.Ref == "" {
			continue
		}
		getCtx, cancel := context.WithTimeout(ctx, d.blobTimeout)
		data, err := d.blobs.Get(getCtx, a.Ref)
		cancel()
		if err != nil {
			logger.Warn("attachment not resolved", "attachment", a.Name, "ref", a.Ref, "error", err)
			continue
		}
		a.Data = data
		a.Size = int64(len(data))
	}
	return &out
}

func (d *Dispatcher) label(providerID string) string {
	if _, ok := d.registry.Lookup(providerID); ok {
		return providerID
	}
	return unknownLabel
}
