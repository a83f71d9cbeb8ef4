package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/chatrelay/internal/observability"
	"github.com/blueberrycongee/chatrelay/internal/prompt"
	llmerrors "github.com/blueberrycongee/chatrelay/pkg/errors"
)

const (
	// MaxResponseBodyBytes caps upstream response bodies.
	MaxResponseBodyBytes int64 = 10 * 1024 * 1024

	// MaxErrorExcerpt caps the body excerpt carried in upstream errors.
	MaxErrorExcerpt = 512

	// DefaultTimeout is the per-call timeout of the shared client.
	DefaultTimeout = 60 * time.Second
)

// ErrResponseBodyTooLarge is returned when a body exceeds MaxResponseBodyBytes.
var ErrResponseBodyTooLarge = errors.New("response body too large")

// Invoker sends adapter requests over one shared client and turns failed
// calls into classified errors.
type Invoker struct {
	client   *http.Client
	redactor *observability.Redactor
	logger   *slog.Logger
}

// NewInvoker creates an invoker. A nil client gets DefaultTimeout.
func NewInvoker(client *http.Client, logger *slog.Logger) *Invoker {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		client:   client,
		redactor: observability.NewRedactor(),
		logger:   logger,
	}
}

// Deps are the shared services handed to adapter factories.
type Deps struct {
	Invoker *Invoker
	Prompt  *prompt.Builder
	Tokens  *TokenCache
}

type descriptorKey struct{}

// WithDescriptor attaches desc to ctx so Invoke can name the provider in errors.
func WithDescriptor(ctx context.Context, desc Descriptor) context.Context {
	return context.WithValue(ctx, descriptorKey{}, desc)
}

// DescriptorFromContext returns the descriptor attached by WithDescriptor.
func DescriptorFromContext(ctx context.Context) (Descriptor, bool) {
	desc, ok := ctx.Value(descriptorKey{}).(Descriptor)
	return desc, ok
}

// NewJSONRequest encodes body and builds a POST request bound to desc.
func NewJSONRequest(ctx context.Context, url string, body any, desc Descriptor) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", desc.ID, err)
	}
	req, err := http.NewRequestWithContext(WithDescriptor(ctx, desc), http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", desc.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Do sends req. Network failures become transport errors; statuses >= 400
// become upstream errors whose message reads
// "<DisplayName> API error: <status> - <body excerpt>".
func (i *Invoker) Do(req *http.Request) (*http.Response, error) {
	desc, _ := DescriptorFromContext(req.Context())

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, llmerrors.NewTransportError(desc.ID, err)
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := ReadLimitedBody(resp.Body, MaxErrorExcerpt)
	excerpt := i.redactor.Redact(string(bytes.TrimSpace(body)))
	i.logger.Debug("provider returned error status",
		"provider", desc.ID,
		"status", resp.StatusCode,
		"request_headers", i.redactor.RedactHeaders(req.Header),
		"body", excerpt,
	)
	return nil, llmerrors.NewUpstreamError(desc.ID, resp.StatusCode,
		fmt.Sprintf("%s API error: %d - %s", displayName(desc), resp.StatusCode, excerpt))
}

// DecodeJSON reads and decodes a successful response body into v and closes
// it. Undecodable bodies are format errors.
func DecodeJSON(resp *http.Response, desc Descriptor, v any) error {
	defer resp.Body.Close()
	body, err := ReadLimitedBody(resp.Body, MaxResponseBodyBytes)
	if err != nil {
		if errors.Is(err, ErrResponseBodyTooLarge) {
			return llmerrors.NewFormatError(desc.ID, "response body too large")
		}
		return llmerrors.NewTransportError(desc.ID, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return llmerrors.NewFormatError(desc.ID, fmt.Sprintf("Invalid response from %s API: %v", displayName(desc), err))
	}
	return nil
}

// ReadLimitedBody reads up to maxBytes from r and returns
// ErrResponseBodyTooLarge, with the truncated body, when exceeded.
func ReadLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:maxBytes], ErrResponseBodyTooLarge
	}
	return body, nil
}

func displayName(desc Descriptor) string {
	if desc.DisplayName != "" {
		return desc.DisplayName
	}
	if desc.ID != "" {
		return desc.ID
	}
	return "Provider"
}
