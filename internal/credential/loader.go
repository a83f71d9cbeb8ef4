package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blueberrycongee/chatrelay/internal/observability"
)

// Resolver resolves a secret reference such as "env://OPENAI_API_KEYS",
// "vault://secret/data/llm#openai" or a literal value. *secret.Manager
// satisfies it.
type Resolver interface {
	Get(ctx context.Context, path string) (string, error)
}

// Source describes where the credentials of one provider come from.
type Source struct {
	Provider string

	// Ref is an explicit secret reference. When empty, EnvVars are tried in
	// order and the first one that is set wins.
	Ref string

	EnvVars []string
}

// Load resolves every source once and configures the pool. A provider whose
// source cannot be resolved is configured with zero credentials and reported
// in the returned error list; loading continues for the others.
func Load(ctx context.Context, resolver Resolver, pool *Pool, sources []Source, logger *slog.Logger) []error {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, src := range sources {
		raw, err := resolve(ctx, resolver, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", src.Provider, err))
		}
		keys := ParseKeys(raw)
		pool.Configure(src.Provider, keys)

		if len(keys) == 0 {
			logger.Debug("no credentials configured", "provider", src.Provider)
			continue
		}
		masked := make([]string, len(keys))
		for i, k := range keys {
			masked[i] = observability.MaskCredential(k)
		}
		logger.Info("credentials loaded",
			"provider", src.Provider,
			"count", len(keys),
			"keys", strings.Join(masked, ","),
		)
	}
	return errs
}

func resolve(ctx context.Context, resolver Resolver, src Source) (string, error) {
	if src.Ref != "" {
		return resolver.Get(ctx, src.Ref)
	}
	for _, name := range src.EnvVars {
		val, err := resolver.Get(ctx, "env://"+name)
		if err != nil {
			continue
		}
		if strings.TrimSpace(val) != "" {
			return val, nil
		}
	}
	return "", nil
}

// EnvVarsFor returns the conventional environment variable names for a
// provider id: <ID>_API_KEYS first, then <ID>_API_KEY.
func EnvVarsFor(provider string) []string {
	id := strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
	return []string{id + "_API_KEYS", id + "_API_KEY"}
}
