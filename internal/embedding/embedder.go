// Package embedding provides the embedding gateway: a domain.Embedder
// wrapper that adds per-call timeouts, bounded retries, rate limiting and
// parallel batch embedding on top of a concrete provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"edurag/internal/domain"
)

// ProviderError carries provider-specific details about a failed call.
// It always wraps domain.ErrEmbeddingUnavailable.
type ProviderError struct {
	Status     int
	RetryAfter time.Duration
	Permanent  bool
	Err        error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Unavailable formats an error wrapping domain.ErrEmbeddingUnavailable.
func Unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrEmbeddingUnavailable, fmt.Sprintf(format, args...))
}

// GatewayConfig tunes how a Gateway calls its provider.
type GatewayConfig struct {
	// Timeout bounds a single provider attempt. Zero disables it.
	Timeout time.Duration
	// MaxAttempts is the total number of tries per text (>= 1).
	MaxAttempts int
	// BaseDelay is the first backoff delay; each retry doubles it up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64
	// Parallelism caps concurrent calls in EmbedBatch.
	Parallelism int
	// Observe, when set, receives the total duration and outcome of every Embed.
	Observe func(elapsed time.Duration, err error)
}

// DefaultGatewayConfig returns the settings used when none are configured.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:     30 * time.Second,
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Parallelism: 4,
	}
}

// Gateway is the single entry point the engine uses to turn text into vectors.
type Gateway struct {
	embedder domain.Embedder
	cfg      GatewayConfig
	limiter  *rate.Limiter
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ domain.Embedder = (*Gateway)(nil)

// NewGateway wraps embedder. Zero-valued fields of cfg take their defaults.
func NewGateway(embedder domain.Embedder, cfg GatewayConfig, log zerolog.Logger) *Gateway {
	def := DefaultGatewayConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	g := &Gateway{
		embedder: embedder,
		cfg:      cfg,
		log:      log.With().Str("component", "embedding").Str("provider", embedder.Name()).Logger(),
		sleep:    sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g
}

// Name returns the wrapped provider name.
func (g *Gateway) Name() string { return g.embedder.Name() }

// Dimension returns the wrapped provider dimension (0 when not yet known).
func (g *Gateway) Dimension() int { return g.embedder.Dimension() }

// Embed returns the embedding for text, retrying transient provider failures
// with exponential backoff. All failures wrap domain.ErrEmbeddingUnavailable;
// cancellation of ctx additionally wraps ctx.Err().
func (g *Gateway) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if g.cfg.Observe == nil {
		return g.embed(ctx, text)
	}
	start := time.Now()
	vec, err := g.embed(ctx, text)
	g.cfg.Observe(time.Since(start), err)
	return vec, err
}

func (g *Gateway) embed(ctx context.Context, text string) (domain.Embedding, error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(ctx, err)
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, cancelled(ctx, err)
			}
		}
		vec, err := g.attempt(ctx, text)
		if err == nil && len(vec) == 0 {
			err = &ProviderError{Permanent: true, Err: Unavailable("provider returned an empty embedding")}
		}
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx, ctx.Err())
		}
		lastErr = err

		var perr *ProviderError
		if errors.As(err, &perr) && perr.Permanent {
			break
		}
		if attempt == g.cfg.MaxAttempts-1 {
			break
		}
		wait := retryDelay(attempt, g.cfg.BaseDelay, g.cfg.MaxDelay)
		if perr != nil && perr.RetryAfter > 0 {
			wait = perr.RetryAfter
		}
		g.log.Debug().Err(err).Int("attempt", attempt+1).Dur("backoff", wait).Msg("embedding attempt failed, retrying")
		if err := g.sleep(ctx, wait); err != nil {
			return nil, cancelled(ctx, err)
		}
	}
	if errors.Is(lastErr, domain.ErrEmbeddingUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, lastErr)
}

func (g *Gateway) attempt(ctx context.Context, text string) (domain.Embedding, error) {
	if g.cfg.Timeout <= 0 {
		return g.embedder.Embed(ctx, text)
	}
	actx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.embedder.Embed(actx, text)
}

// BatchResult is the outcome of embedding one text of a batch.
type BatchResult struct {
	Embedding domain.Embedding
	Err       error
}

// EmbedBatch embeds texts concurrently, at most Parallelism at a time.
// Results are positional; a failure for one text does not affect the others.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) []BatchResult {
	results := make([]BatchResult, len(texts))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Parallelism)
	for i, text := range texts {
		eg.Go(func() error {
			vec, err := g.Embed(ctx, text)
			results[i] = BatchResult{Embedding: vec, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
}

// retryDelay is base << attempt, capped at maxDelay.
func retryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return maxDelay
	}
	d := base << attempt
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
