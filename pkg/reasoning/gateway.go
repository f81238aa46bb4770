// Package reasoning turns a structured detection batch into a safety report
// by prompting a text-generation backend, failing over across credentials.
package reasoning

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/safety-analyzer/pkg/client"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// DefaultTimeout bounds a single credential attempt
const DefaultTimeout = 30 * time.Second

// Config controls prompting and failover
type Config struct {
	// Credentials are tried in declared order
	Credentials []string
	// Model is only used to scope cache keys
	Model string
	// Timeout applies to each attempt separately
	Timeout time.Duration
	// MaxAttempts caps how many credentials are tried; 0 means all
	MaxAttempts int
	Language    string
}

// Gateway runs the prompt, failover and parsing protocol
type Gateway struct {
	gen    client.TextGenerator
	config Config
	cache  Cache
	logger *zap.Logger
}

// Option customises a Gateway
type Option func(*Gateway)

// WithCache enables report caching
func WithCache(c Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithLogger sets the logger used for attempt diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway over a text-generation backend
func New(gen client.TextGenerator, config Config, opts ...Option) *Gateway {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	config.Credentials = append([]string(nil), config.Credentials...)

	g := &Gateway{gen: gen, config: config, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the backend name
func (g *Gateway) Provider() string {
	return g.gen.Name()
}

// Credentials returns how many credentials will be tried
func (g *Gateway) Credentials() int {
	return len(g.credentials())
}

func (g *Gateway) credentials() []string {
	creds := g.config.Credentials
	if g.config.MaxAttempts > 0 && len(creds) > g.config.MaxAttempts {
		creds = creds[:g.config.MaxAttempts]
	}
	return creds
}

// Analyze prompts the backend with the batch. Credentials are tried one after
// another; the first parsed report wins. A contract violation on one
// credential moves on to the next exactly like a transport failure. When all
// fail, the returned *ExhaustedError carries the last attempt's error.
func (g *Gateway) Analyze(ctx context.Context, batch types.StructuredDetectionBatch, mode Mode) (*types.SafetyAnalysisReport, error) {
	prompt, err := BuildPrompt(batch, mode, g.config.Language)
	if err != nil {
		return nil, err
	}

	creds := g.credentials()
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	key := CacheKey(g.gen.Name(), g.config.Model, prompt)
	if g.cache != nil {
		cached, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("failed to get cached report", zap.Error(err))
		} else if cached != nil {
			g.logger.Debug("reasoning cache hit", zap.String("mode", string(mode)))
			return cached, nil
		}
	}

	var last *AttemptError
	attempts := 0
	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = &AttemptError{Attempt: i + 1, Provider: g.gen.Name(), Kind: KindTransport, Err: err}
			}
			break
		}

		attempts++
		start := time.Now()
		report, aerr := g.attempt(ctx, i+1, cred, prompt)
		if aerr == nil {
			g.logger.Info("reasoning succeeded",
				zap.String("provider", g.gen.Name()),
				zap.String("mode", string(mode)),
				zap.Int("attempt", i+1),
				zap.Duration("cost", time.Since(start)))

			if g.cache != nil {
				if err := g.cache.Set(ctx, key, report); err != nil {
					g.logger.Warn("failed to set cached report", zap.Error(err))
				}
			}
			return report, nil
		}

		g.logFailure(aerr, time.Since(start))
		last = aerr
	}

	return nil, &ExhaustedError{Attempts: attempts, Last: last}
}

func (g *Gateway) attempt(ctx context.Context, n int, cred, prompt string) (*types.SafetyAnalysisReport, *AttemptError) {
	actx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	fail := func(kind FailureKind, err error) *AttemptError {
		return &AttemptError{Attempt: n, Provider: g.gen.Name(), Kind: kind, Err: err}
	}

	text, err := g.gen.Generate(actx, cred, prompt)
	if err != nil {
		if errors.Is(err, client.ErrMalformedResponse) {
			return nil, fail(KindContract, err)
		}
		return nil, fail(KindTransport, err)
	}

	report, err := ParseReport(text)
	if err != nil {
		return nil, fail(KindContract, err)
	}
	return report, nil
}

func (g *Gateway) logFailure(aerr *AttemptError, cost time.Duration) {
	fields := []zap.Field{
		zap.String("provider", aerr.Provider),
		zap.Int("attempt", aerr.Attempt),
		zap.String("failure_kind", string(aerr.Kind)),
		zap.Duration("cost", cost),
		zap.Error(aerr.Err),
	}
	var se *client.StatusError
	if errors.As(aerr.Err, &se) {
		fields = append(fields, zap.Int("status", se.Code), zap.String("body", se.Body))
	}
	g.logger.Warn("reasoning attempt failed", fields...)
}
