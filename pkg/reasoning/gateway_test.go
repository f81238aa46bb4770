package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/menta2k/safety-analyzer/pkg/client"
	"github.com/menta2k/safety-analyzer/pkg/gemini"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

type reply struct {
	text string
	err  error
}

type fakeGenerator struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string
	block   bool
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, credential, prompt string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, credential)
	r := f.replies[credential]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

type memoryCache struct {
	data map[string]*types.SafetyAnalysisReport
}

func (m *memoryCache) Get(_ context.Context, key string) (*types.SafetyAnalysisReport, error) {
	return m.data[key], nil
}

func (m *memoryCache) Set(_ context.Context, key string, r *types.SafetyAnalysisReport) error {
	m.data[key] = r
	return nil
}

func emptyBatch() types.StructuredDetectionBatch {
	return types.StructuredDetectionBatch{
		Persons:  []types.BatchEntry{},
		Machines: []types.BatchEntry{},
		Tools:    []types.BatchEntry{},
		Hazards:  []types.BatchEntry{},
	}
}

func geminiServer(t *testing.T, handler func(key string) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, text := handler(r.Header.Get("x-goog-api-key"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(text))
			return
		}
		env := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
			}},
		}
		_ = json.NewEncoder(w).Encode(env)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeFailsOverToSecondKey(t *testing.T) {
	var seen []string
	srv := geminiServer(t, func(key string) (int, string) {
		seen = append(seen, key)
		if key == "key-1" {
			return http.StatusTooManyRequests, `{"error":"quota exhausted"}`
		}
		return http.StatusOK, "```json\n" + sampleReport + "\n```"
	})

	core, logs := observer.New(zapcore.DebugLevel)
	gw := New(gemini.NewClient(gemini.Config{Endpoint: srv.URL}),
		Config{Credentials: []string{"key-1", "key-2"}},
		WithLogger(zap.New(core)))

	report, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.NoError(t, err)
	assert.Equal(t, 72, report.RiskScore)
	assert.Equal(t, []string{"key-1", "key-2"}, seen)

	failures := logs.FilterMessage("reasoning attempt failed").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, "transport", fields["failure_kind"])
	assert.EqualValues(t, http.StatusTooManyRequests, fields["status"])
	assert.Contains(t, fields["body"], "quota exhausted")
	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "key-1")
			}
		}
	}
}

func TestAnalyzeAllKeysFail(t *testing.T) {
	srv := geminiServer(t, func(key string) (int, string) {
		if key == "key-1" {
			return http.StatusTooManyRequests, "quota"
		}
		return http.StatusInternalServerError, "boom"
	})

	gw := New(gemini.NewClient(gemini.Config{Endpoint: srv.URL}), Config{Credentials: []string{"key-1", "key-2"}})
	_, err := gw.Analyze(context.Background(), emptyBatch(), ModePPE)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, 2, exhausted.Last.Attempt)
	assert.Equal(t, KindTransport, exhausted.Kind())

	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
	assert.NotContains(t, err.Error(), "boom")
}

func TestAnalyzeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		rep  reply
		want FailureKind
	}{
		{"prose response", reply{text: "I am unable to help with that."}, KindContract},
		{"malformed envelope", reply{err: errors.Wrap(client.ErrMalformedResponse, "fake")}, KindContract},
		{"server error", reply{err: &client.StatusError{Code: 500}}, KindTransport},
		{"network error", reply{err: errors.New("connection refused")}, KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{replies: map[string]reply{"only": tt.rep}}
			gw := New(gen, Config{Credentials: []string{"only"}})

			_, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
			var exhausted *ExhaustedError
			require.True(t, errors.As(err, &exhausted))
			assert.Equal(t, tt.want, exhausted.Kind())
		})
	}
}

func TestAnalyzeContractFailureAdvances(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]reply{
		"a": {text: "Here is my analysis in prose."},
		"b": {text: sampleReport},
	}}
	gw := New(gen, Config{Credentials: []string{"a", "b"}})

	report, err := gw.Analyze(context.Background(), emptyBatch(), ModeProximity)
	require.NoError(t, err)
	assert.Equal(t, types.RiskHigh, report.RiskLevel)
	assert.Equal(t, []string{"a", "b"}, gen.calls)
}

func TestAnalyzeAcceptsLooselyTypedReport(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]reply{
		"a": {text: `{"risk_score": 72.5, "risk_level": "HIGH", "workers_count": "3"}`},
		"b": {text: sampleReport},
	}}
	gw := New(gen, Config{Credentials: []string{"a", "b"}})

	report, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.NoError(t, err)
	assert.Equal(t, 73, report.RiskScore)
	assert.Equal(t, 3, report.WorkersCount)
	assert.Equal(t, []string{"a"}, gen.calls)
}

func TestAnalyzeNoCredentials(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(gen, Config{}).Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	assert.True(t, errors.Is(err, ErrNoCredentials))
	assert.Empty(t, gen.calls)
}

func TestAnalyzeUnknownMode(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(gen, Config{Credentials: []string{"a"}}).Analyze(context.Background(), emptyBatch(), Mode("x"))
	assert.True(t, errors.Is(err, ErrUnknownMode))
	assert.Empty(t, gen.calls)
}

func TestAnalyzeMaxAttempts(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]reply{
		"a": {err: errors.New("down")},
		"b": {err: errors.New("down")},
		"c": {text: sampleReport},
	}}
	gw := New(gen, Config{Credentials: []string{"a", "b", "c"}, MaxAttempts: 2})
	assert.Equal(t, 2, gw.Credentials())

	_, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, gen.calls)
}

func TestAnalyzePerAttemptTimeout(t *testing.T) {
	gen := &fakeGenerator{block: true}
	gw := New(gen, Config{Credentials: []string{"a", "b"}, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, []string{"a", "b"}, gen.calls)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAnalyzeStopsWhenCallerCancels(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]reply{"a": {text: sampleReport}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(gen, Config{Credentials: []string{"a"}}).Analyze(ctx, emptyBatch(), ModeComprehensive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, gen.calls)
}

func TestAnalyzeUsesCache(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]reply{"a": {text: sampleReport}}}
	cache := &memoryCache{data: map[string]*types.SafetyAnalysisReport{}}
	gw := New(gen, Config{Credentials: []string{"a"}}, WithCache(cache))

	first, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.NoError(t, err)
	second, err := gw.Analyze(context.Background(), emptyBatch(), ModeComprehensive)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, gen.calls, 1)
	assert.Len(t, cache.data, 1)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("gemini", "m", "prompt")
	assert.Equal(t, a, CacheKey("gemini", "m", "prompt"))
	assert.NotEqual(t, a, CacheKey("ollama", "m", "prompt"))
	assert.NotEqual(t, a, CacheKey("gemini", "m", "prompt2"))
	assert.Regexp(t, `^reasoning:[0-9a-f]{64}$`, a)
}
