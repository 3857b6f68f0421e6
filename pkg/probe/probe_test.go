package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(attempts int) Options {
	return Options{
		MaxAttempts: attempts,
		Interval:    time.Millisecond,
		Logger:      log.NewTestLogger(),
	}
}

func TestClassifierOrderedRules(t *testing.T) {
	classifier := NewClassifier([]types.ClassifyRule{
		{Contains: `"status":"green"`, Status: types.HealthReady},
		{Contains: `"status":"yellow"`, Status: types.HealthReady},
		{Contains: `"status":"red"`, Status: types.HealthDegraded},
		{Contains: "certificate signed by unknown authority", Status: types.HealthFatal},
	}, types.HealthBooting)

	tests := []struct {
		name string
		raw  string
		want types.HealthStatus
	}{
		{"green cluster", `{"status":"green","number_of_nodes":1}`, types.HealthReady},
		{"yellow cluster", `{"status":"yellow"}`, types.HealthReady},
		{"red cluster", `{"status":"red"}`, types.HealthDegraded},
		{"untrusted cert", "error=Get https://localhost:9200: certificate signed by unknown authority", types.HealthFatal},
		{"no match falls back", "connection refused", types.HealthBooting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := classifier.Classify(tt.raw)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.raw, detail)
		})
	}
}

func TestClassifierFirstMatchWins(t *testing.T) {
	// A more specific fatal rule listed first beats a later ready rule
	// matching the same output.
	classifier := NewClassifier([]types.ClassifyRule{
		{Contains: "pipeline not found", Status: types.HealthFatal},
		{Contains: "status=200", Status: types.HealthReady},
	}, types.HealthBooting)

	status, _ := classifier.Classify("status=200 body=pipeline not found")
	assert.Equal(t, types.HealthFatal, status)
}

func TestWaitReadyImmediateSuccess(t *testing.T) {
	checker := CheckerFunc(func(ctx context.Context) string { return "status=200 body=ok" })
	classifier := NewClassifier(DefaultHTTPRules(), types.HealthBooting)

	result := WaitReady(context.Background(), checker, classifier, testOptions(10))
	assert.Equal(t, types.HealthReady, result.Status)
	assert.Equal(t, 1, result.Attempts)
}

func TestWaitReadyFatalShortCircuit(t *testing.T) {
	calls := 0
	checker := CheckerFunc(func(ctx context.Context) string {
		calls++
		return "error=x509: certificate signed by unknown authority"
	})
	classifier := NewClassifier([]types.ClassifyRule{
		{Contains: "certificate signed by unknown authority", Status: types.HealthFatal},
	}, types.HealthBooting)

	result := WaitReady(context.Background(), checker, classifier, testOptions(50))

	// A fatal classification must return at attempt 1, not burn the
	// whole retry window.
	assert.Equal(t, types.HealthFatal, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
	assert.Contains(t, result.Detail, "certificate signed by unknown authority")
}

func TestWaitReadyEventualSuccess(t *testing.T) {
	calls := 0
	checker := CheckerFunc(func(ctx context.Context) string {
		calls++
		if calls < 3 {
			return "error=connection refused"
		}
		return "status=200 body=ok"
	})
	classifier := NewClassifier(DefaultHTTPRules(), types.HealthBooting)

	result := WaitReady(context.Background(), checker, classifier, testOptions(10))
	assert.Equal(t, types.HealthReady, result.Status)
	assert.Equal(t, 3, result.Attempts)
}

func TestWaitReadyTimeout(t *testing.T) {
	checker := CheckerFunc(func(ctx context.Context) string { return "error=connection refused" })
	classifier := NewClassifier(DefaultHTTPRules(), types.HealthBooting)

	result := WaitReady(context.Background(), checker, classifier, testOptions(4))
	assert.Equal(t, types.HealthBooting, result.Status)
	assert.Equal(t, 4, result.Attempts)
}

func TestWaitReadyCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	checker := CheckerFunc(func(ctx context.Context) string {
		cancel()
		return "error=connection refused"
	})
	classifier := NewClassifier(DefaultHTTPRules(), types.HealthBooting)

	opts := testOptions(100)
	opts.Interval = time.Hour
	result := WaitReady(ctx, checker, classifier, opts)

	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Detail, "cancelled")
}

func TestHTTPChecker(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/_cluster/health":
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"green"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("booting"))
		}
	}))
	defer server.Close()

	checker := &HTTPChecker{
		URL:      server.URL + "/_cluster/health",
		Username: "elastic",
		Password: "pw",
	}
	raw := checker.Check(context.Background())
	assert.Contains(t, raw, "status=200")
	assert.Contains(t, raw, `"status":"green"`)
	require.NotEmpty(t, sawAuth)
	assert.Contains(t, sawAuth, "Basic ")

	checker = &HTTPChecker{URL: server.URL + "/not-ready"}
	raw = checker.Check(context.Background())
	assert.Contains(t, raw, "status=503")
}

func TestHTTPCheckerTransportError(t *testing.T) {
	checker := &HTTPChecker{URL: "http://127.0.0.1:1/unreachable"}
	raw := checker.Check(context.Background())
	assert.Contains(t, raw, "error=")
}
