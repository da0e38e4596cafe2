package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantforge/internal/audit"
	"quantforge/internal/bar"
	"quantforge/internal/config"
	"quantforge/internal/engine"
	"quantforge/internal/eventbus"
	"quantforge/internal/store"
	"quantforge/internal/strategy"
)

func testServer(t *testing.T) (*httptest.Server, *TokenIssuer, string) {
	t.Helper()

	bus := eventbus.New()
	registry := strategy.NewRegistry()
	registry.Register("noop", func() strategy.Strategy { return noopStrategy{} })

	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sink, err := audit.NewSink(t.TempDir(), []byte("integrity-key"), audit.SegmentConfig{RetentionDays: 7})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	orch := engine.New(&config.EngineConfig{
		MonitorTickInterval:   time.Second,
		ShutdownGraceDeadline: time.Second,
	}, bus, registry, st, sink, nil)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "quantforge", AccountName: "admin-test"})
	require.NoError(t, err)

	srv := NewServer(orch, Config{
		JWTSecret:  []byte("test-secret"),
		TOTPSecret: key.Secret(),
		Issuer:     "quantforge-test",
	})

	httpSrv := httptest.NewServer(srv.router)
	t.Cleanup(httpSrv.Close)
	return httpSrv, srv.issuer, key.Secret()
}

type noopStrategy struct{}

func (noopStrategy) Name() string                          { return "noop" }
func (noopStrategy) Initialize(cfg strategy.Config) error   { return nil }
func (noopStrategy) OnBar(b bar.Bar) ([]strategy.Signal, error) { return nil, nil }
func (noopStrategy) StateSnapshot() ([]byte, error)         { return nil, nil }

func TestStatusRequiresAuth(t *testing.T) {
	httpSrv, _, _ := testServer(t)

	resp, err := http.Get(httpSrv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusWithValidToken(t *testing.T) {
	httpSrv, issuer, _ := testServer(t)
	token, err := issuer.Issue("operator-1", false)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, httpSrv.URL+"/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "stopped", body["state"])
}

func TestEngineStartRequiresAdminAndTOTP(t *testing.T) {
	httpSrv, issuer, totpSecret := testServer(t)

	nonAdminToken, err := issuer.Issue("operator-1", false)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, httpSrv.URL+"/v1/engine/start", nil)
	req.Header.Set("Authorization", "Bearer "+nonAdminToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	adminToken, err := issuer.Issue("admin-1", true)
	require.NoError(t, err)
	req, _ = http.NewRequest(http.MethodPost, httpSrv.URL+"/v1/engine/start", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "missing TOTP code must still be rejected")

	code, err := totp.GenerateCode(totpSecret, time.Now())
	require.NoError(t, err)
	req, _ = http.NewRequest(http.MethodPost, httpSrv.URL+"/v1/engine/start", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("X-TOTP-Code", code)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunAndStopStrategy(t *testing.T) {
	httpSrv, issuer, _ := testServer(t)
	token, err := issuer.Issue("operator-1", false)
	require.NoError(t, err)

	body, _ := json.Marshal(runStrategyRequest{
		Name: "trend-1", Type: "noop", Symbol: "BTC-USDT", Timeframe: "1m",
	})
	req, _ := http.NewRequest(http.MethodPost, httpSrv.URL+"/v1/strategies", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, httpSrv.URL+"/v1/strategies/trend-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
