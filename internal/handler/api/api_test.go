package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/strategy"
	"SignalScope/internal/usecase"
	pkgcache "SignalScope/pkg/cache"
	xhttp "SignalScope/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func trendingDTOs(n int, step float64) []models.CandleDTO {
	out := make([]models.CandleDTO, n)
	price := 100.0
	for i := range out {
		price += step
		out[i] = models.CandleDTO{
			Time:   strconv.FormatInt(t0.Add(time.Duration(i)*15*time.Minute).Unix(), 10),
			Open:   price - step/2,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}
	return out
}

type env struct {
	echo    *echo.Echo
	scanner *usecase.Scanner
	hub     *Hub
}

func newEnv(t *testing.T, checks map[string]HealthCheck) *env {
	t.Helper()
	b, err := analysis.NewBuilder(analysis.DefaultConfig())
	require.NoError(t, err)
	reg, err := strategy.NewRegistry(strategy.DefaultConfig(), strategy.LegacyName, strategy.BreakoutV2Name)
	require.NoError(t, err)

	hub := NewHub(HubConfig{PingInterval: time.Second}, nil)
	scanner := usecase.NewScanner(usecase.ScannerConfig{Concurrency: 2}, usecase.ScannerDeps{
		Builder:  b,
		Registry: reg,
		Listener: hub,
	})
	h := NewSignalsEchoHandler(nil, usecase.NewAnalyzeUseCase(b, reg, nil, nil), scanner, hub, checks)
	srv := xhttp.NewServer(nil, h)
	t.Cleanup(hub.Close)
	return &env{echo: srv.Echo(), scanner: scanner, hub: hub}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestAnalyzeEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{
		"symbol": "BTCUSDT",
		"ltf":    trendingDTOs(250, 0.5),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := body["data"].(map[string]any)
	assert.Equal(t, "binance", data["exchange"])
	assert.Equal(t, "BTC", data["canonical_symbol"])
	sigs := data["signals"].([]any)
	require.Len(t, sigs, 2)
	first := sigs[0].(map[string]any)
	assert.Equal(t, "legacy", first["strategy_name"])
	assert.Equal(t, first["score"], first["total_score"])
}

func TestAnalyzeValidation(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{"ltf": trendingDTOs(5, 1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := body["data"].([]any)
	assert.Equal(t, "ERR_REQUIRED", errs[0].(map[string]any)["code"])

	rec, _ = e.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{
		"symbol": "BTCUSDT", "ltf": trendingDTOs(60, 1), "strategies": []string{"momentum"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeMalformedCandles(t *testing.T) {
	e := newEnv(t, nil)
	ltf := trendingDTOs(60, 1)
	ltf[5].Time = ltf[4].Time
	rec, body := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{"symbol": "BTCUSDT", "ltf": ltf})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := body["data"].([]any)
	assert.Equal(t, "ERR_BAD_REQUEST", errs[0].(map[string]any)["code"])
	assert.Contains(t, errs[0].(map[string]any)["message"], "malformed candles")
}

func TestAnalyzeDisabledStrategy(t *testing.T) {
	e := newEnv(t, nil)
	rec, _ := e.do(t, http.MethodPost, "/api/v1/analyze", map[string]any{
		"symbol": "BTCUSDT", "ltf": trendingDTOs(60, 1), "strategies": []string{"breakout"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestScanAndLatest(t *testing.T) {
	e := newEnv(t, nil)
	rec, _ := e.do(t, http.MethodGet, "/api/v1/signals/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"symbols": []map[string]any{
			{"symbol": "BTCUSDT", "exchange": "binance", "ltf": trendingDTOs(250, 0.5)},
			{"symbol": "ETHUSDT", "exchange": "binance"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := body["data"].(map[string]any)
	assert.EqualValues(t, 2, report["symbols"])
	assert.Len(t, report["signals"], 2)
	assert.Contains(t, report["errors"], "binance:ETHUSDT")

	rec, body = e.do(t, http.MethodGet, "/api/v1/signals/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report["scan_id"], body["data"].(map[string]any)["scan_id"])
}

func TestHealth(t *testing.T) {
	e := newEnv(t, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return nil },
	})
	rec, body := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["data"].(map[string]any)["status"])

	e = newEnv(t, map[string]HealthCheck{
		"clickhouse": func(context.Context) error { return nil },
		"redis":      func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec, body = e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "dial tcp: refused", data["checks"].(map[string]any)["redis"])
}

type heldQueue struct{ payloads []any }

func (q *heldQueue) Enqueue(_ context.Context, _ string, payload any) (string, error) {
	q.payloads = append(q.payloads, payload)
	return "m", nil
}

func TestScanJobEndpoints(t *testing.T) {
	b, err := analysis.NewBuilder(analysis.DefaultConfig())
	require.NoError(t, err)
	reg, err := strategy.NewRegistry(strategy.DefaultConfig())
	require.NoError(t, err)
	scanner := usecase.NewScanner(usecase.ScannerConfig{}, usecase.ScannerDeps{Builder: b, Registry: reg})

	store := pkgcache.NewMemoryCache()
	defer store.Close()
	q := &heldQueue{}
	h := NewSignalsEchoHandler(nil, usecase.NewAnalyzeUseCase(b, reg, nil, nil), scanner, nil, nil)
	h.SetScanJobs(usecase.NewScanJobs(q, store, scanner, time.Minute))
	e := &env{echo: xhttp.NewServer(nil, h).Echo(), scanner: scanner}

	rec, _ := e.do(t, http.MethodPost, "/api/v1/scan/jobs", map[string]any{"symbols": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := e.do(t, http.MethodPost, "/api/v1/scan/jobs", map[string]any{
		"symbols": []map[string]any{{"symbol": "BTCUSDT", "exchange": "binance"}},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := body["data"].(map[string]any)
	assert.Equal(t, "queued", job["state"])
	require.Len(t, q.payloads, 1)

	rec, body = e.do(t, http.MethodGet, "/api/v1/scan/jobs/"+job["id"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job["id"], body["data"].(map[string]any)["id"])

	rec, _ = e.do(t, http.MethodGet, "/api/v1/scan/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestWebsocketReceivesReports(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.echo)
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return e.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	report, err := e.scanner.Scan(context.Background(), models.ScanRequest{
		Symbols: []models.ScanSymbol{{Symbol: "BTCUSDT", Exchange: "binance", LTF: trendingDTOs(250, 0.5)}},
	})
	require.NoError(t, err)

	env := readEnvelope(t, conn)
	assert.Equal(t, "scan_report", env["type"])
	assert.Equal(t, report.ScanID, env["data"].(map[string]any)["scan_id"])

	// late subscribers get the last report straight away
	late := dialWS(t, srv)
	env = readEnvelope(t, late)
	assert.Equal(t, report.ScanID, env["data"].(map[string]any)["scan_id"])
}

func TestHubDropsSlowClients(t *testing.T) {
	h := NewHub(HubConfig{SendBuffer: 1}, nil)
	c := &wsClient{send: make(chan []byte, 1)}
	h.clients[c] = struct{}{}

	h.Broadcast(&models.ScanReport{ScanID: "a"})
	assert.Equal(t, 1, h.Clients())
	h.Broadcast(&models.ScanReport{ScanID: "b"})
	assert.Equal(t, 0, h.Clients())

	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok)
}
