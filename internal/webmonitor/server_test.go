package webmonitor

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/beststop/parking-server/internal/metrics"
	"github.com/beststop/parking-server/pkg/types"
)

type fakeHistory struct {
	rows  []types.AggregateResult
	err   error
	limit int
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]types.AggregateResult, error) {
	h.limit = limit
	return h.rows, h.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *Monitor, *httptest.Server) {
	t.Helper()
	m := NewMonitor()
	s := NewServer(DefaultConfig(), m, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, m, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestDadosBeforeFirstCycle(t *testing.T) {
	_, _, ts := newTestServer(t)

	var got map[string]any
	resp := getJSON(t, ts.URL+"/dados", &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"perc_livres":         0.0,
		"perc_ocupadas":       0.0,
		"total_vagas":         0.0,
		"vagas_livres":        0.0,
		"vagas_ocupadas":      0.0,
		"vagas_desconhecidas": 0.0,
	}, got)
}

func TestDadosReturnsLatest(t *testing.T) {
	_, m, ts := newTestServer(t)
	ts0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, m.Publish(context.Background(), types.AggregateResult{
		Total: 3, FreeCount: 1, OccupiedCount: 2, FreePct: 33.33, OccupiedPct: 66.67,
		Source: "Foto2.jpg", Timestamp: ts0,
	}))

	var got types.AggregateResult
	getJSON(t, ts.URL+"/dados", &got)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 33.33, got.FreePct)
	assert.Equal(t, "Foto2.jpg", got.Source)
	assert.True(t, ts0.Equal(got.Timestamp))
}

func TestDadosProtobuf(t *testing.T) {
	_, m, ts := newTestServer(t)
	require.NoError(t, m.Publish(context.Background(), types.AggregateResult{Total: 4, FreeCount: 3, OccupiedCount: 1, FreePct: 75, OccupiedPct: 25}))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/dados", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/protobuf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/protobuf", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(body, &st))
	assert.Equal(t, 75.0, st.Fields["perc_livres"].GetNumberValue())
	assert.Equal(t, 4.0, st.Fields["total_vagas"].GetNumberValue())
}

func TestPushThenVagas(t *testing.T) {
	m := metrics.New()
	_, _, ts := newTestServer(t, WithMetrics(m))

	resp, payload := post(t, ts.URL+"/atualizar_vagas", `{"livres": 3, "ocupadas": 1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok"}, payload)

	var vagas map[string]any
	getJSON(t, ts.URL+"/vagas", &vagas)
	assert.Equal(t, map[string]any{"livres": 3.0, "ocupadas": 1.0, "porcentagem_livres": 75.0}, vagas)
	assert.Equal(t, uint64(1), m.PushAccepted.Load())
}

func TestPushZeroTotal(t *testing.T) {
	_, _, ts := newTestServer(t)
	post(t, ts.URL+"/atualizar_vagas", `{"livres": 0, "ocupadas": 0}`)

	var vagas types.PushStatus
	getJSON(t, ts.URL+"/vagas", &vagas)
	assert.Equal(t, 0.0, vagas.PorcentagemLivres)
}

func TestPushRejectsInvalid(t *testing.T) {
	m := metrics.New()
	_, mon, ts := newTestServer(t, WithMetrics(m))
	post(t, ts.URL+"/atualizar_vagas", `{"livres": 2, "ocupadas": 2}`)

	bodies := []string{
		`{"livres": -1, "ocupadas": 2}`,
		`{"livres": 1}`,
		`{"livres": "3", "ocupadas": 1}`,
		`{"livres": 1.5, "ocupadas": 1}`,
		`not json`,
		`[1, 2]`,
		``,
	}
	for _, body := range bodies {
		resp, payload := post(t, ts.URL+"/atualizar_vagas", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Contains(t, payload, "error", body)
	}

	assert.Equal(t, types.PushStatus{Livres: 2, Ocupadas: 2, PorcentagemLivres: 50}, mon.Push())
	assert.Equal(t, uint64(len(bodies)), m.PushRejected.Load())
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/atualizar_vagas")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/dados", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	_, _, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/dados", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:63342")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHistorico(t *testing.T) {
	_, _, ts := newTestServer(t)
	var empty []any
	getJSON(t, ts.URL+"/historico", &empty)
	assert.Empty(t, empty)

	h := &fakeHistory{rows: []types.AggregateResult{{Total: 2}, {Total: 1}}}
	_, _, ts = newTestServer(t, WithHistory(h))

	var rows []types.AggregateResult
	getJSON(t, ts.URL+"/historico?limit=5", &rows)
	assert.Len(t, rows, 2)
	assert.Equal(t, 5, h.limit)

	getJSON(t, ts.URL+"/historico", &rows)
	assert.Equal(t, DefaultConfig().HistoryLimit, h.limit)

	resp, err := http.Get(ts.URL + "/historico?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.err = errors.New("locked")
	resp, err = http.Get(ts.URL + "/historico")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusAndHealth(t *testing.T) {
	_, m, ts := newTestServer(t,
		WithPhase(PhaseFunc(func() string { return "detecting" })),
		WithRecorderStatus(func() any { return map[string]int{"written": 2} }),
	)
	require.NoError(t, m.Publish(context.Background(), types.AggregateResult{Total: 1, FreeCount: 1, FreePct: 100}))
	m.UpdatePush(1, 1)

	var status map[string]any
	getJSON(t, ts.URL+"/api/status", &status)
	assert.Equal(t, "detecting", status["fase"])
	assert.Equal(t, 1.0, status["versao"])
	assert.Len(t, status["historico"], 1)
	assert.Equal(t, 50.0, status["vagas"].(map[string]any)["porcentagem_livres"])
	assert.Equal(t, map[string]any{"written": 2.0}, status["recorder"])

	var health map[string]any
	getJSON(t, ts.URL+"/health", &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "dev", health["version"])
}

func TestIndexAndMetrics(t *testing.T) {
	_, _, ts := newTestServer(t, WithMetrics(metrics.New()))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "/api/dados/stream")

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "beststop_cycles_total")
}

func TestAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.css"), []byte("body{}"), 0o644))

	cfg := DefaultConfig()
	cfg.AssetsDir = dir
	s := NewServer(cfg, NewMonitor())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/assets/app.css")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "body{}", string(body))

	resp, err = http.Get(ts.URL + "/assets/missing.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPushHandlerOnly(t *testing.T) {
	s := NewServer(DefaultConfig(), NewMonitor())
	ts := httptest.NewServer(s.PushHandler())
	defer ts.Close()

	resp, _ := post(t, ts.URL+"/atualizar_vagas", `{"livres": 1, "ocupadas": 3}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var vagas types.PushStatus
	getJSON(t, ts.URL+"/vagas", &vagas)
	assert.Equal(t, 25.0, vagas.PorcentagemLivres)

	resp, err := http.Get(ts.URL + "/dados")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestDadosStream(t *testing.T) {
	s, m, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/dados/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	var first types.AggregateResult
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &first))
	assert.Equal(t, 0, first.Total)

	require.Eventually(t, func() bool { return s.broadcaster.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Publish(context.Background(), types.AggregateResult{Total: 2, FreeCount: 2, FreePct: 100}))

	var next types.AggregateResult
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, reader)), &next))
	assert.Equal(t, 2, next.FreeCount)
}

func TestDadosStreamProtobuf(t *testing.T) {
	_, m, ts := newTestServer(t)
	require.NoError(t, m.Publish(context.Background(), types.AggregateResult{Total: 1, OccupiedCount: 1, OccupiedPct: 100}))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/dados/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/x-protobuf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/protobuf", resp.Header.Get("X-Content-Format"))

	raw, err := base64.StdEncoding.DecodeString(readEvent(t, bufio.NewReader(resp.Body)))
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	assert.Equal(t, 100.0, st.Fields["perc_ocupadas"].GetNumberValue())
}
