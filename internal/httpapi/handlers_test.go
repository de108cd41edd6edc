package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"msgrelay/internal/directory"
	"msgrelay/internal/domain"
	"msgrelay/internal/httpapi"
	"msgrelay/internal/metrics"
	"msgrelay/internal/queue"
	"msgrelay/internal/registry"
)

func addr(hex string) domain.Address {
	return domain.Address("0x" + strings.Repeat(hex, 20))
}

type fixture struct {
	srv *httptest.Server
	dir *directory.Directory
	q   *queue.Queue
	reg *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	dir := directory.New(0, 3)
	q := queue.New(0, 0, time.Hour, log)
	reg := registry.New(log)
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg, func() float64 { return float64(q.Stats().Messages) })

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})

	h := httpapi.NewHandler(httpapi.Config{MaxBatch: 3}, dir, q, reg, m, ws, promReg, log)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, dir: dir, q: q, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestKeyExchange(t *testing.T) {
	f := newFixture(t)

	// Publish, fetch, replace, delete.
	resp, data := f.do(t, http.MethodPost, "/api/public-keys",
		map[string]string{"address": addr("aa").String(), "publicKey": "a2V5LTE="})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode(t, data)
	require.Equal(t, addr("aa").String(), rec["address"])
	require.Equal(t, "a2V5LTE=", rec["publicKey"])

	resp, data = f.do(t, http.MethodGet, "/api/public-keys/"+addr("aa").String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "a2V5LTE=", decode(t, data)["publicKey"])

	resp, data = f.do(t, http.MethodPost, "/api/public-keys",
		map[string]string{"address": addr("aa").String(), "publicKey": "a2V5LTI="})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, rec["createdAt"], decode(t, data)["createdAt"])

	resp, _ = f.do(t, http.MethodDelete, "/api/public-keys/"+addr("aa").String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data = f.do(t, http.MethodGet, "/api/public-keys/"+addr("aa").String(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decode(t, data)["error"])
}

func TestStoreKey_UppercaseAddressCanonicalized(t *testing.T) {
	f := newFixture(t)

	upper := "0x" + strings.Repeat("AB", 20)
	resp, _ := f.do(t, http.MethodPost, "/api/public-keys",
		map[string]string{"address": upper, "publicKey": "a2V5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Lookup by the lowercase form finds the same record.
	resp, _ = f.do(t, http.MethodGet, "/api/public-keys/"+strings.ToLower(upper), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStoreKey_Invalid(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodPost, "/api/public-keys",
		map[string]string{"address": "alice", "publicKey": "a2V5"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_address", decode(t, data)["error"])

	resp, data = f.do(t, http.MethodPost, "/api/public-keys",
		map[string]string{"address": addr("aa").String(), "publicKey": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "payload_too_large", decode(t, data)["error"])
}

func TestKeyBatch(t *testing.T) {
	f := newFixture(t)

	for _, hex := range []string{"aa", "bb"} {
		resp, _ := f.do(t, http.MethodPost, "/api/public-keys",
			map[string]string{"address": addr(hex).String(), "publicKey": "a2V5LQ==" + hex})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Missing and invalid entries are omitted, not errors.
	resp, data := f.do(t, http.MethodPost, "/api/public-keys/batch", map[string]any{
		"addresses": []string{addr("aa").String(), addr("cc").String(), "junk"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	keys := decode(t, data)["keys"].(map[string]any)
	require.Len(t, keys, 1)
	require.Contains(t, keys, addr("aa").String())
}

func TestKeyBatch_CapBoundary(t *testing.T) {
	f := newFixture(t)

	within := make([]string, 3)
	for i := range within {
		within[i] = addr(fmt.Sprintf("a%d", i)).String()
	}
	resp, _ := f.do(t, http.MethodPost, "/api/public-keys/batch", map[string]any{"addresses": within})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	over := append(within, addr("bb").String())
	resp, data := f.do(t, http.MethodPost, "/api/public-keys/batch", map[string]any{"addresses": over})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", decode(t, data)["error"])
}

func TestMessages_PeekSizeClear(t *testing.T) {
	f := newFixture(t)

	f.q.Enqueue(domain.Envelope{MessageID: "m-1", From: addr("aa"), To: addr("cc"), Content: "aGk=", Timestamp: 1})

	resp, data := f.do(t, http.MethodGet, "/api/messages/"+addr("cc").String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decode(t, data)["messages"].([]any)
	require.Len(t, msgs, 1)

	// Peek is non-destructive.
	resp, data = f.do(t, http.MethodGet, "/api/messages/"+addr("cc").String()+"/queue-size", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, decode(t, data)["queueSize"])

	resp, _ = f.do(t, http.MethodDelete, "/api/messages/"+addr("cc").String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 0, f.q.Size(addr("cc")))
}

func TestMessages_EmptyQueue(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/api/messages/"+addr("dd").String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// Always a JSON array, never null.
	require.Contains(t, string(data), `"messages":[]`)
}

func TestMessageStats(t *testing.T) {
	f := newFixture(t)

	f.q.Enqueue(domain.Envelope{MessageID: "m-1", From: addr("aa"), To: addr("cc"), Content: "aGk=", Timestamp: 1})
	f.q.Enqueue(domain.Envelope{MessageID: "m-2", From: addr("aa"), To: addr("dd"), Content: "aGk=", Timestamp: 2})

	resp, data := f.do(t, http.MethodGet, "/api/messages/stats/all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := decode(t, data)
	require.EqualValues(t, 2, stats["queuedMessages"])
	require.EqualValues(t, 2, stats["queuedAddresses"])
	require.EqualValues(t, 0, stats["connections"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/api/status/"+addr("aa").String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, data)
	require.Equal(t, false, body["online"])
	require.Equal(t, addr("aa").String(), body["address"])
}

func TestStatusBatch(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodPost, "/api/status/batch", map[string]any{
		"addresses": []string{addr("aa").String(), addr("bb").String()},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statuses := decode(t, data)["statuses"].(map[string]any)
	require.Len(t, statuses, 2)
	require.Equal(t, false, statuses[addr("aa").String()])
}

func TestOnlineAll_Empty(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/api/status/online/all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(data), `"addresses":[]`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, data)
	require.Equal(t, "ok", body["status"])
	require.NotZero(t, body["timestamp"])
	require.EqualValues(t, 0, body["queuedMessages"])
}

func TestBadPathAddress(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/api/public-keys/bogus",
		"/api/messages/bogus",
		"/api/status/bogus",
	} {
		resp, data := f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		require.Equal(t, "invalid_address", decode(t, data)["error"], path)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/public-keys",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, data := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(data), "relay_connections")
	require.Contains(t, string(data), "relay_queued_messages")
}
