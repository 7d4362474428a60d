package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/logger"
	"github.com/mmr-tortoise/portjar/internal/model"
)

type acceptAll struct{}

func (acceptAll) Probe(port int, _ model.Protocol) (int, error) { return port, nil }

func newTestServer(t *testing.T, seed string) (*Server, *jar.Jar) {
	t.Helper()
	j, err := jar.New(jar.WithProber(acceptAll{}), jar.WithRange(5000, 5001))
	require.NoError(t, err)
	if seed != "" {
		_, err = j.Reserve(seed)
		require.NoError(t, err)
	}
	return New("127.0.0.1:0", j, logger.NewNop()), j
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "web 8080")

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Reservations)
}

func TestGetJar(t *testing.T) {
	s, _ := newTestServer(t, "web 8080\ndns/udp 53")

	rec := do(t, s.Handler(), http.MethodGet, "/api/jar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "web 8080\ndns/udp 53\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestListAndService(t *testing.T) {
	s, _ := newTestServer(t, "web 8080\napi/tcp 9090\nweb 8081")

	rec := do(t, s.Handler(), http.MethodGet, "/api/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []model.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = do(t, s.Handler(), http.MethodGet, "/api/services/web", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var web []model.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &web))
	assert.Equal(t, []model.Reservation{{Service: "web", Port: 8080}, {Service: "web", Port: 8081}}, web)

	rec = do(t, s.Handler(), http.MethodGet, "/api/services/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name       string
		seed       string
		body       string
		wantStatus int
		wantLine   int
		wantLen    int
	}{
		{name: "explicit and any", body: "web 8080\napi 0", wantStatus: http.StatusCreated, wantLen: 2},
		{name: "empty body", body: "", wantStatus: http.StatusCreated},
		{name: "invalid line", body: "web 8080\nbogus", wantStatus: http.StatusBadRequest, wantLine: 2, wantLen: 1},
		{name: "occupied", seed: "web 8080", body: "api 8080", wantStatus: http.StatusConflict, wantLine: 1, wantLen: 1},
		{name: "range exhausted", seed: "a 5000\nb 5001", body: "c 0", wantStatus: http.StatusServiceUnavailable, wantLine: 1, wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, j := newTestServer(t, tt.seed)

			rec := do(t, s.Handler(), http.MethodPost, "/api/reservations", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLen, j.Len())

			if tt.wantLine > 0 {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantLine, resp.Line)
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestReserve_PartialCommitReported(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := do(t, s.Handler(), http.MethodPost, "/api/reservations", "web 8080\nbogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []model.Reservation{{Service: "web", Port: 8080}}, resp.Reserved)
	assert.Equal(t, "bogus", resp.Text)
}

func TestDrop(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "dropped", query: "?line=" + url.QueryEscape("api/tcp 9090"), wantStatus: http.StatusNoContent},
		{name: "protocol mismatch", query: "?line=" + url.QueryEscape("api/udp 9090"), wantStatus: http.StatusNotFound},
		{name: "invalid", query: "?line=nonsense", wantStatus: http.StatusBadRequest},
		{name: "missing", query: "", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, "api/tcp 9090")
			rec := do(t, s.Handler(), http.MethodDelete, "/api/reservations"+tt.query, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestEvents(t *testing.T) {
	s, j := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	_, err = j.Reserve("web 8080")
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	assert.Equal(t, "event: reserved", lines[0])
	assert.JSONEq(t, `{"service":"web","port":8080}`, strings.TrimPrefix(lines[1], "data: "))
}

func TestStop_ClosesEventStreams(t *testing.T) {
	s, _ := newTestServer(t, "")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, <-serveErr)

	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
}

type memStore struct {
	mu    sync.Mutex
	text  string
	saves int
}

func (m *memStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *memStore) Save(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) snapshot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

func TestPersister(t *testing.T) {
	_, j := newTestServer(t, "")
	st := &memStore{}
	p := NewPersister(j, st, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	_, err := j.Reserve("web 8080")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return st.snapshot() == "web 8080\n"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = j.Reserve("api 9090")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return st.snapshot() == "web 8080\napi 9090\n"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, j.Drop("web 8080"))
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "api 9090\n", st.snapshot())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&model.LineError{Line: 1, Err: model.ErrInvalidLine}))
	assert.Equal(t, http.StatusConflict, statusFor(model.ErrPortOccupied))
	assert.Equal(t, http.StatusNotFound, statusFor(model.ErrUnknownService))
	assert.Equal(t, http.StatusNotFound, statusFor(model.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.ErrWrappedAround))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.ErrAttemptsExhausted))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
