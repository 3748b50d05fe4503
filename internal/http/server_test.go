package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeEntries map[string][]entry.Entry

func (f fakeEntries) Stacks() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}

func (f fakeEntries) Stack(name string) ([]entry.Entry, error) {
	entries, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entry.ErrUnknownStack, name)
	}
	return entries, nil
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Subscriptions() []orchestrator.SubscriptionInfo {
	args := m.Called()
	return args.Get(0).([]orchestrator.SubscriptionInfo)
}

func (m *mockEngine) Publish(ctx context.Context, exprs ...string) error {
	args := m.Called(exprs)
	return args.Error(0)
}

type fakeHealth telemetry.HealthStatus

func (f fakeHealth) Health() telemetry.HealthStatus { return telemetry.HealthStatus(f) }

func setupTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Entries == nil {
		deps.Entries = fakeEntries{
			"styles": {{Source: "/src/styles/main.css", Relative: "styles/main.css"}},
			"empty":  nil,
		}
	}
	if deps.Engine == nil {
		deps.Engine = &mockEngine{}
	}
	server, err := NewServer(logging.NewNop(), nil, deps)
	require.NoError(t, err)
	return server
}

func serve(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t, Deps{})
		assert.Equal(t, "127.0.0.1:8089", server.Addr())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, Deps{Entries: fakeEntries{}, Engine: &mockEngine{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when entries is nil", func(t *testing.T) {
		_, err := NewServer(logging.NewNop(), nil, Deps{Engine: &mockEngine{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entries cannot be nil")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(logging.NewNop(), nil, Deps{Entries: fakeEntries{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok without telemetry", func(t *testing.T) {
		rec := serve(setupTestServer(t, Deps{}), http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Telemetry)
	})

	t.Run("degraded telemetry", func(t *testing.T) {
		server := setupTestServer(t, Deps{Health: fakeHealth{Degraded: true, Error: "exporter unreachable"}})
		rec := serve(server, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		require.NotNil(t, resp.Telemetry)
		assert.Equal(t, "exporter unreachable", resp.Telemetry.Error)
	})
}

func TestHandleStacks(t *testing.T) {
	server := setupTestServer(t, Deps{})

	rec := serve(server, http.MethodGet, "/api/v1/stacks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StacksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []StackSummary{{Name: "styles", Count: 1}, {Name: "empty", Count: 0}}, resp.Stacks)
}

func TestHandleStack(t *testing.T) {
	server := setupTestServer(t, Deps{})

	t.Run("known stack", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/v1/stacks/styles", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "styles", resp.Name)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "styles/main.css", resp.Entries[0].Relative)
	})

	t.Run("unknown stack", func(t *testing.T) {
		rec := serve(server, http.MethodGet, "/api/v1/stacks/scripts", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleSubscriptions(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Subscriptions").Return([]orchestrator.SubscriptionInfo{
		{Name: "styles", Hook: "styles", Handlers: []orchestrator.Phase{orchestrator.PhasePublish}},
	})
	server := setupTestServer(t, Deps{Engine: engine})

	rec := serve(server, http.MethodGet, "/api/v1/subscriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubscriptionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Subscriptions, 1)
	assert.Equal(t, "styles", resp.Subscriptions[0].Name)
	engine.AssertExpectations(t)
}

func TestHandlePublish(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("Publish", []string{"clean,styles.scripts"}).Return(nil)
		server := setupTestServer(t, Deps{Engine: engine})

		rec := serve(server, http.MethodPost, "/api/v1/publish", []byte(`{"hooks":["clean,styles.scripts"]}`))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp PublishResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "resolved", resp.Status)
		engine.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("Publish", []string(nil)).Return(multierr.Combine(
			&orchestrator.PhaseError{Name: "styles", Phase: orchestrator.PhasePublish, Err: fmt.Errorf("main.css:3:1: unexpected }")},
		))
		server := setupTestServer(t, Deps{Engine: engine})

		rec := serve(server, http.MethodPost, "/api/v1/publish", []byte(`{}`))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp PublishResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "rejected", resp.Status)
		require.Len(t, resp.Rejections, 1)
		assert.Equal(t, "styles", resp.Rejections[0].Task)
		assert.Equal(t, "publish", resp.Rejections[0].Phase)
	})

	t.Run("busy", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("Publish", []string{"styles"}).Return(fmt.Errorf("styles: %w", orchestrator.ErrPhaseBusy))
		server := setupTestServer(t, Deps{Engine: engine})

		rec := serve(server, http.MethodPost, "/api/v1/publish", []byte(`{"hooks":["styles"]}`))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing subscription", func(t *testing.T) {
		engine := &mockEngine{}
		engine.On("Publish", []string{"fonts"}).Return(&orchestrator.MissingSubscriptionError{Hook: "fonts"})
		server := setupTestServer(t, Deps{Engine: engine})

		rec := serve(server, http.MethodPost, "/api/v1/publish", []byte(`{"hooks":["fonts"]}`))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "fonts")
	})

	t.Run("invalid body", func(t *testing.T) {
		rec := serve(setupTestServer(t, Deps{}), http.MethodPost, "/api/v1/publish", []byte(`{"hooks":`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := setupTestServer(t, Deps{Registerer: reg, Gatherer: reg})

	serve(server, http.MethodGet, "/health", nil)
	serve(server, http.MethodGet, "/api/v1/stacks/missing", nil)

	rec := serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "plains_http_requests_total")
	assert.True(t, strings.Contains(body, `endpoint="/api/v1/stacks/:name"`), "route template used as label")
	assert.Contains(t, body, `status="404"`)
}

func TestMetricsEndpoint_AbsentWithoutGatherer(t *testing.T) {
	rec := serve(setupTestServer(t, Deps{}), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
