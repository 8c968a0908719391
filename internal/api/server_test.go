package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/projectd/internal/access"
	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/envelope"
	"github.com/fyrsmithlabs/projectd/internal/registry"
)

const (
	serviceGroup = "service-agents"
	servicePrin  = "projectd"
	agentA       = "agent-a"
	agentB       = "agent-b"
)

func newTestServer(t *testing.T, visibility config.Visibility) (*Server, *access.MemoryDirectory) {
	t.Helper()

	dir := access.NewMemoryDirectory()
	dir.AddGroup(serviceGroup, "Service Agents", servicePrin)
	dir.AddGroup("group-g", "Group G", agentA)

	reg := registry.New(registry.Options{
		Store:        envelope.NewMemoryStore(dir),
		Oracle:       dir,
		Systems:      config.Systems{"demo": {Visibility: visibility}},
		ServiceGroup: serviceGroup,
		Principal:    servicePrin,
	})

	recovery := access.NewLegacyCredentialRecovery(dir, serviceGroup, servicePrin, "legacy", "sesame", nil)

	srv, err := NewServer(reg, recovery, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv, dir
}

func do(srv *Server, method, path, agent, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echoContentType, "application/json")
	}
	if agent != "" {
		req.Header.Set(AgentHeader, agent)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

const projectSpec = `{"name":"P","linkedGroup":{"name":"Group G","id":"group-g"},"metadata":{"topic":"testing"}}`

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)
	rec := do(srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateProject(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"P"`)

	// Duplicate name conflicts.
	rec = do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "conflict")
}

func TestCreateStatusMapping(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	tests := []struct {
		name   string
		path   string
		agent  string
		body   string
		status int
	}{
		{"unknown system", "/systems/nope/projects", agentA, projectSpec, http.StatusBadRequest},
		{"missing identity", "/systems/demo/projects", "", projectSpec, http.StatusUnauthorized},
		{"non-member", "/systems/demo/projects", agentB, projectSpec, http.StatusForbidden},
		{"bad spec", "/systems/demo/projects", agentA, `{"name":"P"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, http.MethodPost, tt.path, tt.agent, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetAndListVisibility(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityAll)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Member sees is_member true.
	rec = do(srv, http.MethodGet, "/systems/demo/projects/P", agentA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_member":true`)

	// Non-member sees the project under all-visibility.
	rec = do(srv, http.MethodGet, "/systems/demo/projects/P", agentB, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_member":false`)

	rec = do(srv, http.MethodGet, "/systems/demo/projects", agentB, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"P"`)

	rec = do(srv, http.MethodGet, "/systems/demo/projects/ghost", agentA, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHiddenProjectForbidden(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodGet, "/systems/demo/projects/P", agentB, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodGet, "/systems/demo/projects", agentB, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteProject(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodDelete, "/systems/demo/projects/P", agentB, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodDelete, "/systems/demo/projects/P", agentA, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(srv, http.MethodDelete, "/systems/demo/projects/P", agentA, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeGroupRoute(t *testing.T) {
	srv, dir := newTestServer(t, config.VisibilityOwn)
	dir.AddGroup("group-h", "Group H", agentA)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodPut, "/systems/demo/projects/P/group", agentA,
		`{"groupIdentifier":"group-h","groupName":"Group H"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"groupIdentifier":"group-h"`)

	rec = do(srv, http.MethodPut, "/systems/demo/projects/P/group", agentA, `{"groupName":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeMetadataRoute(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodPut, "/systems/demo/projects/P/metadata", agentA,
		`{"oldMetadata":{"topic":"testing"},"newMetadata":{"topic":"shipped"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "shipped")

	// Replays against the superseded value conflict.
	rec = do(srv, http.MethodPut, "/systems/demo/projects/P/metadata", agentA,
		`{"oldMetadata":{"topic":"testing"},"newMetadata":{"topic":"again"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "stale metadata")
}

func TestHasAccessRoute(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(srv, http.MethodGet, "/systems/demo/projects/P/access?agent="+agentA, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasAccess":true}`, rec.Body.String())

	rec = do(srv, http.MethodGet, "/systems/demo/projects/P/access?agent="+agentB, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasAccess":false}`, rec.Body.String())

	// Falls back to the identity header when no query parameter given.
	rec = do(srv, http.MethodGet, "/systems/demo/projects/P/access", agentA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hasAccess":true}`, rec.Body.String())
}

func TestRecoverEndpoint(t *testing.T) {
	srv, dir := newTestServer(t, config.VisibilityOwn)
	dir.RegisterAgent("legacy", "sesame")
	dir.AddGroup(serviceGroup, "Service Agents", "legacy")

	rec := do(srv, http.MethodPost, "/admin/recover-service-group", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	require.NoError(t, dir.RequestGroupHandle(context.Background(), serviceGroup, servicePrin))
}

func TestRecoverEndpointWithoutStrategy(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)
	srv.recovery = nil

	rec := do(srv, http.MethodPost, "/admin/recover-service-group", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareSeedsRequestContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	dir := access.NewMemoryDirectory()
	dir.AddGroup(serviceGroup, "Service Agents", servicePrin)
	dir.AddGroup("group-g", "Group G", agentA)

	reg := registry.New(registry.Options{
		Store:        envelope.NewMemoryStore(dir),
		Oracle:       dir,
		Systems:      config.Systems{"demo": {}},
		ServiceGroup: serviceGroup,
		Principal:    servicePrin,
		Logger:       zap.New(core),
	})

	srv, err := NewServer(reg, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := do(srv, http.MethodPost, "/systems/demo/projects", agentA, projectSpec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The registry log line carries the correlation the middleware
	// stored in the request context.
	entries := logs.FilterMessage("project created").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, agentA, fields["requester"])
	assert.NotEmpty(t, fields["request.id"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.VisibilityOwn)
	rec := do(srv, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
