package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaicnetworks/relay/src/common"
	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/net"
	"github.com/mosaicnetworks/relay/src/node"
	"github.com/mosaicnetworks/relay/src/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *node.Node) {
	servers := []*tree.Server{
		tree.NewServer("me", "me", ""),
		tree.NewServer("dest", "dest", "me"),
	}
	tr, err := tree.NewTree("me", servers)
	require.NoError(t, err)

	_, trans := net.NewInmemTransport("me")
	n := node.NewNode(node.TestConfig(t), tr, migration.NewInmemStore(), trans)
	require.NoError(t, n.Init())

	return NewService("", n, common.NewTestEntry(t, common.TestLogLevel)), n
}

func TestGetStats(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var stats map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, "me", stats["name"])
	assert.Equal(t, "2", stats["servers"])
}

func TestGetTree(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/tree", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var servers []*tree.Server
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&servers))
	require.Len(t, servers, 2)
}

func TestPostMigrate(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	conn := node.NewInmemConn()
	require.NoError(t, n.Connect("alice", conn))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/migrate?client=alice&destination=dest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/migrate?client=bob&destination=dest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/migrate?client=alice", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/migrate?client=alice&destination=dest", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var m migration.Migration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	assert.Equal(t, "alice", m.Client)
	assert.Equal(t, "dest", m.Destination)
	assert.Equal(t, migration.Requested, m.State)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/migrate?client=alice&destination=dest", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/migrations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var all []*migration.Migration
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Len(t, all, 1)
	assert.Equal(t, "alice", all[0].Client)

	lines := conn.Lines()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "MIGRATE START dest "))
}

func TestMetrics(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_local_clients")
}
