package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/models"
)

func TestSystemInitThenInfo(t *testing.T) {
	s, _ := newTestServer(t)

	initReq := httptest.NewRequest(http.MethodPost, "/api/system/init", nil)
	initRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(initRec, initReq)
	require.Equal(t, http.StatusNoContent, initRec.Code)

	infoReq := httptest.NewRequest(http.MethodGet, "/api/system/", nil)
	infoRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(infoRec, infoReq)
	require.Equal(t, http.StatusOK, infoRec.Code)

	var info models.SystemInfo
	require.NoError(t, json.Unmarshal(infoRec.Body.Bytes(), &info))
	assert.False(t, info.CacheWasStale)
}

func TestRegisterAndUpdateNode(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(models.Node{
		Cluster: "us-east", Name: "node-1", Health: models.NodeRegistered,
		Total: models.Resources{CPUMillis: 4000, MemoryBytes: 8 << 30},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/system/nodes/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	updateBody, _ := json.Marshal(map[string]any{"health": "Healthy", "heartbeat": true})
	updateReq := httptest.NewRequest(http.MethodPatch, "/api/system/nodes/us-east/node-1", bytes.NewReader(updateBody))
	updateReq.Header.Set("Content-Type", "application/json")
	updateRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(updateRec, updateReq)
	assert.Equal(t, http.StatusCreated, updateRec.Code)
}

func TestRegisterAndDeleteWorkers(t *testing.T) {
	s, _ := newTestServer(t)

	workers := []models.Worker{{Name: "worker-1", Cluster: "us-east", Node: "node-1", User: "alice"}}
	body, _ := json.Marshal(workers)
	req := httptest.NewRequest(http.MethodPost, "/api/system/worker/cluster", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	names, _ := json.Marshal([]string{"worker-1"})
	delReq := httptest.NewRequest(http.MethodDelete, "/api/system/worker/cluster", bytes.NewReader(names))
	delReq.Header.Set("Content-Type", "application/json")
	delReq.Header.Set("X-Forwarded-User", "alice")
	delRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)
}

func TestDeleteWorkersRejectsNonOwner(t *testing.T) {
	s, _ := newTestServer(t)

	workers := []models.Worker{{Name: "worker-2", Cluster: "us-east", Node: "node-1", User: "alice"}}
	body, _ := json.Marshal(workers)
	req := httptest.NewRequest(http.MethodPost, "/api/system/worker/cluster", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	names, _ := json.Marshal([]string{"worker-2"})
	delReq := httptest.NewRequest(http.MethodDelete, "/api/system/worker/cluster", bytes.NewReader(names))
	delReq.Header.Set("Content-Type", "application/json")
	delReq.Header.Set("X-Forwarded-User", "mallory")
	delRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusForbidden, delRec.Code)
}
