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

func TestCreateGetDeletePolicy(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"name":   "deny-external",
		"groups": []string{"corn"},
		"egress": []models.Rule{{ID: "r1", AllowedGroups: []string{"corn"}}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/network-policies/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "corn")
	req.Header.Set("X-Forwarded-Group-Admin", "corn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	getReq := httptest.NewRequest(http.MethodGet, "/api/network-policies/deny-external", nil)
	getReq.Header.Set("X-Forwarded-Groups", "corn")
	getRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var np models.NetworkPolicy
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &np))
	assert.Equal(t, "deny-external", np.Name)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/network-policies/deny-external", nil)
	delReq.Header.Set("X-Forwarded-Groups", "corn")
	delRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)
}

func TestCreatePolicyRejectsNonGroupAdmin(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"name": "p1", "groups": []string{"corn"}})
	req := httptest.NewRequest(http.MethodPost, "/api/network-policies/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "corn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
