package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func seedTestPipeline(t *testing.T, meta *metadata.Client, group, name string, stages [][]string) {
	t.Helper()
	ctx := context.Background()
	order := make([]models.Stage, len(stages))
	for i, images := range stages {
		order[i] = models.Stage{Images: images}
		for _, img := range images {
			require.NoError(t, meta.UpsertImage(ctx, &models.Image{Name: img, Group: group, Image: "repo/" + img, ScalerKind: models.ScalerCluster}))
		}
	}
	require.NoError(t, meta.UpsertPipeline(ctx, &models.Pipeline{Name: name, Group: group, Order: order, SLADefault: 3600}))
}

func TestCreateAndGetReaction(t *testing.T) {
	s, meta := newTestServer(t)
	seedTestPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	body, _ := json.Marshal(map[string]any{"group": "corn", "pipeline": "harvest"})
	req := httptest.NewRequest(http.MethodPost, "/api/reactions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "corn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	getReq := httptest.NewRequest(http.MethodGet, "/api/reactions/corn/"+created.ID, nil)
	getReq.Header.Set("X-Forwarded-Groups", "corn")
	getRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got models.Reaction
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateReactionRejectsGroupCallerDoesNotBelongTo(t *testing.T) {
	s, meta := newTestServer(t)
	seedTestPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	body, _ := json.Marshal(map[string]any{"group": "corn", "pipeline": "harvest"})
	req := httptest.NewRequest(http.MethodPost, "/api/reactions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "soy")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestBulkCreateReactionsReportsPerIndexErrors(t *testing.T) {
	s, meta := newTestServer(t)
	seedTestPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	body, _ := json.Marshal([]map[string]any{
		{"group": "corn", "pipeline": "harvest"},
		{"group": "corn", "pipeline": "harvest", "repos": []map[string]any{{"url": "https://example.com/missing.git"}}},
		{"group": "corn", "pipeline": "harvest"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reactions/bulk/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "corn")
	req.Header.Set("X-Forwarded-Group-Admin", "corn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		IDs    []string          `json:"ids"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.IDs, 3)
	assert.NotEmpty(t, out.IDs[0])
	assert.Empty(t, out.IDs[1])
	assert.NotEmpty(t, out.IDs[2])
	assert.Contains(t, out.Errors, "1")
	assert.NotContains(t, out.Errors, "0")
	assert.NotContains(t, out.Errors, "2")
}

func TestAppendAndListReactionLogs(t *testing.T) {
	s, meta := newTestServer(t)
	seedTestPipeline(t, meta, "corn", "harvest", [][]string{{"corn-harvest"}})

	body, _ := json.Marshal(map[string]any{"group": "corn", "pipeline": "harvest"})
	req := httptest.NewRequest(http.MethodPost, "/api/reactions/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Groups", "corn")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	logBody, _ := json.Marshal(map[string]string{"chunk": "stdout line one\n"})
	logReq := httptest.NewRequest(http.MethodPost, "/api/reactions/logs/corn/"+created.ID+"/0", bytes.NewReader(logBody))
	logReq.Header.Set("Content-Type", "application/json")
	logRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(logRec, logReq)
	require.Equal(t, http.StatusNoContent, logRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/reactions/logs/corn/"+created.ID, nil)
	listRec := httptest.NewRecorder()
	s.Engine().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var logs struct {
		Logs []models.LogChunk `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &logs))
	require.Len(t, logs.Logs, 1)
	assert.Equal(t, "stdout line one\n", logs.Logs[0].Chunk)
}
