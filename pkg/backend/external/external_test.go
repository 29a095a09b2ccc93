package external

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/models"
)

func TestResourcesAvailableDecodesNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resources/c1", r.URL.Path)
		json.NewEncoder(w).Encode(resourcesResponse{
			Nodes: map[string]models.Resources{"node-1": {CPUMillis: 1000}},
		})
	}))
	defer srv.Close()

	d := New(srv.URL, 0)
	out, err := d.ResourcesAvailable(t.Context(), "c1", models.SystemSettings{})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), out["node-1"].CPUMillis)
}

func TestSpawnReportsPerNameErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spawn/c1", r.URL.Path)
		var req spawnRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Spawns, 1)
		json.NewEncoder(w).Encode(map[string]string{req.Spawns[0].Name: "capacity exceeded"})
	}))
	defer srv.Close()

	d := New(srv.URL, 0)
	errs := d.Spawn(t.Context(), "c1", []backend.Spawn{{Name: "worker-1"}})
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs["worker-1"], "capacity exceeded")
}

func TestSpawnMarksEveryNameOnTransportFailure(t *testing.T) {
	d := New("http://127.0.0.1:0", 0)
	errs := d.Spawn(t.Context(), "c1", []backend.Spawn{{Name: "a"}, {Name: "b"}})
	assert.Len(t, errs, 2)
	assert.Error(t, errs["a"])
	assert.Error(t, errs["b"])
}

func TestClearTerminalDecodesWorkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(terminalResponse{
			Workers: []backend.TerminalWorker{{Name: "w1", Outcome: backend.TerminalFailed}},
		})
	}))
	defer srv.Close()

	d := New(srv.URL, 0)
	out, err := d.ClearTerminal(t.Context(), "c1", map[string]bool{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, backend.TerminalFailed, out[0].Outcome)
}

func TestDoMapsNon2xxToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(srv.URL, 0)
	err := d.Setup(t.Context(), "c1")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindUnavailable, apierrors.KindOf(err))
}
