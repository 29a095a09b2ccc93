package api

import (
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// systemInit handles POST /api/system/init, an idempotent bootstrap that
// seeds default settings only on a fresh deployment (spec §6): a
// non-zero-value settings hash is left untouched.
func (s *Server) systemInit(c *gin.Context) {
	current, err := s.coord.GetSystemSettings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if reflect.DeepEqual(current, models.SystemSettings{}) {
		if err := s.coord.SetSystemSettings(c.Request.Context(), models.SystemSettings{}); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// systemInfo handles GET /api/system/, optionally clearing the named
// scaler's cache-invalidation flag in the same call.
func (s *Server) systemInfo(c *gin.Context) {
	settings, err := s.coord.GetSystemSettings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	info := models.SystemInfo{Settings: settings}
	if reset := c.Query("reset"); reset != "" {
		stale, err := s.coord.ConsumeCacheInvalidation(c.Request.Context(), models.ScalerKind(reset))
		if err != nil {
			writeError(c, err)
			return
		}
		info.ResetScaler = models.ScalerKind(reset)
		info.CacheWasStale = stale
	}
	c.JSON(http.StatusOK, info)
}

// updateSystemSettingsRequest is the body of PATCH /api/system/settings.
type updateSystemSettingsRequest struct {
	Settings models.SystemSettings `json:"settings"`
}

// updateSystemSettings handles PATCH /api/system/settings by storing the
// new settings. It does not read a scan query parameter and runs no
// consistency scan: existing images are not re-validated against the new
// settings, and none are banned by this handler.
func (s *Server) updateSystemSettings(c *gin.Context) {
	var req updateSystemSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	if err := s.coord.SetSystemSettings(c.Request.Context(), req.Settings); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// registerNode handles POST /api/system/nodes/.
func (s *Server) registerNode(c *gin.Context) {
	var n models.Node
	if err := c.ShouldBindJSON(&n); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	if err := s.meta.UpsertNode(c.Request.Context(), n); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// updateNodeRequest is the body of PATCH /api/system/nodes/:cluster/:node.
type updateNodeRequest struct {
	Health    *models.NodeHealth `json:"health"`
	Available *models.Resources `json:"available"`
	Heartbeat bool               `json:"heartbeat"`
}

// updateNode handles PATCH /api/system/nodes/:cluster/:node.
func (s *Server) updateNode(c *gin.Context) {
	cluster, node := c.Param("cluster"), c.Param("node")
	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	n, err := s.meta.GetNode(c.Request.Context(), cluster, node)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Health != nil {
		n.Health = *req.Health
	}
	if req.Available != nil {
		n.Available = *req.Available
	}
	if req.Heartbeat {
		n.LastHeartbeat = time.Now().UTC()
	}
	if err := s.meta.UpsertNode(c.Request.Context(), *n); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// registerWorkers handles POST /api/system/worker/:scaler: a batch of newly
// spawned workers for the named scaler.
func (s *Server) registerWorkers(c *gin.Context) {
	scaler := models.ScalerKind(c.Param("scaler"))
	var workers []models.Worker
	if err := c.ShouldBindJSON(&workers); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	for i := range workers {
		workers[i].Scaler = scaler
		if workers[i].Status == "" {
			workers[i].Status = models.WorkerSpawning
		}
		if workers[i].SpawnedAt.IsZero() {
			workers[i].SpawnedAt = time.Now().UTC()
		}
		if err := s.coord.RegisterWorker(c.Request.Context(), workers[i]); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// updateWorkerRequest is the body of PATCH /api/system/worker/:name.
type updateWorkerRequest struct {
	Status    models.WorkerStatus `json:"status" binding:"required"`
	Heartbeat *time.Time          `json:"heartbeat"`
}

// updateWorker handles PATCH /api/system/worker/:name.
func (s *Server) updateWorker(c *gin.Context) {
	var req updateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	at := time.Now().UTC()
	if req.Heartbeat != nil {
		at = *req.Heartbeat
	}
	if err := s.coord.HeartbeatWorker(c.Request.Context(), c.Param("name"), req.Status, at); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteWorkers handles DELETE /api/system/worker/:scaler: a batch delete
// by name, authorized only for a platform admin or a caller who owns every
// targeted worker (spec §6).
func (s *Server) deleteWorkers(c *gin.Context) {
	id := callerIdentity(c)
	var names []string
	if err := c.ShouldBindJSON(&names); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	workers := make([]models.Worker, 0, len(names))
	for _, name := range names {
		w, err := s.coord.GetWorker(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		if !id.Admin && w.User != id.User {
			writeError(c, apierrors.NewUnauthorized("caller does not own worker %s", name))
			return
		}
		workers = append(workers, *w)
	}

	for _, w := range workers {
		if err := s.coord.DeregisterWorker(c.Request.Context(), w); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}
