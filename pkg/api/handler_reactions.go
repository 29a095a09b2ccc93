package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

// createReactionRequest is the body of POST /api/reactions/.
type createReactionRequest struct {
	Group     string                             `json:"group" binding:"required"`
	Pipeline  string                             `json:"pipeline" binding:"required"`
	Samples   []string                           `json:"samples"`
	Repos     []models.RepoRef                   `json:"repos"`
	Args      map[string]models.ImageArgsOverlay `json:"args"`
	Tags      map[string]string                  `json:"tags"`
	Parent    *string                            `json:"parent"`
	SLA       *int64                             `json:"sla"`
	Ephemeral map[string]string                  `json:"ephemeral"`
}

// authorizerFor builds the reaction.Authorizer for req.Group out of the
// caller's resolved Identity — the API-layer resolution step
// reaction.Engine's Authorizer exists to receive (spec §4.6.1 steps 1-2).
func authorizerFor(id Identity, group string) reaction.Authorizer {
	return reaction.Authorizer{
		GroupAllowsReactions: id.InGroup(group) || id.Admin,
		GroupEditable:        id.IsGroupAdmin(group),
		SampleVisible:        nil,
		CanOverrideArgs: func(image string) bool {
			return id.IsGroupAdmin(group)
		},
	}
}

func (s *Server) createReaction(c *gin.Context) {
	id := callerIdentity(c)
	var req createReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	r, err := s.reactions.Create(c.Request.Context(), reaction.CreateRequest{
		Group:     req.Group,
		Pipeline:  req.Pipeline,
		Creator:   id.User,
		Samples:   req.Samples,
		Repos:     req.Repos,
		Args:      req.Args,
		Tags:      req.Tags,
		Parent:    req.Parent,
		SLA:       req.SLA,
		Ephemeral: req.Ephemeral,
		Auth:      authorizerFor(id, req.Group),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": r.ID})
}

// bulkCreateResponse reports a batch's outcome index-for-index with the
// request list: IDs[i] is set on success, and a failure at i instead
// populates Errors keyed by its string index (spec §6/§7's "parallel-indexed
// error map alongside the successes").
type bulkCreateResponse struct {
	IDs    []string          `json:"ids"`
	Errors map[string]string `json:"errors,omitempty"`
}

func bulkResultsToResponse(results []reaction.BulkResult) bulkCreateResponse {
	resp := bulkCreateResponse{IDs: make([]string, len(results))}
	for i, res := range results {
		if res.Error != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[strconv.Itoa(i)] = res.Error.Error()
			continue
		}
		resp.IDs[i] = res.Reaction.ID
	}
	return resp
}

func (s *Server) bulkCreateReactions(c *gin.Context) {
	id := callerIdentity(c)
	var reqs []createReactionRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	creqs := make([]reaction.CreateRequest, len(reqs))
	for i, req := range reqs {
		creqs[i] = reaction.CreateRequest{
			Group: req.Group, Pipeline: req.Pipeline, Creator: id.User,
			Samples: req.Samples, Repos: req.Repos, Args: req.Args,
			Tags: req.Tags, Parent: req.Parent, SLA: req.SLA,
			Auth: authorizerFor(id, req.Group),
		}
	}

	out, err := s.reactions.BulkCreate(c.Request.Context(), creqs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulkResultsToResponse(out))
}

// bulkCreateByUserRequest maps target username to its batch of requests,
// the admin-only per-user variant (spec §6, §4.6.2).
type bulkCreateByUserRequest map[string][]createReactionRequest

func (s *Server) bulkCreateReactionsByUser(c *gin.Context) {
	id := callerIdentity(c)
	var req bulkCreateByUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	var creqs []reaction.CreateRequest
	var owners []string
	for user, reqs := range req {
		for _, r := range reqs {
			creqs = append(creqs, reaction.CreateRequest{
				Group: r.Group, Pipeline: r.Pipeline, Creator: user,
				Samples: r.Samples, Repos: r.Repos, Args: r.Args,
				Tags: r.Tags, Parent: r.Parent, SLA: r.SLA,
				Auth: authorizerFor(id, r.Group),
			})
			owners = append(owners, user)
		}
	}

	out, err := s.reactions.BulkCreateByUser(c.Request.Context(), creqs, id.Admin)
	if err != nil {
		writeError(c, err)
		return
	}

	perUser := make(map[string][]reaction.BulkResult, len(req))
	for i, res := range out {
		perUser[owners[i]] = append(perUser[owners[i]], res)
	}
	resp := make(map[string]bulkCreateResponse, len(perUser))
	for user, results := range perUser {
		resp[user] = bulkResultsToResponse(results)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getReaction(c *gin.Context) {
	id := callerIdentity(c)
	group := c.Param("group")

	r, err := s.reactions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if r.Group != group {
		writeError(c, apierrors.NewNotFound("reaction %s not found in group %s", c.Param("id"), group))
		return
	}
	if !id.Admin && !id.InGroup(group) {
		writeError(c, apierrors.NewNotFound("reaction %s not found", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, r)
}

// updateReactionRequest is the body of PATCH /api/reactions/:group/:id.
type updateReactionRequest struct {
	Args       map[string]reaction.ArgsUpdate `json:"args"`
	AddTags    map[string]string              `json:"add_tags"`
	RemoveTags []string                       `json:"remove_tags"`
	Ephemeral  map[string]string              `json:"ephemeral"`
}

func (s *Server) updateReaction(c *gin.Context) {
	id := callerIdentity(c)
	group := c.Param("group")
	var req updateReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	r, err := s.reactions.Update(c.Request.Context(), c.Param("id"), id.User, id.IsGroupAdmin(group), reaction.UpdateRequest{
		Args: req.Args, AddTags: req.AddTags, RemoveTags: req.RemoveTags, Ephemeral: req.Ephemeral,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) deleteReaction(c *gin.Context) {
	id := callerIdentity(c)
	group := c.Param("group")

	if err := s.reactions.Delete(c.Request.Context(), c.Param("id"), id.User, id.IsGroupAdmin(group)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// appendReactionLog handles POST /api/reactions/logs/:group/:id/:stage: an
// append-only chunk of a stage's execution log (spec §6).
func (s *Server) appendReactionLog(c *gin.Context) {
	stage, err := strconv.Atoi(c.Param("stage"))
	if err != nil {
		writeError(c, apierrors.NewInvalid("stage must be an integer: %v", err))
		return
	}

	var req struct {
		Chunk string `json:"chunk" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	if err := s.meta.AppendReactionLog(c.Request.Context(), c.Param("id"), stage, req.Chunk); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listReactionLogs handles GET /api/reactions/logs/:group/:id[/:stage].
func (s *Server) listReactionLogs(c *gin.Context) {
	stage := -1
	if raw := c.Param("stage"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, apierrors.NewInvalid("stage must be an integer: %v", err))
			return
		}
		stage = parsed
	}

	limit := 500
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	chunks, next, err := s.meta.ListReactionLogs(c.Request.Context(), c.Param("id"), stage, c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": chunks, "cursor": next})
}
