package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/networkpolicy"
)

// createPolicyRequest is the body of POST /api/network-policies/.
type createPolicyRequest struct {
	Name           string         `json:"name" binding:"required"`
	Groups         []string       `json:"groups" binding:"required"`
	Ingress        []models.Rule  `json:"ingress"`
	Egress         []models.Rule  `json:"egress"`
	ForcedPolicy   bool           `json:"forced_policy"`
	DefaultPolicy  bool           `json:"default_policy"`
	DenyAllIngress bool           `json:"deny_all_ingress"`
	DenyAllEgress  bool           `json:"deny_all_egress"`
}

func (s *Server) createPolicy(c *gin.Context) {
	id := callerIdentity(c)
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	for _, g := range req.Groups {
		if !id.Admin && !id.IsGroupAdmin(g) {
			writeError(c, apierrors.NewUnauthorized("caller is not an admin of group %s", g))
			return
		}
	}

	np, err := s.policies.Create(c.Request.Context(), networkpolicy.CreateRequest{
		Name:           req.Name,
		Groups:         req.Groups,
		Ingress:        req.Ingress,
		Egress:         req.Egress,
		ForcedPolicy:   req.ForcedPolicy,
		DefaultPolicy:  req.DefaultPolicy,
		DenyAllIngress: req.DenyAllIngress,
		DenyAllEgress:  req.DenyAllEgress,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, np)
}

// candidateGroupsFor returns the groups the caller may use to disambiguate a
// policy lookup. The engine's Get/Update/Delete scope storage reads to
// exactly this list, so even a platform admin is limited to their own
// forwarded groups here; an admin needing a policy outside those groups
// must disambiguate by id instead (the ?id= query param on GET).
func candidateGroupsFor(id Identity) []string {
	return id.Groups
}

func (s *Server) getPolicy(c *gin.Context) {
	id := callerIdentity(c)
	np, err := s.policies.Get(c.Request.Context(), candidateGroupsFor(id), c.Param("name"), c.Query("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, np)
}

// updatePolicyRequest is the body of PATCH /api/network-policies/:name.
type updatePolicyRequest struct {
	ID             string                    `json:"id"`
	AddGroups      []string                  `json:"add_groups"`
	RemoveGroups   []string                  `json:"remove_groups"`
	Ingress        networkpolicy.RuleOps     `json:"ingress"`
	Egress         networkpolicy.RuleOps     `json:"egress"`
	Rename         *string                   `json:"rename"`
	DenyAllIngress *bool                     `json:"deny_all_ingress"`
	DenyAllEgress  *bool                     `json:"deny_all_egress"`
}

func (s *Server) updatePolicy(c *gin.Context) {
	id := callerIdentity(c)
	var req updatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	np, err := s.policies.Update(c.Request.Context(), candidateGroupsFor(id), c.Param("name"), req.ID, networkpolicy.UpdateRequest{
		AddGroups:      req.AddGroups,
		RemoveGroups:   req.RemoveGroups,
		Ingress:        req.Ingress,
		Egress:         req.Egress,
		Rename:         req.Rename,
		DenyAllIngress: req.DenyAllIngress,
		DenyAllEgress:  req.DenyAllEgress,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, np)
}

func (s *Server) deletePolicy(c *gin.Context) {
	id := callerIdentity(c)
	if err := s.policies.Delete(c.Request.Context(), candidateGroupsFor(id), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
