package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity is the caller information the routing layer (an oauth2-proxy or
// equivalent edge, external to the core per spec §6) resolves before a
// request reaches the core engines. Engine-level Authorizer/candidateGroups
// parameters exist precisely so group and role membership never has to be
// re-derived inside pkg/reaction or pkg/networkpolicy; this package is
// where that resolution happens, grounded on the teacher's
// extractAuthor (auth.go) header convention.
type Identity struct {
	User   string
	Groups []string
	// Admin is the platform-wide administrator role, required for the
	// per-user bulk-create and worker-deletion-across-owners endpoints.
	Admin bool
	// GroupAdmin names the groups the caller holds admin rights over
	// (pipeline/reaction edit, network-policy CRUD beyond their own
	// reactions).
	GroupAdmin map[string]bool
}

// InGroup reports whether the caller belongs to g.
func (id Identity) InGroup(g string) bool {
	for _, have := range id.Groups {
		if have == g {
			return true
		}
	}
	return false
}

// IsGroupAdmin reports whether the caller has admin rights in group g.
func (id Identity) IsGroupAdmin(g string) bool {
	return id.Admin || id.GroupAdmin[g]
}

const identityContextKey = "thorium.identity"

// identityMiddleware resolves the caller's Identity from the edge's
// forwarded-auth headers and stores it on the request context, mirroring
// tarsy's extractAuthor (X-Forwarded-User / X-Forwarded-Email) extended
// with the group/role headers this platform's Authorizer needs. A caller
// with no headers at all is treated as an anonymous "api-client" in the
// "default" group, consistent with the teacher's no-headers fallback.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity{GroupAdmin: map[string]bool{}}

		if user := c.GetHeader("X-Forwarded-User"); user != "" {
			id.User = user
		} else if email := c.GetHeader("X-Forwarded-Email"); email != "" {
			id.User = email
		} else {
			id.User = "api-client"
		}

		if groups := c.GetHeader("X-Forwarded-Groups"); groups != "" {
			for _, g := range strings.Split(groups, ",") {
				g = strings.TrimSpace(g)
				if g != "" {
					id.Groups = append(id.Groups, g)
				}
			}
		} else {
			id.Groups = []string{"default"}
		}

		if c.GetHeader("X-Forwarded-Admin") == "true" {
			id.Admin = true
		}

		if admin := c.GetHeader("X-Forwarded-Group-Admin"); admin != "" {
			for _, g := range strings.Split(admin, ",") {
				g = strings.TrimSpace(g)
				if g != "" {
					id.GroupAdmin[g] = true
				}
			}
		}

		c.Set(identityContextKey, id)
		c.Next()
	}
}

// callerIdentity retrieves the Identity stashed by identityMiddleware.
func callerIdentity(c *gin.Context) Identity {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{GroupAdmin: map[string]bool{}}
	}
	return v.(Identity)
}
