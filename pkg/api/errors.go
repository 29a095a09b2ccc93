package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
)

// statusForKind maps an apierrors.Kind to its HTTP status, the gin
// equivalent of tarsy's mapServiceError (errors.go).
func statusForKind(kind apierrors.Kind) int {
	switch kind {
	case apierrors.KindInvalid:
		return http.StatusBadRequest
	case apierrors.KindUnauthorized:
		return http.StatusForbidden
	case apierrors.KindNotFound:
		return http.StatusNotFound
	case apierrors.KindConflict:
		return http.StatusConflict
	case apierrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to an HTTP status/JSON body via its apierrors.Kind.
// Internal errors are logged server-side but never echo their message to
// the caller, consistent with the teacher's "unexpected service error"
// handling in errors.go.
func writeError(c *gin.Context, err error) {
	kind := apierrors.KindOf(err)
	status := statusForKind(kind)

	if kind == apierrors.KindInternal {
		slog.Error("unhandled api error", "path", c.Request.URL.Path, "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
