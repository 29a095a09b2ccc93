package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
)

// createRepoRequest is the body of POST /api/repos/.
type createRepoRequest struct {
	URL             string   `json:"url" binding:"required"`
	Groups          []string `json:"groups"`
	DefaultCheckout string   `json:"default_checkout"`
}

// createRepo handles POST /api/repos/: normalizes the URL and upserts the
// repository row, returning the normalized form the caller must use in
// subsequent calls (spec §6).
func (s *Server) createRepo(c *gin.Context) {
	id := callerIdentity(c)
	var req createRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	url, err := models.NormalizeRepoURL(req.URL)
	if err != nil {
		writeError(c, err)
		return
	}

	groups := req.Groups
	if len(groups) == 0 {
		groups = id.Groups
	}

	r := &models.Repository{
		URL:             url,
		Groups:          groups,
		DefaultCheckout: req.DefaultCheckout,
	}
	if err := s.meta.UpsertRepository(c.Request.Context(), r); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// uploadRepoData handles POST /api/repos/data/*url: a streamed tarball
// upload, encrypted and sha256-hashed through UploadSha256AndEncrypt like
// other stored objects, whose key is then appended to the repository's
// tarball keys.
func (s *Server) uploadRepoData(c *gin.Context) {
	url := c.Param("url")

	file, _, err := c.Request.FormFile("tarball")
	if err != nil {
		writeError(c, apierrors.NewInvalid("missing multipart field \"tarball\": %v", err))
		return
	}
	defer file.Close()

	key := uuid.New().String()
	sha256, err := s.objects.UploadSha256AndEncrypt(c.Request.Context(), objectstore.BucketRepos, key, file)
	if err != nil {
		writeError(c, err)
		return
	}

	repo, err := s.meta.GetRepository(c.Request.Context(), url)
	if err != nil {
		writeError(c, err)
		return
	}
	repo.TarballKeys = append(repo.TarballKeys, key)
	if err := s.meta.UpsertRepository(c.Request.Context(), repo); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sha256": sha256, "tarball_key": key})
}

// addCommitishesRequest is the body of POST
// /api/repos/commitishes/:zip/*url: zip is the tarball key that backs
// every commitish in the batch, streamed in chunks of commitishChunkSize
// per spec §6.
type addCommitishesRequest struct {
	Commitishes []commitishEntry `json:"commitishes" binding:"required"`
}

type commitishEntry struct {
	Kind      models.CommitishKind `json:"kind" binding:"required"`
	Key       string               `json:"key" binding:"required"`
	Timestamp time.Time            `json:"timestamp"`
}

// commitishChunkSize is the chunk size addCommitishes walks the batch in;
// each commitish inside a chunk is still written with its own AddCommitish
// call, so a chunk is not a single database round trip.
const commitishChunkSize = 500

func (s *Server) addCommitishes(c *gin.Context) {
	url := c.Param("url")
	zip := c.Param("zip")

	var req addCommitishesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	for start := 0; start < len(req.Commitishes); start += commitishChunkSize {
		end := start + commitishChunkSize
		if end > len(req.Commitishes) {
			end = len(req.Commitishes)
		}
		for _, entry := range req.Commitishes[start:end] {
			ts := entry.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			ci := models.Commitish{
				Kind:        entry.Kind,
				Key:         entry.Key,
				Timestamp:   ts,
				TarballKeys: []string{zip},
			}
			if err := s.meta.AddCommitish(c.Request.Context(), url, ci); err != nil {
				writeError(c, err)
				return
			}
		}
	}
	c.Status(http.StatusNoContent)
}
