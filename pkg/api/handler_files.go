package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
)

// uploadSample handles POST /api/files/: a streamed multipart upload whose
// content is hashed on the fly and stored encrypted, then recorded as a new
// submission against the sample (spec §6).
func (s *Server) uploadSample(c *gin.Context) {
	id := callerIdentity(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, apierrors.NewInvalid("missing multipart field \"file\": %v", err))
		return
	}
	defer file.Close()

	groups := c.PostFormArray("groups")
	if len(groups) == 0 {
		groups = id.Groups
	}
	name := c.PostForm("name")
	origin := c.PostForm("origin")

	submissionID := uuid.New().String()
	objectKey := submissionID

	hashes, err := s.objects.UploadHashAndEncrypt(c.Request.Context(), objectstore.BucketSamples, objectKey, file)
	if err != nil {
		writeError(c, err)
		return
	}

	sub := models.Submission{
		ID:          submissionID,
		Submitter:   id.User,
		Groups:      groups,
		Origin:      origin,
		Name:        name,
		SubmittedAt: time.Now().UTC(),
		ObjectKeys:  []string{objectKey},
	}
	if err := s.meta.UpsertSample(c.Request.Context(), hashes.SHA256, hashes.SHA1, hashes.MD5, header.Size, "", sub); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sha256":        hashes.SHA256,
		"sha1":          hashes.SHA1,
		"md5":           hashes.MD5,
		"submission_id": submissionID,
	})
}

// sampleExistsRequest is the body of POST /api/files/exists.
type sampleExistsRequest struct {
	SHA256 string   `json:"sha256" binding:"required"`
	Groups []string `json:"groups"`
	Name   string   `json:"name"`
	Origin string   `json:"origin"`
}

// sampleExists handles POST /api/files/exists, an idempotency probe a
// caller runs before uploading to avoid re-sending content already known.
func (s *Server) sampleExists(c *gin.Context) {
	var req sampleExistsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	sample, err := s.meta.GetSample(c.Request.Context(), req.SHA256)
	if apierrors.Is(err, apierrors.KindNotFound) {
		c.JSON(http.StatusOK, gin.H{"sample_exists": false, "submission_exists": false})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	submissionExists := false
	var submissionID string
	for _, sub := range sample.Submissions {
		if sub.Name == req.Name && sub.Origin == req.Origin {
			submissionExists = true
			submissionID = sub.ID
			break
		}
	}

	resp := gin.H{"sample_exists": true, "submission_exists": submissionExists}
	if submissionExists {
		resp["submission_id"] = submissionID
	}
	c.JSON(http.StatusOK, resp)
}

// getSample handles GET /api/files/sample/:sha256, visible only to callers
// belonging to at least one of the sample's submitting groups.
func (s *Server) getSample(c *gin.Context) {
	id := callerIdentity(c)
	sha := c.Param("sha256")

	sample, err := s.meta.GetSample(c.Request.Context(), sha)
	if err != nil {
		writeError(c, err)
		return
	}
	if !id.Admin && !sample.VisibleTo(id.Groups) {
		writeError(c, apierrors.NewNotFound("sample %s not found", sha))
		return
	}
	c.JSON(http.StatusOK, sample)
}

// sampleUpdateRequest is the body of PATCH /api/files/sample/:sha256.
type sampleUpdateRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
	Name         string `json:"name"`
	Origin       string `json:"origin"`
}

// updateSample handles PATCH /api/files/sample/:sha256, editing one of the
// sample's existing submissions.
func (s *Server) updateSample(c *gin.Context) {
	sha := c.Param("sha256")
	var req sampleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}

	if err := s.meta.UpdateSubmission(c.Request.Context(), sha, req.SubmissionID, req.Name, req.Origin); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// downloadSample handles GET /api/files/sample/:sha256/download, streaming
// the decrypted content back to the caller.
func (s *Server) downloadSample(c *gin.Context) {
	id := callerIdentity(c)
	sha := c.Param("sha256")

	sample, err := s.meta.GetSample(c.Request.Context(), sha)
	if err != nil {
		writeError(c, err)
		return
	}
	if !id.Admin && !sample.VisibleTo(id.Groups) {
		writeError(c, apierrors.NewNotFound("sample %s not found", sha))
		return
	}
	if len(sample.Submissions) == 0 || len(sample.Submissions[0].ObjectKeys) == 0 {
		writeError(c, apierrors.NewInternal("sample %s has no backing object", sha))
		return
	}

	data, err := s.objects.DownloadDecrypted(c.Request.Context(), objectstore.BucketSamples, sample.Submissions[0].ObjectKeys[0])
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// downloadSampleZip handles GET /api/files/sample/:sha256/download/zip,
// the password-protected zip variant of downloadSample.
func (s *Server) downloadSampleZip(c *gin.Context) {
	id := callerIdentity(c)
	sha := c.Param("sha256")
	password := c.Query("password")
	if password == "" {
		password = "infected"
	}

	sample, err := s.meta.GetSample(c.Request.Context(), sha)
	if err != nil {
		writeError(c, err)
		return
	}
	if !id.Admin && !sample.VisibleTo(id.Groups) {
		writeError(c, apierrors.NewNotFound("sample %s not found", sha))
		return
	}
	if len(sample.Submissions) == 0 || len(sample.Submissions[0].ObjectKeys) == 0 {
		writeError(c, apierrors.NewInternal("sample %s has no backing object", sha))
		return
	}

	zipped, err := s.objects.DownloadAsZip(c.Request.Context(), objectstore.BucketSamples, sample.Submissions[0].ObjectKeys[0], sha, password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/zip", zipped)
}

// tagSetRequest is the shared body shape for add/delete tag sets.
type tagSetRequest struct {
	Tags []models.Tag `json:"tags" binding:"required"`
}

// addTags handles POST /api/files/tags/:sha256.
func (s *Server) addTags(c *gin.Context) {
	sha := c.Param("sha256")
	var req tagSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	for _, t := range req.Tags {
		if err := s.meta.AddTag(c.Request.Context(), sha, t); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// deleteTags handles DELETE /api/files/tags/:sha256.
func (s *Server) deleteTags(c *gin.Context) {
	sha := c.Param("sha256")
	var req tagSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apierrors.NewInvalid("%v", err))
		return
	}
	for _, t := range req.Tags {
		if err := s.meta.RemoveTag(c.Request.Context(), sha, t.Group, t.Key); err != nil {
			writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// submitResult handles POST /api/files/results/:sha256: a multipart body
// carrying the result metadata plus optional attachments, uploaded to the
// results bucket and recorded against the sample.
func (s *Server) submitResult(c *gin.Context) {
	sha := c.Param("sha256")
	id := callerIdentity(c)

	reactionID := c.PostForm("reaction_id")
	image := c.PostForm("image")
	if reactionID == "" || image == "" {
		writeError(c, apierrors.NewInvalid("reaction_id and image are required"))
		return
	}

	resultID := uuid.New().String()
	var attachments []string
	form, err := c.MultipartForm()
	if err == nil && form != nil {
		for i, fh := range form.File["attachments"] {
			f, err := fh.Open()
			if err != nil {
				writeError(c, apierrors.Wrap(apierrors.KindInvalid, err, "open attachment %d", i))
				return
			}
			key := resultID + "/" + strconv.Itoa(i)
			if err := s.objects.UploadEncryptOnly(c.Request.Context(), objectstore.BucketResults, key, f); err != nil {
				f.Close()
				writeError(c, err)
				return
			}
			f.Close()
			attachments = append(attachments, key)
		}
	}

	r := models.Result{
		ID:          resultID,
		SHA256:      sha,
		ReactionID:  reactionID,
		Image:       image,
		Groups:      id.Groups,
		Data:        map[string]any{"raw": c.PostForm("data")},
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.meta.InsertResult(c.Request.Context(), r); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result_id": resultID})
}

// getResultsBySample handles GET /api/files/results/:sha256.
func (s *Server) getResultsBySample(c *gin.Context) {
	sha := c.Param("sha256")
	out, err := s.meta.GetResultsBySample(c.Request.Context(), sha)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// listResults handles GET /api/files/results/, a paginated time-ordered
// listing.
func (s *Server) listResults(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	results, next, err := s.meta.StreamResults(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "cursor": next})
}
