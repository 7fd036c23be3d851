package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"clip-drop/internal/logging"
	"clip-drop/internal/pipeline"
	"clip-drop/internal/submission"
)

// uploadResp is the JSON response returned after a successful submission.
type uploadResp struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submissionId"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	ViewURL      string `json:"viewUrl,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	TransferURL  string `json:"transferUrl,omitempty"`
}

// handleUpload handles POST /upload: multipart form with the clip and the
// submitter's details, run through the submission pipeline.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := submission.NewID()

	form, err := spoolUpload(w, r, id, s.cfg.TempDir, s.cfg.MaxUploadBytes, s.coord.AcceptsDeclaredFiles())
	if form != nil && form.input.File != nil {
		// The pipeline releases it too; Release is idempotent.
		defer func() { _ = form.input.File.Handle.Release() }()
	}
	if err != nil {
		logging.Info("upload_rejected", logging.Ctx(r.Context(), logging.Fields{"submission_id": id, "error": err.Error()}))
		writeError(w, r, id, err)
		return
	}

	res, err := s.coord.Submit(r.Context(), pipeline.Request{
		ID:       id,
		Input:    form.input,
		Token:    form.token,
		RemoteIP: clientIP(r),
	})
	if err != nil {
		writeError(w, r, id, err)
		return
	}

	resp := uploadResp{
		Success:      true,
		Message:      "Clip submitted successfully",
		SubmissionID: res.SubmissionID,
		DownloadURL:  res.Reference.DownloadURL,
		ViewURL:      res.Reference.ViewURL,
		Instructions: res.Reference.Instructions,
		TransferURL:  res.Reference.TransferURL,
	}
	if res.Reference.RequiresSubmitterAction {
		resp.Message = "Submission received, follow the instructions to send your clip"
	}
	writeJSON(w, http.StatusOK, resp)
}

// linkReq is the body of POST /submit-link. The submitter details are resent
// by the client but only Email is checked; the stored submission is what
// the operator sees.
type linkReq struct {
	SubmissionID string `json:"submissionId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ClipType     string `json:"clipType"`
	Description  string `json:"description"`
	FileName     string `json:"fileName"`
	ExternalLink string `json:"externalLink"`
	MegaLink     string `json:"megaLink"`
}

type linkResp struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submissionId"`
	DownloadURL  string `json:"downloadUrl"`
}

// handleSubmitLink handles POST /submit-link, phase 2 of a deferred transfer.
func (s *Server) handleSubmitLink(w http.ResponseWriter, r *http.Request) {
	var req linkReq
	dec := json.NewDecoder(io.LimitReader(r.Body, maxFieldBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, "", badRequest("body", "Expected a JSON body"))
		return
	}
	link := req.ExternalLink
	if link == "" {
		link = req.MegaLink
	}

	res, err := s.coord.CompleteLink(r.Context(), pipeline.LinkRequest{
		SubmissionID: req.SubmissionID,
		Link:         link,
		Email:        req.Email,
	})
	if err != nil {
		writeError(w, r, req.SubmissionID, err)
		return
	}

	writeJSON(w, http.StatusOK, linkResp{
		Success:      true,
		Message:      "Link received successfully",
		SubmissionID: res.SubmissionID,
		DownloadURL:  res.Link,
	})
}

// handleTest is the liveness check kept for existing clients.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "API IS WORKING!",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleOptions answers OPTIONS requests that are not CORS preflights.
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
