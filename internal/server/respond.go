package server

import (
	"encoding/json"
	"net/http"

	"clip-drop/internal/logging"
	"clip-drop/internal/submission"
)

// errorResp is the body of every non-2xx response.
type errorResp struct {
	Success      bool                    `json:"success"`
	Error        string                  `json:"error"`
	Errors       []submission.FieldError `json:"errors,omitempty"`
	SubmissionID string                  `json:"submissionId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a message that is safe to show
// the submitter. Internal details only go to the log.
func writeError(w http.ResponseWriter, r *http.Request, submissionID string, err error) {
	e := submission.AsError(err)
	status := e.Kind.HTTPStatus()
	if status >= 500 {
		logging.Error("request_failed", logging.Ctx(r.Context(), logging.Fields{
			"submission_id": submissionID,
			"kind":          e.Kind.String(),
			"path":          r.URL.Path,
		}), err)
	}
	writeJSON(w, status, errorResp{
		Error:        e.Msg,
		Errors:       e.Fields,
		SubmissionID: submissionID,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResp{Error: "Not found"})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResp{Error: "Method not allowed"})
}
