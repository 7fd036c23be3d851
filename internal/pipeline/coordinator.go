// Package pipeline runs one clip submission through validation, the abuse
// check, storage and notification, in that order and at most once.
package pipeline

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"clip-drop/internal/abuse"
	"clip-drop/internal/logging"
	"clip-drop/internal/metrics"
	"clip-drop/internal/storage"
	"clip-drop/internal/submission"
)

// Notifier is the subset of notify.Notifier the coordinator needs.
type Notifier interface {
	Submission(ctx context.Context, sub *submission.Submission, ref storage.Reference) error
	LinkSubmitted(ctx context.Context, sub *submission.Submission, link string) error
}

// LinkRegistry tracks deferred submissions waiting for a transfer link.
// *storage.Manual implements it.
type LinkRegistry interface {
	Claim(id string) (*submission.Submission, error)
	Complete(id string)
	Abandon(id string)
	Forget(id string)
	ValidateLink(raw string) (string, error)
}

// Deps are the collaborators of a Coordinator. Links is nil unless the
// deferred manual-transfer backend is configured.
type Deps struct {
	Validator *submission.Validator
	Verifier  abuse.Verifier
	Uploader  storage.Uploader
	Notifier  Notifier
	Links     LinkRegistry
	Metrics   *metrics.Metrics
}

// Coordinator orchestrates submissions. It holds no per-request state and
// is safe for concurrent use.
type Coordinator struct {
	deps Deps
}

// New returns a Coordinator. Validator, Verifier, Uploader and Notifier are
// required.
func New(deps Deps) (*Coordinator, error) {
	switch {
	case deps.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case deps.Verifier == nil:
		return nil, errors.New("pipeline: verifier is required")
	case deps.Uploader == nil:
		return nil, errors.New("pipeline: uploader is required")
	case deps.Notifier == nil:
		return nil, errors.New("pipeline: notifier is required")
	}
	return &Coordinator{deps: deps}, nil
}

// AcceptsDeclaredFiles reports whether phase 1 may carry only file
// metadata instead of the bytes.
func (c *Coordinator) AcceptsDeclaredFiles() bool { return c.deps.Links != nil }

// Request is one incoming submission.
type Request struct {
	ID       string
	Input    submission.RawInput
	Token    string
	RemoteIP string
}

// Result is what a completed submission reports back to the caller.
type Result struct {
	SubmissionID string
	State        State
	Reference    storage.Reference
	Link         string
}

// flow tracks one submission's state and records every transition.
type flow struct {
	ctx     context.Context
	id      string
	kind    string
	state   State
	started time.Time
	metrics *metrics.Metrics
}

func (c *Coordinator) newFlow(ctx context.Context, id string) *flow {
	f := &flow{ctx: ctx, id: id, kind: metrics.FlowUpload, state: StateReceived, started: time.Now(), metrics: c.deps.Metrics}
	logging.Debug("submission_state", logging.Ctx(ctx, logging.Fields{"submission_id": id, "state": f.state.String()}))
	return f
}

func (f *flow) to(s State) {
	if !canTransition(f.state, s) {
		// Programming error; keep the current state rather than corrupt it.
		logging.Error("submission_illegal_transition", logging.Ctx(f.ctx, logging.Fields{
			"submission_id": f.id,
			"from":          f.state.String(),
			"to":            s.String(),
		}), nil)
		return
	}
	f.state = s
	logging.Debug("submission_state", logging.Ctx(f.ctx, logging.Fields{"submission_id": f.id, "state": s.String()}))
	if s.Terminal() {
		f.metrics.RecordOutcome(f.kind, s.String())
	}
}

// fail moves to a terminal error state and returns err as a *submission.Error.
func (f *flow) fail(s State, err *submission.Error) error {
	f.to(s)
	fields := logging.Ctx(f.ctx, logging.Fields{
		"submission_id": f.id,
		"state":         s.String(),
		"kind":          err.Kind.String(),
		"duration_ms":   time.Since(f.started).Milliseconds(),
	})
	if s == StateRejected {
		fields["reason"] = err.Msg
		logging.Info("submission_rejected", fields)
	} else {
		logging.Error("submission_failed", fields, err)
	}
	return err
}

// stage times fn under the given stage name.
func (f *flow) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	f.metrics.ObserveStage(name, time.Since(start))
	return err
}

// Submit runs the whole pipeline for one request. The spooled file, if any,
// is released on every exit path before Submit returns.
func (c *Coordinator) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Input.File != nil {
		defer func() {
			if err := req.Input.File.Handle.Release(); err != nil {
				logging.Warn("temp_file_release_failed", logging.Ctx(ctx, logging.Fields{"submission_id": req.ID, "error": err.Error()}))
			}
		}()
	}

	f := c.newFlow(ctx, req.ID)

	// Received -> Validated
	var sub *submission.Submission
	err := f.stage("validate", func() error {
		var err error
		sub, err = c.deps.Validator.Validate(req.ID, req.Input)
		if err == nil && sub.File.Declared && !c.AcceptsDeclaredFiles() {
			err = submission.NewValidationError([]submission.FieldError{{Field: "clipFile", Message: "No clip file provided"}})
		}
		return err
	})
	if err != nil {
		return Result{SubmissionID: req.ID, State: StateRejected}, f.fail(StateRejected, submission.AsError(err))
	}
	f.to(StateValidated)

	// Validated -> AbuseChecked
	err = f.stage("abuse_check", func() error {
		res, err := c.deps.Verifier.Verify(ctx, req.Token, req.RemoteIP)
		if err == nil && !res.Passed {
			err = abuse.ErrRejected
		}
		if err == nil {
			logging.Debug("abuse_check_passed", logging.Ctx(ctx, logging.Fields{"submission_id": req.ID, "score": res.Score}))
		}
		return err
	})
	if err != nil {
		return Result{SubmissionID: req.ID, State: StateRejected}, f.fail(StateRejected, submission.AbuseCheckFailed(err))
	}
	f.to(StateAbuseChecked)

	// AbuseChecked -> Uploaded
	var ref storage.Reference
	storedName := storage.StoredName(sub.ID, sub.File.OriginalName)
	err = f.stage("upload", func() error {
		var err error
		ref, err = c.deps.Uploader.Upload(ctx, sub, storedName)
		return err
	})
	if err != nil {
		return Result{SubmissionID: req.ID, State: StateFailed}, f.fail(StateFailed, submission.StorageUploadFailed(err))
	}
	if ref.Attachment == nil && !ref.RequiresSubmitterAction {
		f.metrics.RecordUploadBytes(sub.File.SizeBytes)
	}
	f.to(StateUploaded)

	// Uploaded -> Notified
	err = f.stage("notify", func() error {
		return c.deps.Notifier.Submission(ctx, sub, ref)
	})
	if err != nil {
		if ref.RequiresSubmitterAction && c.deps.Links != nil {
			// The operator never heard of it, so a later link must not be accepted.
			c.deps.Links.Forget(sub.ID)
		}
		return Result{SubmissionID: req.ID, State: StateFailed}, f.fail(StateFailed, submission.NotificationFailed(err))
	}
	f.to(StateNotified)

	// Notified -> Completed
	f.to(StateCompleted)
	logging.Info("submission_completed", logging.Ctx(ctx, logging.Fields{
		"submission_id": sub.ID,
		"category":      string(sub.Category),
		"backend":       ref.Backend,
		"stored_name":   ref.StoredName,
		"size_bytes":    sub.File.SizeBytes,
		"duration_ms":   time.Since(f.started).Milliseconds(),
	}))

	return Result{
		SubmissionID: sub.ID,
		State:        StateCompleted,
		Reference:    ref,
		Link:         ref.Link(),
	}, nil
}

// LinkRequest is phase 2 of a deferred manual transfer.
type LinkRequest struct {
	SubmissionID string
	Link         string
	Email        string // optional; must match phase 1 when given
}

// CompleteLink attaches the submitter's transfer link to a pending deferred
// submission and notifies the operator once.
func (c *Coordinator) CompleteLink(ctx context.Context, req LinkRequest) (Result, error) {
	id := strings.TrimSpace(req.SubmissionID)
	f := &flow{ctx: ctx, id: id, kind: metrics.FlowLink, state: StateUploaded, started: time.Now(), metrics: c.deps.Metrics}

	if c.deps.Links == nil {
		return Result{SubmissionID: id, State: StateRejected},
			f.fail(StateRejected, submission.UnknownSubmission(errors.New("manual transfer is not enabled")))
	}

	var fieldErrs []submission.FieldError
	if !submission.ValidID(id) {
		fieldErrs = append(fieldErrs, submission.FieldError{Field: "submissionId", Message: "A valid submission id is required"})
	}
	link, err := c.deps.Links.ValidateLink(req.Link)
	if err != nil {
		fieldErrs = append(fieldErrs, submission.FieldError{Field: "externalLink", Message: "Please provide a valid http(s) share link"})
	}
	if len(fieldErrs) > 0 {
		return Result{SubmissionID: id, State: StateRejected}, f.fail(StateRejected, submission.NewValidationError(fieldErrs))
	}

	sub, err := c.deps.Links.Claim(id)
	if err != nil {
		var e *submission.Error
		switch {
		case errors.Is(err, storage.ErrAlreadyCompleted):
			e = submission.Conflict("A link was already submitted for this submission", err)
		case errors.Is(err, storage.ErrInFlight):
			e = submission.Conflict("A link for this submission is already being processed", err)
		default:
			e = submission.UnknownSubmission(err)
		}
		return Result{SubmissionID: id, State: StateRejected}, f.fail(StateRejected, e)
	}

	if req.Email != "" && !strings.EqualFold(strings.TrimSpace(req.Email), sub.SubmitterEmail) {
		c.deps.Links.Abandon(id)
		return Result{SubmissionID: id, State: StateRejected}, f.fail(StateRejected, submission.NewValidationError([]submission.FieldError{
			{Field: "email", Message: "Email does not match the original submission"},
		}))
	}

	err = f.stage("notify_link", func() error {
		return c.deps.Notifier.LinkSubmitted(ctx, sub, link)
	})
	if err != nil {
		c.deps.Links.Abandon(id)
		return Result{SubmissionID: id, State: StateFailed}, f.fail(StateFailed, submission.NotificationFailed(err))
	}
	f.to(StateNotified)
	c.deps.Links.Complete(id)
	f.to(StateCompleted)

	logging.Info("submission_link_completed", logging.Ctx(ctx, logging.Fields{
		"submission_id": id,
		"link_host":     hostOf(link),
	}))

	return Result{
		SubmissionID: id,
		State:        StateCompleted,
		Reference:    storage.Reference{Backend: storage.BackendManual, DownloadURL: link},
		Link:         link,
	}, nil
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
