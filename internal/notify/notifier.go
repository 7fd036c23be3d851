// Package notify formats and sends the operator and submitter e-mails for a
// clip submission.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"clip-drop/internal/logging"
	"clip-drop/internal/storage"
	"clip-drop/internal/submission"
)

// submitterTimeout bounds the background submitter message once the request
// that triggered it has finished.
const submitterTimeout = 2 * time.Minute

// Notifier sends submission notifications. The operator message is critical
// and synchronous; the submitter message is best effort and runs in the
// background.
type Notifier struct {
	mailer    Mailer
	operators []string

	wg sync.WaitGroup
}

// New creates a Notifier that reports to the given operator addresses.
func New(mailer Mailer, operators []string) *Notifier {
	return &Notifier{mailer: mailer, operators: operators}
}

// Submission notifies the operator about sub and, when the storage flow
// needs the submitter to act, sends them the instructions.
func (n *Notifier) Submission(ctx context.Context, sub *submission.Submission, ref storage.Reference) error {
	v := baseView(sub)
	v.Backend = ref.Backend
	v.StoredName = ref.StoredName
	v.Link = ref.DownloadURL
	if ref.ViewURL != ref.DownloadURL {
		v.ViewLink = ref.ViewURL
	}
	v.Instructions = ref.Instructions
	v.TransferURL = ref.TransferURL
	v.Attached = ref.Attachment != nil
	v.Pending = ref.RequiresSubmitterAction

	html, err := render(operatorTmpl, v)
	if err != nil {
		return fmt.Errorf("render operator message: %w", err)
	}
	msg := Message{
		To:      n.operators,
		Subject: "New Clip Submission: " + sub.Category.Label(),
		HTML:    html,
	}
	if ref.Attachment != nil {
		msg.Attachments = []storage.Attachment{*ref.Attachment}
	}

	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}

	if ref.RequiresSubmitterAction {
		n.sendSubmitter(ctx, sub, v)
	}
	return nil
}

func (n *Notifier) sendSubmitter(ctx context.Context, sub *submission.Submission, v view) {
	html, err := render(submitterTmpl, v)
	if err != nil {
		logging.Error("submitter_notification_render_failed", logging.Ctx(ctx, logging.Fields{"submission_id": sub.ID}), err)
		return
	}
	msg := Message{
		To:      []string{sub.SubmitterEmail},
		Subject: "Your clip submission: one more step",
		HTML:    html,
	}

	bg := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sctx, cancel := context.WithTimeout(bg, submitterTimeout)
		defer cancel()
		if err := n.mailer.Send(sctx, msg); err != nil {
			logging.Warn("submitter_notification_failed", logging.Ctx(bg, logging.Fields{
				"submission_id": sub.ID,
				"error":         err.Error(),
			}))
		}
	}()
}

// LinkSubmitted tells the operator that the submitter supplied link for a
// deferred submission. Exactly one message is sent.
func (n *Notifier) LinkSubmitted(ctx context.Context, sub *submission.Submission, link string) error {
	v := baseView(sub)
	v.Link = link

	html, err := render(linkTmpl, v)
	if err != nil {
		return fmt.Errorf("render link message: %w", err)
	}
	return n.mailer.Send(ctx, Message{
		To:      n.operators,
		Subject: "Clip Link Submitted: " + sub.Category.Label(),
		HTML:    html,
	})
}

// Wait blocks until background submitter messages have finished or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func baseView(sub *submission.Submission) view {
	v := view{
		SubmissionID: sub.ID,
		Category:     sub.Category.Label(),
		Name:         sub.SubmitterName,
		Email:        sub.SubmitterEmail,
		Description:  sub.Description,
		BugDetails:   sub.BugDetails,
		FileName:     sub.File.OriginalName,
	}
	if sub.File.SizeBytes > 0 {
		v.FileSize = humanize.IBytes(uint64(sub.File.SizeBytes))
	}
	return v
}
