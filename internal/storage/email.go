package storage

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"clip-drop/internal/submission"
)

// EmailAttach delivers the clip as an attachment on the operator e-mail.
// Nothing leaves the server here; the notifier reads the spooled file before
// the pipeline releases it.
type EmailAttach struct {
	MaxBytes int64
}

func (e *EmailAttach) Name() string { return BackendEmail }

func (e *EmailAttach) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}
	if sub.File.Path() == "" {
		return Reference{}, fmt.Errorf("no spooled file to attach")
	}
	limit := e.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes(BackendEmail)
	}
	if sub.File.SizeBytes > limit {
		return Reference{}, fmt.Errorf("clip is %s, attachments are limited to %s",
			humanize.IBytes(uint64(sub.File.SizeBytes)), humanize.IBytes(uint64(limit)))
	}

	return Reference{
		Backend:    BackendEmail,
		StoredName: storedName,
		Attachment: &Attachment{
			Path:        sub.File.Path(),
			Name:        storedName,
			ContentType: sub.File.EffectiveType(),
			Size:        sub.File.SizeBytes,
		},
	}, nil
}
