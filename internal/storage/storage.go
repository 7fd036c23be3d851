// Package storage moves validated clips to an external backend and returns
// a Reference the notifier and HTTP response can hand out.
//
// Every backend implements Uploader. Which one runs is a configuration
// choice; the pipeline never branches on the concrete type except to detect
// the deferred manual-transfer flow.
package storage

import (
	"context"
	"fmt"
	"mime"

	"clip-drop/internal/submission"
)

// Backend names, as used in configuration and in References.
const (
	BackendMinio  = "minio"
	BackendGCS    = "gcs"
	BackendDrive  = "drive"
	BackendEmail  = "email"
	BackendManual = "manual"
)

const (
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
)

// DefaultMaxBytes returns the per-backend file ceiling used when no explicit
// limit is configured.
func DefaultMaxBytes(backend string) int64 {
	switch backend {
	case BackendEmail:
		return 25 * MiB
	case BackendDrive:
		return 1 * GiB
	default:
		return 2 * GiB
	}
}

// Attachment is a spooled file to be attached to the operator e-mail.
type Attachment struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Reference describes where a clip ended up.
type Reference struct {
	Backend                 string
	StoredName              string
	DownloadURL             string
	ViewURL                 string
	Instructions            string
	TransferURL             string
	RequiresSubmitterAction bool
	Attachment              *Attachment
}

// Link returns the best retrievable URL, or "" when there is none.
func (r Reference) Link() string {
	if r.DownloadURL != "" {
		return r.DownloadURL
	}
	return r.ViewURL
}

// Uploader is implemented by every storage backend.
type Uploader interface {
	Name() string
	// Upload transfers the submission's spooled file under storedName.
	Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error)
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoredName is the deterministic object name for a submission's file. The
// id prefix keeps names unique and allows reverse lookup by submission id.
func StoredName(submissionID, originalName string) string {
	return fmt.Sprintf("%s_%s", submissionID, submission.SanitizeFilename(originalName))
}

// describe builds the descriptive metadata backends attach to stored files.
func describe(sub *submission.Submission) map[string]string {
	return map[string]string{
		"submission-id": sub.ID,
		"category":      string(sub.Category),
		"original-name": sub.File.OriginalName,
	}
}

// contentDisposition is the attachment header for stored objects. Non-ASCII
// names are encoded per RFC 2231.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
