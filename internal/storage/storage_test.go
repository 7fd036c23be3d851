package storage

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clip-drop/internal/submission"
)

// spooledSubmission writes content to a temp file the way the server spools
// uploads and returns a submission pointing at it.
func spooledSubmission(t *testing.T, name string, content []byte) *submission.Submission {
	t.Helper()
	id := submission.NewID()
	f, h, err := submission.CreateTemp(t.TempDir(), id)
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	t.Cleanup(func() { _ = h.Release() })

	return &submission.Submission{
		ID:             id,
		SubmitterName:  "Ada",
		SubmitterEmail: "ada@example.com",
		Category:       submission.CategoryBug,
		Description:    "clipping through the floor",
		File: submission.FileMetadata{
			OriginalName: name,
			SizeBytes:    int64(len(content)),
			MimeType:     "video/mp4",
			DetectedType: "video/mp4",
			Handle:       h,
		},
		ReceivedAt: time.Now(),
	}
}

func TestStoredName(t *testing.T) {
	tests := []struct {
		id, orig, want string
	}{
		{"sub_1_abcdefabcdef", "clip.mp4", "sub_1_abcdefabcdef_clip.mp4"},
		{"sub_1_abcdefabcdef", "../../etc/passwd", "sub_1_abcdefabcdef_passwd"},
		{"sub_1_abcdefabcdef", `C:\Users\me\my clip.webm`, "sub_1_abcdefabcdef_my clip.webm"},
		{"sub_1_abcdefabcdef", "", "sub_1_abcdefabcdef_clip"},
	}
	for _, tt := range tests {
		if got := StoredName(tt.id, tt.orig); got != tt.want {
			t.Errorf("StoredName(%q, %q) = %q, want %q", tt.id, tt.orig, got, tt.want)
		}
	}
}

func TestStoredNameAllowsReverseLookup(t *testing.T) {
	id := submission.NewID()
	name := StoredName(id, "funny_clip_final.mp4")
	if !strings.HasPrefix(name, id+"_") {
		t.Fatalf("stored name %q does not start with the submission id", name)
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"clip.mp4", "attachment; filename=clip.mp4"},
		{"my clip.mp4", `attachment; filename="my clip.mp4"`},
		{"já vi.mp4", "attachment; filename*=utf-8''j%C3%A1%20vi.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentDisposition(tt.name)
			if got != tt.want {
				t.Fatalf("contentDisposition(%q) = %q, want %q", tt.name, got, tt.want)
			}
			_, params, err := mime.ParseMediaType(got)
			if err != nil {
				t.Fatalf("parse %q: %v", got, err)
			}
			if params["filename"] != tt.name {
				t.Fatalf("filename round trip = %q, want %q", params["filename"], tt.name)
			}
		})
	}
}

func TestDefaultMaxBytes(t *testing.T) {
	tests := map[string]int64{
		BackendEmail:  25 * MiB,
		BackendDrive:  1 * GiB,
		BackendMinio:  2 * GiB,
		BackendGCS:    2 * GiB,
		BackendManual: 2 * GiB,
	}
	for backend, want := range tests {
		if got := DefaultMaxBytes(backend); got != want {
			t.Errorf("DefaultMaxBytes(%s) = %d, want %d", backend, got, want)
		}
	}
}

func TestReferenceLink(t *testing.T) {
	if got := (Reference{DownloadURL: "d", ViewURL: "v"}).Link(); got != "d" {
		t.Fatalf("expected download url first, got %q", got)
	}
	if got := (Reference{ViewURL: "v"}).Link(); got != "v" {
		t.Fatalf("expected view url fallback, got %q", got)
	}
	if got := (Reference{}).Link(); got != "" {
		t.Fatalf("expected empty link, got %q", got)
	}
}

func TestEmailAttach(t *testing.T) {
	sub := spooledSubmission(t, "clip.mp4", []byte("0123456789"))
	u := &EmailAttach{}

	ref, err := u.Upload(t.Context(), sub, StoredName(sub.ID, "clip.mp4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref.Attachment == nil {
		t.Fatal("expected an attachment")
	}
	if ref.Attachment.Path != sub.File.Path() || ref.Attachment.Size != 10 {
		t.Fatalf("unexpected attachment: %+v", ref.Attachment)
	}
	if ref.RequiresSubmitterAction {
		t.Fatal("email delivery needs no submitter action")
	}
	if _, err := os.Stat(ref.Attachment.Path); err != nil {
		t.Fatalf("attachment must still exist after Upload: %v", err)
	}
}

func TestEmailAttachRejectsOversize(t *testing.T) {
	sub := spooledSubmission(t, "clip.mp4", []byte("0123456789"))
	u := &EmailAttach{MaxBytes: 5}
	if _, err := u.Upload(t.Context(), sub, "x"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestEmailAttachNeedsSpooledFile(t *testing.T) {
	sub := spooledSubmission(t, "clip.mp4", []byte("x"))
	sub.File.Handle = nil
	if _, err := (&EmailAttach{}).Upload(t.Context(), sub, "x"); err == nil {
		t.Fatal("expected error without a spooled file")
	}
}

func TestSpooledSubmissionLivesInTempDir(t *testing.T) {
	sub := spooledSubmission(t, "clip.mp4", []byte("x"))
	if filepath.Base(sub.File.Path()) != "clip-"+sub.ID+".part" {
		t.Fatalf("unexpected spool path %s", sub.File.Path())
	}
}
