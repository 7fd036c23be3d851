// Package submission holds the clip submission data model, the temp-file
// handle that carries uploaded bytes through one request, and the validator
// that turns raw form fields into a Submission.
package submission

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the kind of clip being submitted.
type Category string

const (
	CategoryBug   Category = "bug"
	CategoryFunny Category = "funny"
	CategoryError Category = "error"
	CategoryFail  Category = "fail"
	CategoryOther Category = "other"
)

var categoryLabels = map[Category]string{
	CategoryBug:   "Bug",
	CategoryFunny: "Funny Clip",
	CategoryError: "Error",
	CategoryFail:  "Fail",
	CategoryOther: "Other",
}

// ParseCategory returns the Category for s, or false if s is not a known value.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categoryLabels[c]
	return c, ok
}

// Label is the human readable name used in notifications.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// FileMetadata describes the clip attached to a submission.
type FileMetadata struct {
	OriginalName string
	SizeBytes    int64
	MimeType     string // as declared by the client
	DetectedType string // sniffed from content, empty when unknown
	Declared     bool   // only declared metadata, bytes never reached this server
	Handle       *Handle
}

// EffectiveType returns the MIME type used for allow-list checks and storage.
func (f FileMetadata) EffectiveType() string {
	if f.DetectedType != "" {
		return normaliseMime(f.DetectedType)
	}
	return normaliseMime(f.MimeType)
}

// Path returns the spooled file path, or "" when there is none.
func (f FileMetadata) Path() string {
	if f.Handle == nil {
		return ""
	}
	return f.Handle.Path()
}

// Submission is one validated clip submission. It is never mutated after
// the validator builds it.
type Submission struct {
	ID             string
	SubmitterName  string
	SubmitterEmail string
	Category       Category
	Description    string
	BugDetails     string
	File           FileMetadata
	ReceivedAt     time.Time
}

// NewID returns a submission id of the form sub_<unix-millis>_<random>.
// Each call draws fresh randomness so ids never repeat across requests.
func NewID() string {
	return newIDAt(time.Now())
}

func newIDAt(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("sub_%d_%s", now.UnixMilli(), suffix)
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "sub" || parts[1] == "" || len(parts[2]) != 12 {
		return false
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
