// validator.go - Field and file checks for incoming clip submissions.
package submission

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// allowedVideoTypes is the allow-list of video containers accepted for upload.
var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
	"video/mpeg":       true,
	"video/ogg":        true,
	"video/3gpp":       true,
	"video/3gpp2":      true,
	"video/x-flv":      true,
	"video/x-ms-wmv":   true,
	"video/x-m4v":      true,
}

// videoAliases maps alternative names for allow-listed containers, as
// reported by content sniffing or older clients, to the allow-listed name.
var videoAliases = map[string]string{
	"video/x-ms-asf":  "video/x-ms-wmv",
	"video/asf":       "video/x-ms-wmv",
	"application/ogg": "video/ogg",
	"video/mp4v-es":   "video/mp4",
	"video/avi":       "video/x-msvideo",
	"video/msvideo":   "video/x-msvideo",
	"video/matroska":  "video/x-matroska",
}

// emailPattern accepts local@domain.tld with no whitespace and no extra '@'.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxNameLen        = 100
	maxEmailLen       = 254
	maxDescriptionLen = 5000
	maxBugDetailsLen  = 2000
)

// RawInput is the untrusted form content for one submission.
type RawInput struct {
	Name        string
	Email       string
	Category    string
	BugDetails  string
	Description string
	File        *FileMetadata // nil when no file part (or declared metadata) was sent
	Oversize    bool          // the spooler stopped reading because the ceiling was exceeded
}

// Validator checks RawInput against the configured ceiling.
type Validator struct {
	MaxBytes int64
	Now      func() time.Time
}

// NewValidator returns a Validator enforcing maxBytes per file.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{MaxBytes: maxBytes, Now: time.Now}
}

// Validate returns a Submission with the given id, or a *Error of kind
// KindValidation listing every violated constraint. An oversized file
// short-circuits: the rest of the stream was never read.
func (v *Validator) Validate(id string, in RawInput) (*Submission, error) {
	if in.Oversize {
		size := int64(0)
		if in.File != nil {
			size = in.File.SizeBytes
		}
		return nil, NewValidationError([]FieldError{v.tooLarge(size, true)})
	}

	var errs []FieldError
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	errs = append(errs, v.checkFile(in.File)...)

	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	desc := strings.TrimSpace(in.Description)
	bug := strings.TrimSpace(in.BugDetails)

	switch {
	case name == "":
		add("name", "Name is required")
	case utf8.RuneCountInString(name) > maxNameLen:
		add("name", fmt.Sprintf("Name must be at most %d characters", maxNameLen))
	}

	switch {
	case email == "":
		add("email", "Email is required")
	case len(email) > maxEmailLen || !emailPattern.MatchString(email):
		add("email", "Please enter a valid email address")
	}

	category, ok := ParseCategory(in.Category)
	if !ok {
		if strings.TrimSpace(in.Category) == "" {
			add("clipType", "Clip type is required")
		} else {
			add("clipType", fmt.Sprintf("Unknown clip type %q", in.Category))
		}
	}

	switch {
	case desc == "":
		add("description", "Description is required")
	case utf8.RuneCountInString(desc) > maxDescriptionLen:
		add("description", fmt.Sprintf("Description must be at most %d characters", maxDescriptionLen))
	}

	// Bug details are optional even for bug clips.
	if utf8.RuneCountInString(bug) > maxBugDetailsLen {
		add("bugSpecific", fmt.Sprintf("Bug details must be at most %d characters", maxBugDetailsLen))
	}

	if len(errs) > 0 {
		return nil, NewValidationError(errs)
	}

	file := *in.File
	file.OriginalName = SanitizeFilename(file.OriginalName)

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	return &Submission{
		ID:             id,
		SubmitterName:  name,
		SubmitterEmail: email,
		Category:       category,
		Description:    desc,
		BugDetails:     bug,
		File:           file,
		ReceivedAt:     now().UTC(),
	}, nil
}

func (v *Validator) checkFile(f *FileMetadata) []FieldError {
	if f == nil {
		return []FieldError{{Field: "clipFile", Message: "No clip file provided"}}
	}

	var errs []FieldError
	if strings.TrimSpace(f.OriginalName) == "" {
		errs = append(errs, FieldError{Field: "clipFile", Message: "Clip file name is missing"})
	}
	if f.SizeBytes <= 0 {
		errs = append(errs, FieldError{Field: "clipFile", Message: "Clip file is empty"})
	} else if v.MaxBytes > 0 && f.SizeBytes > v.MaxBytes {
		errs = append(errs, v.tooLarge(f.SizeBytes, false))
	}

	mt := f.EffectiveType()
	if !AllowedVideoType(mt) {
		if mt == "" {
			mt = "unknown"
		}
		errs = append(errs, FieldError{
			Field:   "clipFile",
			Message: fmt.Sprintf("File type not allowed: %s (upload a video file)", mt),
		})
	}
	return errs
}

func (v *Validator) tooLarge(size int64, atLeast bool) FieldError {
	limit := humanize.IBytes(uint64(v.MaxBytes))
	if size <= 0 || atLeast {
		return FieldError{
			Field:   "clipFile",
			Message: fmt.Sprintf("File too large: maximum size is %s", limit),
		}
	}
	return FieldError{
		Field:   "clipFile",
		Message: fmt.Sprintf("File too large: %s exceeds the %s limit", humanize.IBytes(uint64(size)), limit),
	}
}

// AllowedVideoType reports whether mt is an accepted container type.
func AllowedVideoType(mt string) bool {
	return allowedVideoTypes[normaliseMime(mt)]
}

// normaliseMime strips parameters, lower-cases a MIME type and resolves
// known aliases.
func normaliseMime(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	if canon, ok := videoAliases[mt]; ok {
		return canon
	}
	return mt
}

// SanitizeFilename removes path separators and control bytes from a client
// supplied file name and caps its length.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, filename)

	filename = strings.Trim(filename, " .")

	if len(filename) > 200 {
		ext := filepath.Ext(filename)
		if len(ext) > 20 {
			ext = ""
		}
		filename = strings.ToValidUTF8(filename[:200-len(ext)], "") + ext
	}

	if filename == "" {
		filename = "clip"
	}
	return filename
}
