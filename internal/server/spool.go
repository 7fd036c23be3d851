package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"clip-drop/internal/logging"
	"clip-drop/internal/submission"
)

const (
	fileField      = "clipFile"
	maxFieldBytes  = 64 << 10
	maxFormFields  = 32
	formOverheadMB = 1 << 20
)

var errUploadTimedOut = badRequest("body", "Upload timed out, please try again")

// uploadForm is the parsed multipart body of POST /upload.
type uploadForm struct {
	input submission.RawInput
	token string
}

// spoolUpload streams the multipart body of r. Text fields are read into
// memory; the clip is copied to a temp file named after id and never held in
// memory. Reading stops as soon as the file exceeds maxBytes.
//
// The returned form's file handle, when present, must be released by the
// caller.
func spoolUpload(w http.ResponseWriter, r *http.Request, id, tempDir string, maxBytes int64, allowDeclared bool) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverheadMB)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest("body", "Expected a multipart/form-data body")
	}

	form := &uploadForm{}
	fields := map[string]string{}
	nfields := 0

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				form.input.Oversize = true
				break
			}
			if isTimeout(err) {
				return form, errUploadTimedOut
			}
			return form, badRequest("body", "Malformed multipart body")
		}

		if part.FormName() == fileField && part.FileName() != "" {
			if form.input.File != nil {
				// Only the first clip counts.
				_ = part.Close()
				continue
			}
			meta, oversize, err := spoolFile(part, id, tempDir, maxBytes)
			_ = part.Close()
			if meta != nil {
				form.input.File = meta
			}
			if err != nil {
				return form, err
			}
			if oversize {
				form.input.Oversize = true
				break
			}
			continue
		}

		nfields++
		if nfields > maxFormFields {
			_ = part.Close()
			return form, badRequest("body", "Too many form fields")
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		_ = part.Close()
		if err != nil {
			if isTooLarge(err) {
				form.input.Oversize = true
				break
			}
			if isTimeout(err) {
				return form, errUploadTimedOut
			}
			return form, badRequest("body", "Malformed multipart body")
		}
		if len(value) > maxFieldBytes {
			return form, badRequest(part.FormName(), fmt.Sprintf("Field %s is too long", part.FormName()))
		}
		fields[part.FormName()] = string(value)
	}

	form.input.Name = fields["name"]
	form.input.Email = fields["email"]
	form.input.Category = fields["clipType"]
	form.input.BugDetails = fields["bugSpecific"]
	form.input.Description = fields["description"]
	form.token = fields["recaptchaToken"]
	if form.token == "" {
		form.token = fields["g-recaptcha-response"]
	}

	if form.input.File == nil && !form.input.Oversize && allowDeclared {
		form.input.File = declaredFile(fields)
		if form.input.File != nil && form.input.File.SizeBytes > maxBytes {
			form.input.Oversize = true
		}
	}
	return form, nil
}

// spoolFile copies one file part to disk and sniffs its content type.
func spoolFile(part *multipart.Part, id, tempDir string, maxBytes int64) (*submission.FileMetadata, bool, error) {
	f, h, err := submission.CreateTemp(tempDir, id)
	if err != nil {
		return nil, false, submission.Internal("Could not store the upload", err)
	}

	meta := &submission.FileMetadata{
		OriginalName: part.FileName(),
		MimeType:     part.Header.Get("Content-Type"),
		Handle:       h,
	}

	n, copyErr := io.Copy(f, io.LimitReader(part, maxBytes+1))
	meta.SizeBytes = n
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = err
	}

	if copyErr != nil {
		if isTooLarge(copyErr) {
			return meta, true, nil
		}
		if isTimeout(copyErr) {
			return meta, false, errUploadTimedOut
		}
		return meta, false, badRequest(fileField, "Upload was interrupted, please try again")
	}
	if n > maxBytes {
		return meta, true, nil
	}

	if n > 0 {
		mt, err := mimetype.DetectFile(h.Path())
		if err != nil {
			logging.Warn("mimetype_detect_failed", logging.Fields{"submission_id": id, "error": err.Error()})
		} else if mt.String() != "application/octet-stream" {
			base, _, _ := mime.ParseMediaType(mt.String())
			meta.DetectedType = base
		}
	}
	return meta, false, nil
}

// declaredFile builds metadata for the deferred flow, where the clip itself
// is transferred elsewhere.
func declaredFile(fields map[string]string) *submission.FileMetadata {
	name := strings.TrimSpace(fields["fileName"])
	if name == "" {
		return nil
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(fields["fileSize"]), 10, 64)
	return &submission.FileMetadata{
		OriginalName: name,
		SizeBytes:    size,
		MimeType:     fields["fileType"],
		Declared:     true,
	}
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// isTimeout reports whether a body read hit the request's read deadline.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func badRequest(field, msg string) error {
	return submission.NewValidationError([]submission.FieldError{{Field: field, Message: msg}})
}
