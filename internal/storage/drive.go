package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"clip-drop/internal/logging"
	"clip-drop/internal/submission"
)

// DriveConfig configures the Google Drive backend.
type DriveConfig struct {
	FolderID string
}

// Drive uploads clips into a shared Drive folder and makes them readable by
// link.
type Drive struct {
	svc *drive.Service
	cfg DriveConfig
}

// NewDrive opens the Drive API with opts (credentials file, endpoint, ...).
func NewDrive(ctx context.Context, cfg DriveConfig, opts ...option.ClientOption) (*Drive, error) {
	if cfg.FolderID == "" {
		return nil, fmt.Errorf("drive folder id not configured")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Drive{svc: svc, cfg: cfg}, nil
}

func (d *Drive) Name() string { return BackendDrive }

// Upload creates the file in the folder, then grants anyone-with-link read
// access. If the permission cannot be granted the file is deleted, since an
// unreachable upload is useless to the operator.
func (d *Drive) Upload(ctx context.Context, sub *submission.Submission, storedName string) (Reference, error) {
	f, err := os.Open(sub.File.Path())
	if err != nil {
		return Reference{}, fmt.Errorf("open spooled clip: %w", err)
	}
	defer f.Close()

	contentType := sub.File.EffectiveType()
	meta := &drive.File{
		Name:          storedName,
		Parents:       []string{d.cfg.FolderID},
		Description:   fmt.Sprintf("%s clip from %s", sub.Category.Label(), sub.SubmitterName),
		MimeType:      contentType,
		AppProperties: appProperties(sub),
	}

	created, err := d.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(contentType)).
		SupportsAllDrives(true).
		Fields("id", "webViewLink", "webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return Reference{}, fmt.Errorf("drive create %s: %w", storedName, err)
	}

	_, err = d.svc.Permissions.Create(created.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if derr := d.svc.Files.Delete(created.Id).SupportsAllDrives(true).Context(context.WithoutCancel(ctx)).Do(); derr != nil {
			logging.Warn("drive_orphan_delete_failed", logging.Fields{"file_id": created.Id, "error": derr.Error()})
		}
		return Reference{}, fmt.Errorf("drive share %s: %w", storedName, err)
	}

	return Reference{
		Backend:     BackendDrive,
		StoredName:  storedName,
		DownloadURL: created.WebContentLink,
		ViewURL:     created.WebViewLink,
	}, nil
}

// driveAppPropertyLimit is Drive's cap on the UTF-8 bytes of one
// appProperty key plus its value.
const driveAppPropertyLimit = 124

// appProperties is describe(sub) with each value cut to fit the Drive limit.
func appProperties(sub *submission.Submission) map[string]string {
	props := describe(sub)
	for k, v := range props {
		if room := driveAppPropertyLimit - len(k); len(v) > room {
			props[k] = strings.ToValidUTF8(v[:room], "")
		}
	}
	return props
}

// Ping reads the target folder.
func (d *Drive) Ping(ctx context.Context) error {
	_, err := d.svc.Files.Get(d.cfg.FolderID).SupportsAllDrives(true).Fields("id").Context(ctx).Do()
	return err
}
