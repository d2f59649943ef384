package upload

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/auth"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PlatformDrive names Google Drive uploads
const PlatformDrive = "drive"

// DriveOptions configures the Drive uploader
type DriveOptions struct {
	// CredentialsFile is a service-account key. When empty the OAuth client
	// secrets and TokenFile are used.
	CredentialsFile   string
	ClientSecretsFile string
	TokenFile         string
	FolderID          string
	Endpoint          string
	HTTPClient        *http.Client
}

// DriveFile describes an uploaded, publicly readable file
type DriveFile struct {
	ID          string `json:"id"`
	WebViewLink string `json:"webViewLink"`
	DownloadURL string `json:"downloadUrl"`
}

// Drive uploads files to Google Drive and shares them with anyone holding
// the link.
type Drive struct {
	opts   DriveOptions
	logger *zap.Logger
}

// NewDrive creates a Drive uploader
func NewDrive(opts DriveOptions, logger *zap.Logger) *Drive {
	return &Drive{opts: opts, logger: logger}
}

// Name implements Target
func (d *Drive) Name() string { return PlatformDrive }

func (d *Drive) service(ctx context.Context) (*drive.Service, error) {
	var opts []option.ClientOption
	switch {
	case d.opts.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(d.opts.HTTPClient))
	case d.opts.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(d.opts.CredentialsFile), option.WithScopes(drive.DriveFileScope))
	default:
		client, err := auth.GoogleClient(ctx, d.opts.ClientSecretsFile, d.opts.TokenFile, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("drive auth: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(client))
	}
	if d.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.opts.Endpoint))
	}
	return drive.NewService(ctx, opts...)
}

// Publish implements Target
func (d *Drive) Publish(ctx context.Context, item Item) (models.Upload, error) {
	up := models.Upload{Platform: d.Name(), Part: item.Part}

	f, err := d.Upload(ctx, item.Path, item.OnProgress)
	if err != nil {
		up.Error = err.Error()
		return up, err
	}
	up.ID = f.ID
	up.URL = f.WebViewLink
	return up, nil
}

// Host implements MediaHost with the direct download link
func (d *Drive) Host(ctx context.Context, path string) (string, error) {
	f, err := d.Upload(ctx, path, nil)
	if err != nil {
		return "", err
	}
	return f.DownloadURL, nil
}

// Upload creates the file, then grants reader access to anyone
func (d *Drive) Upload(ctx context.Context, path string, onProgress func(float64)) (*DriveFile, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return nil, err
	}

	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer in.Close()

	var size int64
	if info, err := in.Stat(); err == nil {
		size = info.Size()
	}

	meta := &drive.File{Name: filepath.Base(path)}
	if d.opts.FolderID != "" {
		meta.Parents = []string{d.opts.FolderID}
	}

	d.logger.Info("Uploading to Drive", zap.String("file", path))

	created, err := svc.Files.Create(meta).
		Media(in, googleapi.ContentType("video/mp4")).
		ProgressUpdater(func(current, total int64) {
			if total <= 0 {
				total = size
			}
			if onProgress != nil && total > 0 {
				onProgress(float64(current) / float64(total))
			}
		}).
		Fields("id, webViewLink, webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive upload failed: %w", err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := svc.Permissions.Create(created.Id, perm).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("failed to share drive file: %w", err)
	}

	out := &DriveFile{
		ID:          created.Id,
		WebViewLink: created.WebViewLink,
		DownloadURL: created.WebContentLink,
	}
	if out.DownloadURL == "" {
		out.DownloadURL = "https://drive.google.com/uc?export=download&id=" + created.Id
	}
	if out.WebViewLink == "" {
		out.WebViewLink = "https://drive.google.com/file/d/" + created.Id + "/view"
	}

	d.logger.Info("Drive upload completed", zap.String("id", out.ID))
	return out, nil
}
