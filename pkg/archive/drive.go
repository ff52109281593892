package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Drive uploads objects into a Google Drive folder using a service
// account.
type Drive struct {
	service  *drive.Service
	folderID string
}

// NewDrive creates a Drive store from a service-account JSON key file.
func NewDrive(ctx context.Context, credentialsFile, folderID string) (*Drive, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("archive: read drive credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("archive: parse drive credentials: %w", err)
	}
	return NewDriveWithOptions(ctx, folderID, option.WithHTTPClient(oauth2.NewClient(ctx, creds.TokenSource)))
}

// NewDriveWithOptions creates a Drive store with explicit client options.
func NewDriveWithOptions(ctx context.Context, folderID string, opts ...option.ClientOption) (*Drive, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: drive service: %w", err)
	}
	return &Drive{service: service, folderID: folderID}, nil
}

// Put implements Store.
func (d *Drive) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	file := &drive.File{Name: name, MimeType: contentType(name)}
	if d.folderID != "" {
		file.Parents = []string{d.folderID}
	}
	_, err := d.service.Files.Create(file).Media(r).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("archive: drive upload %s: %w", name, err)
	}
	return nil
}

// Name implements Store.
func (d *Drive) Name() string { return "drive" }

var _ Store = (*Drive)(nil)
