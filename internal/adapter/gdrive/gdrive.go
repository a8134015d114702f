package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

const (
	// MimeTypeFolder is the MIME type for Google Drive folders
	MimeTypeFolder = "application/vnd.google-apps.folder"

	// Keys stored in each uploaded file's appProperties
	propUploadKey   = "hotfolder_upload_key"
	propWorkstation = "hotfolder_workstation"
)

// Options configures the Drive destination
type Options struct {
	ClientID     string
	ClientSecret string
	TokenPath    string

	// Folder is the Drive path files are created in, e.g. "/Hotfolder/scans"
	Folder string
}

// Destination uploads files into one Google Drive folder
type Destination struct {
	service  *drive.Service
	folder   string
	folderID string
	cache    *idCache // folder path -> ID
}

// idCache caches folder ID lookups with thread-safe access
type idCache struct {
	mu    sync.RWMutex
	paths map[string]string
}

func newIDCache() *idCache {
	return &idCache{
		paths: make(map[string]string),
	}
}

func (c *idCache) get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.paths[path]
	return id, ok
}

func (c *idCache) set(path, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = id
}

func (c *idCache) delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, path)
}

// New authenticates with the stored token and resolves (creating if
// needed) the target folder
func New(ctx context.Context, opts Options) (*Destination, error) {
	auth := NewAuthenticator(opts.ClientID, opts.ClientSecret, opts.TokenPath)

	token, err := auth.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	return NewWithClient(ctx, auth.Config().Client(ctx, token), opts.Folder)
}

// NewWithClient builds the destination on an already authorized client.
// Extra options (e.g. option.WithEndpoint) are passed to the Drive service.
func NewWithClient(ctx context.Context, client *http.Client, folder string, extra ...option.ClientOption) (*Destination, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	d := &Destination{
		service: service,
		folder:  normalizeRoot(folder),
		cache:   newIDCache(),
	}

	folderID, err := d.getOrCreateFolderID(ctx, d.folder)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder %q: %w", d.folder, err)
	}
	d.folderID = folderID

	return d, nil
}

// normalizeRoot normalizes the folder path
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return ""
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimSuffix(root, "/")
}

// Name returns the destination type
func (d *Destination) Name() string {
	return "gdrive"
}

// Upload creates a new Drive file in the target folder and returns its ID.
// Drive allows duplicate names, so a re-uploaded file is a new file.
func (d *Destination) Upload(ctx context.Context, payload domain.UploadPayload, body io.Reader) (string, error) {
	file := &drive.File{
		Name:        payload.Filename,
		Parents:     []string{d.folderID},
		MimeType:    payload.ContentType,
		Description: fmt.Sprintf("Uploaded by %s at %s", payload.Workstation, payload.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")),
		AppProperties: map[string]string{
			propUploadKey:   payload.UploadKey,
			propWorkstation: payload.Workstation,
		},
	}

	var media []googleapi.MediaOption
	if payload.ContentType != "" {
		media = append(media, googleapi.ContentType(payload.ContentType))
	}

	created, err := d.service.Files.Create(file).
		Media(body, media...).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", uploadError(err)
	}

	return created.Id, nil
}

// Close releases any resources
func (d *Destination) Close() error {
	return nil
}

// Folder returns the normalized target folder path
func (d *Destination) Folder() string {
	return d.folder
}

// escapeQueryString escapes special characters in Drive query strings
func escapeQueryString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

// getOrCreateFolderID returns the ID of a folder, creating it if necessary
func (d *Destination) getOrCreateFolderID(ctx context.Context, fullPath string) (string, error) {
	if fullPath == "" {
		return "root", nil
	}

	if id, ok := d.cache.get(fullPath); ok {
		return id, nil
	}

	parts := strings.Split(strings.TrimPrefix(fullPath, "/"), "/")
	currentID := "root"

	for i, part := range parts {
		if part == "" {
			continue
		}

		partialPath := "/" + strings.Join(parts[:i+1], "/")

		if id, ok := d.cache.get(partialPath); ok {
			currentID = id
			continue
		}

		query := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
			escapeQueryString(part), currentID, MimeTypeFolder)
		fileList, err := d.service.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(id)").
			Context(ctx).Do()
		if err != nil {
			return "", mapError(err)
		}

		if len(fileList.Files) > 0 {
			currentID = fileList.Files[0].Id
		} else {
			folder := &drive.File{
				Name:     part,
				MimeType: MimeTypeFolder,
				Parents:  []string{currentID},
			}
			created, err := d.service.Files.Create(folder).
				Fields("id").
				Context(ctx).Do()
			if err != nil {
				return "", mapError(err)
			}
			currentID = created.Id
		}

		d.cache.set(partialPath, currentID)
	}

	return currentID, nil
}

// uploadError converts a failed create into a domain.ErrUpload error
func uploadError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &domain.UploadError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("%w: %w", domain.ErrUpload, err)
}

// mapError converts Google API errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return domain.ErrNotFound
		case http.StatusForbidden:
			return domain.ErrPermissionDenied
		case http.StatusConflict:
			return domain.ErrAlreadyExists
		case http.StatusTooManyRequests:
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	if strings.Contains(err.Error(), "notFound") {
		return domain.ErrNotFound
	}

	return err
}
