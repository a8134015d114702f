package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second

	// TimestampLayout is ISO-8601 UTC with milliseconds
	TimestampLayout = "2006-01-02T15:04:05.000Z"

	// maxResponseBody bounds how much of a reply is kept as remote id or error text
	maxResponseBody = 64 * 1024
)

// Multipart field names
const (
	FieldFile        = "file"
	FieldFilename    = "filename"
	FieldTimestamp   = "timestamp"
	FieldFiletype    = "filetype"
	FieldFilesize    = "filesize"
	FieldWorkstation = "workstation"
	FieldUploadKey   = "upload_key"
)

// Options configures a webhook Client
type Options struct {
	URL     string
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default transport (tests)
	HTTPClient *http.Client
}

// Client POSTs files as multipart/form-data to a fixed URL
type Client struct {
	url   string
	token string
	http  *http.Client
}

// New creates a webhook client
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("%w: webhook url is required", domain.ErrConfigInvalid)
	}

	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Timeout)
	}

	return &Client{
		url:   opts.URL,
		token: opts.Token,
		http:  client,
	}, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	// No overall client timeout: large files may legitimately take longer
	// than the header timeout to stream. Cancellation comes from ctx.
	return &http.Client{Transport: base}
}

// Name returns the destination type
func (c *Client) Name() string {
	return "webhook"
}

// Upload streams the file and metadata fields in one POST.
// A 2xx reply succeeds with the trimmed body as remote id (the upload key
// when the body is empty); anything else is a *domain.UploadError.
func (c *Client) Upload(ctx context.Context, payload domain.UploadPayload, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	// body must not be touched after Upload returns
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeForm(writer, payload, body))
	}()
	defer func() { <-done }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("%w: build request: %v", domain.ErrUpload, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Upload-Key", payload.UploadKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUpload, ctxErr)
		}
		return "", fmt.Errorf("%w: %w: %v", domain.ErrUpload, domain.ErrNetworkError, err)
	}
	defer resp.Body.Close()
	// The server may answer before reading the whole body
	pr.CloseWithError(errors.New("response received"))

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrUpload, err)
	}
	text := strings.TrimSpace(string(reply))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.UploadError{StatusCode: resp.StatusCode, Body: text}
	}

	if text == "" {
		return payload.UploadKey, nil
	}
	return text, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeForm(w *multipart.Writer, p domain.UploadPayload, body io.Reader) error {
	fields := []struct{ name, value string }{
		{FieldFilename, p.Filename},
		{FieldTimestamp, p.Timestamp.UTC().Format(TimestampLayout)},
		{FieldFiletype, p.ContentType},
		{FieldFilesize, strconv.FormatInt(p.Size, 10)},
		{FieldWorkstation, p.Workstation},
		{FieldUploadKey, p.UploadKey},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write %s field: %w", f.name, err)
		}
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldFile, quoteEscaper.Replace(p.Filename)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file field: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	return w.Close()
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
