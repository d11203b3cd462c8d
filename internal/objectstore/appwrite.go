package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagewise/internal/pkg/apperr"
)

// maxObjectSize bounds Get so a bad locator cannot exhaust memory.
const maxObjectSize = 200 << 20

type Config struct {
	Endpoint  string
	ProjectID string
	APIKey    string
	BucketID  string
	Timeout   time.Duration
}

// Object is a fetched blob with its declared media type.
type Object struct {
	Data        []byte
	ContentType string
}

// Client talks to an Appwrite-compatible storage bucket.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Put uploads data and returns its public view URL.
func (c *Client) Put(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	fileID := strings.ReplaceAll(uuid.NewString(), "-", "")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("fileId", fileID); err != nil {
		return "", fmt.Errorf("write file id field failed: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create file part failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write file part failed: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close multipart body failed: %w", err)
	}

	endpoint := fmt.Sprintf("%s/storage/buckets/%s/files", c.cfg.Endpoint, url.PathEscape(c.cfg.BucketID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request failed: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.StorageUnavailable("upload "+filename, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.StorageUnavailable("read upload response", err)
	}
	if resp.StatusCode >= 300 {
		return "", apperr.StorageUnavailable("upload "+filename, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var created struct {
		ID string `json:"$id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", apperr.StorageUnavailable("parse upload response", err)
	}
	if created.ID == "" {
		created.ID = fileID
	}
	return c.PublicURL(created.ID), nil
}

// PublicURL is the stable locator of a stored file.
func (c *Client) PublicURL(fileID string) string {
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		c.cfg.Endpoint,
		url.PathEscape(c.cfg.BucketID),
		url.PathEscape(fileID),
		url.QueryEscape(c.cfg.ProjectID),
	)
}

// Get fetches any locator. Credentials are only sent to the storage endpoint.
func (c *Client) Get(ctx context.Context, locator string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindMissingInput, "invalid locator", err)
	}
	if c.cfg.Endpoint != "" && strings.HasPrefix(locator, c.cfg.Endpoint+"/") {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.StorageUnavailable("fetch "+locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.StorageUnavailable("fetch "+locator, fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize+1))
	if err != nil {
		return nil, apperr.StorageUnavailable("read "+locator, err)
	}
	if len(data) > maxObjectSize {
		return nil, apperr.InvalidInputKind("object exceeds size limit", nil)
	}
	return &Object{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.ProjectID != "" {
		req.Header.Set("X-Appwrite-Project", c.cfg.ProjectID)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Appwrite-Key", c.cfg.APIKey)
	}
}
