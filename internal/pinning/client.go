package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Uploader stores a binary blob with the pinning service and returns its
// content identifier. Any non-success response yields an error and no CID.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Client uploads files to a Lighthouse-style pinning endpoint
// (POST /api/v0/add, Bearer auth, multipart form field "file").
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewClient(endpoint, token string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type addResponse struct {
	Hash string `json:"Hash"`
	Name string `json:"Name,omitempty"`
	Size string `json:"Size,omitempty"`
}

func (c *Client) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("pinning endpoint not configured")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("pinning upload: status=%d body=%s", resp.StatusCode, string(body))
	}
	var out addResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("pinning upload: decode: %w", err)
	}
	if out.Hash == "" {
		return "", errors.New("pinning upload: response missing content identifier")
	}
	return out.Hash, nil
}
