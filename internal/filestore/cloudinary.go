package filestore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cloudinary uploads files through the Cloudinary REST API.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// NewCloudinary creates a Cloudinary store.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

type uploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int    `json:"bytes"`
}

// Save uploads r with the "auto" resource type so documents are accepted
// alongside images.
func (c *Cloudinary) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
		"public_id": strings.TrimSuffix(name, filepath.Ext(name)),
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	url := fmt.Sprintf("%s/v1_1/%s/auto/upload", c.BaseURL, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return result.SecureURL, nil
}

// Open always reports ErrRemote; clients follow the stored secure URL.
func (c *Cloudinary) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrRemote
}

// sign computes the API signature. api_key, file and resource_type are not
// part of the signed payload.
func (c *Cloudinary) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
