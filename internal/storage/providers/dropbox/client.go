// Package dropbox implements the sync backend over the Dropbox content
// API. The snapshot lives under a single fixed path and every upload
// overwrites it.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okayu/mangasync/internal/snapshot"
)

const (
	dropboxContentURL = "https://content.dropboxapi.com/2"

	defaultRemotePath = "/library_snapshot.json"
)

// Client implements storage.Backend for Dropbox.
type Client struct {
	accessToken string
	remotePath  string
	httpClient  *http.Client
}

// NewClient creates a Dropbox sync backend with the given access token.
func NewClient(accessToken string) *Client {
	return &Client{
		accessToken: accessToken,
		remotePath:  defaultRemotePath,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithRemotePath sets a custom snapshot path in Dropbox.
func (c *Client) WithRemotePath(path string) *Client {
	c.remotePath = path
	return c
}

// Download retrieves the remote snapshot, or (nil, nil) when none has
// been uploaded yet. Dropbox reports an unknown path as a 409 with a
// path/not_found marker in the body.
func (c *Client) Download(ctx context.Context) (*snapshot.Snapshot, error) {
	pathArg := map[string]string{
		"path": c.remotePath,
	}
	pathArgBytes, err := json.Marshal(pathArg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", dropboxContentURL+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Dropbox-API-Arg", string(pathArgBytes))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusConflict && strings.Contains(string(body), "path/not_found") {
			return nil, nil
		}
		return nil, fmt.Errorf("dropbox API error (status %d): %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	return snapshot.Decode(data)
}

// Upload replaces the remote snapshot in overwrite mode.
func (c *Client) Upload(ctx context.Context, snap *snapshot.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}

	uploadArg := map[string]any{
		"path":            c.remotePath,
		"mode":            "overwrite",
		"autorename":      false,
		"mute":            true,
		"strict_conflict": false,
	}
	uploadArgBytes, err := json.Marshal(uploadArg)
	if err != nil {
		return fmt.Errorf("failed to marshal upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", dropboxContentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Dropbox-API-Arg", string(uploadArgBytes))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dropbox API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
