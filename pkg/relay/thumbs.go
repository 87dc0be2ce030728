// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// thumbnails manages per-user custom thumbnails and the lazily fetched
// default one. An empty dir disables thumbnails.
type thumbnails struct {
	dir        string
	defaultURL string
	client     *http.Client

	fetchMu sync.Mutex
}

func (t *thumbnails) customPath(userID int64) string {
	return filepath.Join(t.dir, fmt.Sprintf("%d.jpg", userID))
}

func (t *thumbnails) defaultPath(userID int64) string {
	return filepath.Join(t.dir, fmt.Sprintf("%d_default.jpg", userID))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Custom returns the user's own thumbnail, or "" when there is none.
func (t *thumbnails) Custom(userID int64) string {
	if t.dir == "" {
		return ""
	}
	if path := t.customPath(userID); exists(path) {
		return path
	}
	return ""
}

// For returns the custom thumbnail, falling back to the default one.
func (t *thumbnails) For(ctx context.Context, userID int64) string {
	if path := t.Custom(userID); path != "" {
		return path
	}
	if t.dir == "" || t.defaultURL == "" {
		return ""
	}
	path, err := t.fetchDefault(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to fetch default thumbnail")
		return ""
	}
	return path
}

func (t *thumbnails) fetchDefault(ctx context.Context, userID int64) (string, error) {
	t.fetchMu.Lock()
	defer t.fetchMu.Unlock()
	path := t.defaultPath(userID)
	if exists(path) {
		return path, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.defaultURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected thumbnail status %d", resp.StatusCode)
	}
	if err := t.write(path, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}

func (t *thumbnails) write(path string, r io.Reader) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	tmp, err := os.CreateTemp(t.dir, ".thumb-*")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Set stores a custom thumbnail for the user.
func (t *thumbnails) Set(userID int64, r io.Reader) error {
	if t.dir == "" {
		return fmt.Errorf("thumbnails: %w", ErrCapabilityUnavailable)
	}
	return t.write(t.customPath(userID), r)
}

// Delete removes the custom thumbnail of the user, if any.
func (t *thumbnails) Delete(userID int64) error {
	if t.dir == "" {
		return nil
	}
	if err := os.Remove(t.customPath(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete thumbnail: %w", err)
	}
	return nil
}
