// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Artifact is the private working directory of one request and the file
// materialized inside it.
type Artifact struct {
	Dir  string
	Path string
}

// Remove deletes the artifact directory and everything in it. It is safe to
// call on a nil artifact.
func (a *Artifact) Remove() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Executor materializes attachments on local disk.
type Executor struct {
	workDir string
	prefix  string
}

func NewExecutor(workDir, prefix string) *Executor {
	return &Executor{workDir: workDir, prefix: prefix}
}

// NewArtifact creates a working directory namespaced by the requester and
// a random id, so concurrent requests for the same message never collide.
func (x *Executor) NewArtifact(userID int64) (*Artifact, error) {
	dir := filepath.Join(x.workDir, strconv.FormatInt(userID, 10)+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	return &Artifact{Dir: dir}, nil
}

// Download streams the attachment of msg into the artifact and renames it
// to {prefix}_{key}{ext}.
func (x *Executor) Download(ctx context.Context, f Fetcher, msg Message, desc MediaDescriptor, a *Artifact, key int64, progress ProgressFunc) error {
	path, err := f.Download(ctx, msg, a.Dir, progress)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	a.Path = path
	ext := filepath.Ext(path)
	if ext == "" {
		ext = filepath.Ext(desc.DisplayName)
	}
	renamed := filepath.Join(a.Dir, MakeArtifactName(x.prefix, key, ext))
	if renamed == path {
		return nil
	}
	if err = os.Rename(path, renamed); err != nil {
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	a.Path = renamed
	return nil
}

// Part is one chunk written by SplitFile. Number is one-based.
type Part struct {
	Number int
	Path   string
	Size   int64
}

// SplitFile cuts path into parts of at most partSize bytes and hands each
// to fn in order. A part file exists only while fn runs. It returns the
// number of parts handed to fn.
func SplitFile(ctx context.Context, path string, partSize int64, fn func(Part) error) (int, error) {
	if partSize <= 0 {
		return 0, fmt.Errorf("invalid part size %d", partSize)
	}
	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		partPath := MakePartName(path, n)
		written, err := writePart(src, partPath, partSize)
		if err != nil {
			_ = os.Remove(partPath)
			return n, err
		}
		if written == 0 {
			_ = os.Remove(partPath)
			return n, nil
		}
		err = fn(Part{Number: n + 1, Path: partPath, Size: written})
		_ = os.Remove(partPath)
		if err != nil {
			return n + 1, err
		}
		if written < partSize {
			return n + 1, nil
		}
	}
}

func writePart(src io.Reader, partPath string, partSize int64) (int64, error) {
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create part: %w", err)
	}
	written, err := io.CopyN(out, src, partSize)
	closeErr := out.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return written, fmt.Errorf("failed to write part: %w", err)
	}
	if closeErr != nil {
		return written, fmt.Errorf("failed to close part: %w", closeErr)
	}
	return written, nil
}
