package cluster

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shipyard-neo/bay/internal/driver"
)

// ListFiles, PutFile, and GetFile shell out to `tar` inside the pod over
// exec, the same approach `kubectl cp` uses, since the Kubernetes API has
// no native file-copy verb.

func (d *Driver) ListFiles(ctx context.Context, id, path string) ([]*driver.FileEntry, error) {
	stream, err := d.Exec(ctx, id, []string{"tar", "cf", "-", "-C", "/", strings.TrimPrefix(path, "/")})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	var entries []*driver.FileEntry
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar read error: %w", err)
		}
		name := strings.TrimPrefix(header.Name, "/")
		entries = append(entries, &driver.FileEntry{
			Name:         filepath.Base(name),
			Path:         name,
			Size:         header.Size,
			Mode:         header.Mode,
			IsDir:        header.Typeflag == tar.TypeDir,
			LastModified: header.ModTime,
		})
	}
	return entries, nil
}

func (d *Driver) PutFile(ctx context.Context, id, path string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("reading content: %w", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	header := &tar.Header{Name: filepath.Base(path), Size: int64(len(data)), Mode: 0644, ModTime: time.Now()}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar close: %w", err)
	}

	stream, err := d.Exec(ctx, id, []string{"tar", "xf", "-", "-C", filepath.Dir(path)})
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = io.Copy(stream, &buf)
	return err
}

func (d *Driver) GetFile(ctx context.Context, id, path string) (io.ReadCloser, error) {
	stream, err := d.Exec(ctx, id, []string{"tar", "cf", "-", "-C", filepath.Dir(path), filepath.Base(path)})
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(stream)
	if _, err := tr.Next(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("file not found in tar: %w", err)
	}
	return &tarReadCloser{tr: tr, closer: stream}, nil
}

type tarReadCloser struct {
	tr     *tar.Reader
	closer io.Closer
}

func (t *tarReadCloser) Read(p []byte) (int, error) { return t.tr.Read(p) }
func (t *tarReadCloser) Close() error                { return t.closer.Close() }
