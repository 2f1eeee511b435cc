package publisher

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// S3Upload pushes a file to a presigned object-storage URL.
//
// Presigned URLs keep credentials out of this process entirely: whoever
// hands out the URL decides bucket, key, and expiry, and all that is
// left to do here is a plain HTTP PUT.
type S3Upload struct {
	Client *http.Client
}

// NewS3Upload returns an uploader with its own HTTP client.
func NewS3Upload() *S3Upload {
	return &S3Upload{Client: &http.Client{}}
}

// Put uploads the file at sourcePath to the presigned URL.
// Content type is derived from the file extension, defaulting to
// application/octet-stream.
func (u *S3Upload) Put(ctx context.Context, uploadURL, sourcePath string) error {
	file, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("s3 upload: open %s: %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("s3 upload: stat %s: %w", sourcePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("s3 upload: build request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	slog.Info("uploading archive", "source", sourcePath, "size", stat.Size(), "content_type", contentType)

	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("s3 upload failed with status: %s", resp.Status)
	}

	slog.Info("archive uploaded", "status", resp.Status)
	return nil
}

// ArchiveDir packs dir into a gzipped tar file at archivePath.
// Used to turn a results directory into a single uploadable object.
func ArchiveDir(dir, archivePath string) error {
	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return f.Close()
}
