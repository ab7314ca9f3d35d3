package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// DirUploader copies snapshots into a local directory.
type DirUploader struct {
	Dir string
}

func (u DirUploader) Upload(ctx context.Context, name string, r io.Reader) error {
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(u.Dir, name+".part-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(u.Dir, name))
}

// GCSUploader uploads snapshots to a Cloud Storage bucket.
type GCSUploader struct {
	svc    *storage.Service
	bucket string
	prefix string
}

// NewGCSUploader builds an uploader for bucket. A bucket of the form
// "name/some/prefix" stores objects under that prefix.
func NewGCSUploader(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSUploader, error) {
	name, prefix, _ := strings.Cut(strings.TrimPrefix(bucket, "gs://"), "/")
	if name == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	return &GCSUploader{svc: svc, bucket: name, prefix: strings.Trim(prefix, "/")}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, name string, r io.Reader) error {
	if u.prefix != "" {
		name = u.prefix + "/" + name
	}
	obj := &storage.Object{Name: name, ContentType: "application/vnd.sqlite3"}
	_, err := u.svc.Objects.Insert(u.bucket, obj).Media(r).Context(ctx).Do()
	return err
}
