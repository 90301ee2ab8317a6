package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const s3Scheme = "s3://"

// Location is a parsed input or output location.
type Location struct {
	Bucket string // empty for local paths
	Key    string // object key, or the local path
}

// IsRemote reports whether the location is an object store URI.
func (l Location) IsRemote() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.IsRemote() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseURI parses "s3://bucket/key" or a local path.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	if !strings.HasPrefix(uri, s3Scheme) {
		return Location{Key: uri}, nil
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid s3 uri %q: want s3://bucket/key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// BackendFactory opens the object storage for a bucket.
type BackendFactory func(ctx context.Context, bucket string) (ObjectStorage, error)

// S3Backends returns a factory creating S3Storage clients.
func S3Backends(cfg S3Config) BackendFactory {
	return func(ctx context.Context, bucket string) (ObjectStorage, error) {
		return NewS3Storage(ctx, bucket, cfg)
	}
}

// Resolver maps input and output locations onto local files.
type Resolver struct {
	workDir     string
	backends    BackendFactory
	concurrency int
}

// NewResolver creates a resolver that caches downloads under workDir.
func NewResolver(workDir string, backends BackendFactory) *Resolver {
	return &Resolver{workDir: workDir, backends: backends, concurrency: 4}
}

// Fetch returns local paths for uris, in the same order. Local paths are
// checked and returned unchanged; remote objects are downloaded into the
// work directory, reusing earlier downloads.
func (r *Resolver) Fetch(ctx context.Context, uris []string) ([]string, error) {
	locals := make([]string, len(uris))
	byBucket := make(map[string][]string)

	for i, uri := range uris {
		loc, err := ParseURI(uri)
		if err != nil {
			return nil, err
		}
		if !loc.IsRemote() {
			if _, err := os.Stat(loc.Key); err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, loc.Key)
				}
				return nil, err
			}
			locals[i] = loc.Key
			continue
		}
		byBucket[loc.Bucket] = append(byBucket[loc.Bucket], loc.Key)
	}

	fetched := make(map[string]string)
	for bucket, keys := range byBucket {
		backend, err := r.backends(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("storage: open bucket %s: %w", bucket, err)
		}
		downloader := NewBatchDownloader(backend, r.concurrency, filepath.Join(r.workDir, bucket))
		res, err := downloader.Download(ctx, keys)
		if err != nil {
			return nil, err
		}
		for key, dlErr := range res.Errors {
			return nil, fmt.Errorf("storage: fetch s3://%s/%s: %w", bucket, key, dlErr)
		}
		for key, local := range res.LocalPaths {
			fetched[Location{Bucket: bucket, Key: key}.String()] = local
		}
	}

	for i, uri := range uris {
		if locals[i] == "" {
			locals[i] = fetched[uri]
		}
	}
	return locals, nil
}

// Publish writes data to a local path or remote URI.
func (r *Resolver) Publish(ctx context.Context, data []byte, uri string) error {
	loc, err := ParseURI(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.workDir, 0755); err != nil {
		return fmt.Errorf("storage: create work dir: %w", err)
	}
	staged := filepath.Join(r.workDir, "publish-"+uuid.NewString())
	if err := os.WriteFile(staged, data, 0644); err != nil {
		return fmt.Errorf("storage: stage output: %w", err)
	}
	defer os.Remove(staged)

	var backend ObjectStorage
	if loc.IsRemote() {
		backend, err = r.backends(ctx, loc.Bucket)
	} else {
		var local *LocalStorage
		local, err = NewLocalStorage(filepath.Dir(loc.Key))
		backend = local
		loc.Key = filepath.Base(loc.Key)
	}
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", uri, err)
	}
	return backend.Upload(ctx, staged, loc.Key)
}
