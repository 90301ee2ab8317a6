package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/semaphore"

	tberrors "github.com/arkilian/tripbench/internal/errors"
)

// BatchDownloader coordinates parallel downloads from object storage.
// Objects already present in the cache directory are not downloaded again.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchResult contains the outcome of a batch download operation.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewBatchDownloader creates a new batch downloader.
// storage: the ObjectStorage implementation to download from
// concurrency: maximum number of parallel downloads
// cacheDir: directory downloaded files are written to and reused from
func NewBatchDownloader(storage ObjectStorage, concurrency int, cacheDir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Download downloads multiple objects in parallel.
// Returns a map of objectPath to localPath for successful downloads,
// and a separate map of objectPath to error for failed downloads.
func (b *BatchDownloader) Download(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(b.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	var downloadQueue []string
	seen := make(map[string]bool, len(objectPaths))
	for _, p := range objectPaths {
		if seen[p] {
			continue
		}
		seen[p] = true
		local := b.localPath(p)
		if _, err := os.Stat(local); err == nil {
			result.LocalPaths[p] = local
			result.CacheHits++
			continue
		}
		downloadQueue = append(downloadQueue, p)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range downloadQueue {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled
			mu.Lock()
			result.Errors[p] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path, local string) {
			defer sem.Release(1)
			defer wg.Done()

			exists, err := b.storage.Exists(ctx, path)
			if err == nil && !exists {
				err = fmt.Errorf("%w: %s", ErrObjectNotFound, path)
			}
			if err != nil {
				mu.Lock()
				result.Errors[path] = err
				mu.Unlock()
				return
			}

			// Download to a temporary name so an interrupted run never
			// leaves a partial file that looks like a cache hit.
			tmp := local + ".part"
			if err := b.storage.Download(ctx, path, tmp); err != nil {
				os.Remove(tmp)
				mu.Lock()
				result.Errors[path] = err
				mu.Unlock()
				return
			}
			if err := os.Rename(tmp, local); err != nil {
				mu.Lock()
				result.Errors[path] = tberrors.NewStorageError(tberrors.CodeDownloadFailed, "failed to move download into cache", err)
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[path] = local
			result.Downloads++
			mu.Unlock()
		}(p, b.localPath(p))
	}

	wg.Wait()

	return result, nil
}

// localPath returns the cache path for an object: the hash of the full key
// followed by its base name.
func (b *BatchDownloader) localPath(objectPath string) string {
	name := fmt.Sprintf("%016x_%s", murmur3.Sum64([]byte(objectPath)), path.Base(objectPath))
	return filepath.Join(b.cacheDir, name)
}
