// Package source abstracts where documents are read from. A Source
// lists files under a root and fetches their raw bytes, so ingestion
// can pull from the local filesystem and S3 buckets through one
// interface.
package source

import (
	"context"
	"strings"
)

// File describes a single document a Source can fetch.
type File struct {
	// Path is the source-specific locator. It is accepted by Fetch and
	// is suitable as a document location.
	Path string

	// Name is the base name of the file.
	Name string

	// Size is the content length in bytes.
	Size int64
}

// Source reads documents from a backing store.
type Source interface {
	// List enumerates the files under root. With recurse set it
	// descends into subdirectories, otherwise only direct children are
	// returned. Hidden entries, those whose base name starts with a
	// dot, are skipped.
	List(ctx context.Context, root string, recurse bool) ([]File, error)

	// Fetch returns the raw content of the file at path.
	Fetch(ctx context.Context, path string) ([]byte, error)

	// Name identifies the source for logging and routing.
	Name() string
}

const s3Scheme = "s3://"

// IsS3URI reports whether path addresses an S3 object or prefix.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, s3Scheme)
}

// ParseS3URI splits an s3://bucket/key URI into bucket and key. ok is
// false when uri does not carry the s3 scheme or names no bucket.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	if !IsS3URI(uri) {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, key, true
}
