// Package objectstore defines the capability boundary over blob storage
// consumed by the Media Repository, the Chunked Upload Coordinator, and the
// Media Lifecycle Service. Multiple backends implement Store; callers never
// depend on a concrete backend beyond BackendKind() when a behavior is
// backend-conditional (e.g. presigned URLs).
package objectstore

import (
	"context"
	"time"
)

// BackendKind classifies a Store's capabilities.
type BackendKind int

const (
	// Remote backends (S3 and compatible) support presigned PUT/GET.
	Remote BackendKind = iota
	// Local backends (filesystem) do not support presigned URLs.
	Local
	// Networked backends are implementation-defined (e.g. NFS-mounted).
	Networked
)

func (k BackendKind) String() string {
	switch k {
	case Remote:
		return "remote"
	case Local:
		return "local"
	case Networked:
		return "networked"
	default:
		return "unknown"
	}
}

// Store is the capability set every object store backend implements.
// See SPEC_FULL.md §A / spec.md §4.1.
type Store interface {
	// Upload stores bytes under a backend-chosen key derived from tenant,
	// filename, and content type, and returns the key and a durable URL.
	Upload(ctx context.Context, tenant, filename, contentType string, body []byte) (key string, url string, err error)

	// UploadWithKey stores bytes at an explicit key, overwriting any prior
	// object at that key. Used by the chunked-upload path, where the key is
	// computed by the coordinator, not the store.
	UploadWithKey(ctx context.Context, key string, body []byte, contentType string) (url string, err error)

	// Download returns the complete bytes stored at key.
	Download(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key names an object.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Copy duplicates src to dst. On failure dst must not exist.
	Copy(ctx context.Context, src, dst string) (url string, err error)

	// PresignedPutURL returns a time-limited URL authorizing a PUT to key.
	// Fails with merrors.Unrecoverable when the backend does not support it.
	PresignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)

	// PresignedGetURL returns a time-limited URL authorizing a GET of key.
	// Fails with merrors.Unrecoverable when the backend does not support it.
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// BackendKind introspects the store's capabilities.
	BackendKind() BackendKind
}
