// Package blobstore provides key-addressed object storage for study
// attachments and rendered report documents. It defines the Store interface,
// an in-memory implementation suitable for testing and development, and a
// MinIO-backed implementation for production.
package blobstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed object size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// Object is a stored blob returned by Get.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Content     []byte
}

// Store defines the contract for object storage backends.
type Store interface {
	// Put stores an object under key. size must be the exact content length.
	Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) error
	// Get retrieves an object by key.
	Get(ctx context.Context, key string) (*Object, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Copy duplicates an object to a new key without round-tripping the
	// content through the caller.
	Copy(ctx context.Context, srcKey, dstKey string) error
	// PresignedURL returns a time-limited download URL for an object.
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ObjectKey builds the storage key for a study-scoped file. Keys embed the
// owning study so that deleting or copying a study can address its files by
// prefix:
//
//	<tenant>/studies/<studyID>/<unix-millis>_<random>_<filename>
//
// The random component keeps uploads with the same filename from colliding.
func ObjectKey(tenantID, studyID, fileName string) string {
	var b [4]byte
	rand.Read(b[:])
	return fmt.Sprintf("%s/studies/%s/%d_%s_%s",
		tenantID, studyID,
		time.Now().UnixMilli(),
		hex.EncodeToString(b[:]),
		sanitizeFileName(fileName))
}

// StudyPrefix returns the key prefix under which all of a study's objects
// live. Used for prefix listing during study replication.
func StudyPrefix(tenantID, studyID string) string {
	return fmt.Sprintf("%s/studies/%s/", tenantID, studyID)
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "file"
	}
	return sb.String()
}
