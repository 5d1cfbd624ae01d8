// Package storage keeps uploaded book images on local disk or in a
// MinIO/S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxImageSize caps a single upload.
const MaxImageSize = 5 << 20

// UploadsPrefix is the URL prefix under which locally stored images are served.
const UploadsPrefix = "/uploads/"

var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// ImageStore persists book images and hands back the reference stored on the book.
type ImageStore interface {
	// Put stores the image and returns its normalized reference.
	Put(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	// Release removes the image behind ref. References the store did not
	// produce are ignored.
	Release(ctx context.Context, ref string) error
}

// NormalizeImageRef turns user-supplied image references into their stored
// form: absolute http(s) URLs are kept, anything else becomes "/uploads/<name>".
// Blank input yields nil.
func NormalizeImageRef(v string) *string {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	if absoluteURL.MatchString(s) {
		return &s
	}
	s = strings.TrimLeft(s, "/")
	if !strings.HasPrefix(s, "uploads/") {
		s = "uploads/" + s
	}
	s = "/" + s
	return &s
}

// PublicURL resolves a stored reference against baseURL. Absolute references
// and an empty baseURL leave the reference unchanged.
func PublicURL(baseURL string, ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}
	if absoluteURL.MatchString(*ref) || baseURL == "" {
		return ref
	}
	u := strings.TrimRight(baseURL, "/") + *ref
	return &u
}

// objectName derives a fresh storage name for an upload of contentType.
func objectName(contentType string) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(contentType)]
	if !ok {
		return "", ErrUnsupportedImage
	}
	return uuid.New().String() + ext, nil
}

// localName extracts the file name from a "/uploads/<name>" reference.
func localName(ref string) (string, bool) {
	if !strings.HasPrefix(ref, UploadsPrefix) {
		return "", false
	}
	name := path.Base(ref)
	if name == "." || name == "/" || name == ".." {
		return "", false
	}
	return name, true
}
