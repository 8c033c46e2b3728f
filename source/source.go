// Package source defines image handles: opaque references to the raw bytes of a captured or
// uploaded specimen photograph. Handles are owned by whoever acquired them; nothing in this
// package persists image bytes.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// The MIME type assumed for images whose type cannot be derived from their name.
const DefaultMimeType = "image/jpeg"

// Handle is an opaque reference to the raw bytes of an image.
type Handle interface {
	// Open returns a new reader for the image bytes. Callers must close it.
	Open(context.Context) (io.ReadCloser, error)
	// Name returns a label for the image, typically a filename or a bucket key.
	Name() string
	// MimeType returns the MIME type of the image.
	MimeType() string
}

// Source is a capability that produces image handles, for example a camera or a file picker.
type Source interface {
	Acquire(context.Context) (Handle, error)
}

// ErrNoImage is returned by a Source when the user cancelled or nothing could be acquired.
var ErrNoImage = errors.New("No image acquired")

type bytesHandle struct {
	name string
	body []byte
}

// Bytes returns a Handle for an in-memory image buffer, for example the result of a camera capture.
func Bytes(name string, body []byte) Handle {

	h := &bytesHandle{
		name: name,
		body: body,
	}

	return h
}

func (h *bytesHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(h.body)), nil
}

func (h *bytesHandle) Name() string {
	return h.name
}

func (h *bytesHandle) MimeType() string {
	return mimeTypeForName(h.name)
}

type fileHandle struct {
	path string
}

// File returns a Handle for an image on the local filesystem.
func File(path string) Handle {
	return &fileHandle{path: path}
}

func (h *fileHandle) Open(ctx context.Context) (io.ReadCloser, error) {

	fh, err := os.Open(h.path)

	if err != nil {
		return nil, fmt.Errorf("Failed to open %s, %w", h.path, err)
	}

	return fh, nil
}

func (h *fileHandle) Name() string {
	return filepath.Base(h.path)
}

func (h *fileHandle) MimeType() string {
	return mimeTypeForName(h.path)
}

type blobHandle struct {
	bucket *blob.Bucket
	key    string
}

// Blob returns a Handle for an image stored in a gocloud.dev/blob.Bucket instance. The bucket
// is not closed by the handle.
func Blob(bucket *blob.Bucket, key string) Handle {

	h := &blobHandle{
		bucket: bucket,
		key:    key,
	}

	return h
}

func (h *blobHandle) Open(ctx context.Context) (io.ReadCloser, error) {

	r, err := h.bucket.NewReader(ctx, h.key, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for %s, %w", h.key, err)
	}

	return r, nil
}

func (h *blobHandle) Name() string {
	return h.key
}

func (h *blobHandle) MimeType() string {
	return mimeTypeForName(h.key)
}

// ReadAll returns all the bytes referenced by 'h'.
func ReadAll(ctx context.Context, h Handle) ([]byte, error) {

	r, err := h.Open(ctx)

	if err != nil {
		return nil, err
	}

	defer r.Close()

	body, err := io.ReadAll(r)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", h.Name(), err)
	}

	return body, nil
}

func mimeTypeForName(name string) string {

	t := mime.TypeByExtension(filepath.Ext(name))

	if t == "" {
		return DefaultMimeType
	}

	return t
}
