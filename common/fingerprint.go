package common

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sfomuseum/go-specimen-capture/source"
)

// Fingerprint returns the SHA-1 hash of the image behind 'h'.
func Fingerprint(ctx context.Context, h source.Handle) (string, error) {

	r, err := h.Open(ctx)

	if err != nil {
		return "", fmt.Errorf("Failed to open %s, %w", h.Name(), err)
	}

	defer r.Close()

	return FingerprintReader(r)
}

// FingerprintReader returns the SHA-1 hash of everything read from 'r'.
func FingerprintReader(r io.Reader) (string, error) {

	// h := sha256.New()
	h := sha1.New()

	_, err := io.Copy(h, r)

	if err != nil {
		return "", fmt.Errorf("Failed to hash image, %w", err)
	}

	hash := h.Sum(nil)
	str := hex.EncodeToString(hash[:])

	return str, nil
}
