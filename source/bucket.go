package source

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// BucketSource is a Source that acquires a single, known key from a gocloud.dev/blob.Bucket. It
// stands in for a file picker: the shell decides which key was picked.
type BucketSource struct {
	Bucket *blob.Bucket
	Key    string
}

// Acquire returns a Handle for the source's key, ensuring that it exists first.
func (s *BucketSource) Acquire(ctx context.Context) (Handle, error) {

	if s.Key == "" {
		return nil, ErrNoImage
	}

	exists, err := s.Bucket.Exists(ctx, s.Key)

	if err != nil {
		return nil, fmt.Errorf("Failed to determine if %s exists, %w", s.Key, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s does not exist, %w", s.Key, ErrNoImage)
	}

	return Blob(s.Bucket, s.Key), nil
}
