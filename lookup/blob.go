package lookup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"gocloud.dev/blob"
)

// BlobLookerUpper reads ".geojson" features from a gocloud.dev/blob bucket.
type BlobLookerUpper struct {
	LookerUpper
	bucket *blob.Bucket
}

// NewBlobLookerUpper opens the bucket at 'uri'. The bucket stays open for the life of the process.
func NewBlobLookerUpper(ctx context.Context, uri string) (LookerUpper, error) {

	bucket, err := blob.OpenBucket(ctx, uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to open bucket, %w", err)
	}

	return NewBlobLookerUpperWithBucket(ctx, bucket)
}

func NewBlobLookerUpperWithBucket(ctx context.Context, bucket *blob.Bucket) (LookerUpper, error) {

	l := &BlobLookerUpper{
		bucket: bucket,
	}

	return l, nil
}

func (l *BlobLookerUpper) Append(ctx context.Context, lu *sync.Map, append_funcs ...AppendLookupFunc) error {

	bucket_iter := l.bucket.List(nil)

	for {

		select {
		case <-ctx.Done():
			return nil
		default:
			// pass
		}

		obj, err := bucket_iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("Failed to list bucket, %w", err)
		}

		if filepath.Ext(obj.Key) != ".geojson" {
			continue
		}

		body, err := l.bucket.ReadAll(ctx, obj.Key)

		if err != nil {
			return fmt.Errorf("Failed to read %s, %w", obj.Key, err)
		}

		for _, f := range append_funcs {

			br := bytes.NewReader(body)
			fh := io.NopCloser(br)

			err := f(ctx, lu, fh)

			if err != nil {
				return fmt.Errorf("Failed to append %s, %w", obj.Key, err)
			}
		}
	}

	return nil
}
