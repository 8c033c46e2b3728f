package lookup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
)

// AppendLookupFunc reads a single feature from 'fh' and records it in 'lu'.
type AppendLookupFunc func(context.Context, *sync.Map, io.ReadCloser) error

// FingerprintAppendLookupFunc maps a feature's media:fingerprint property to its wof:id.
func FingerprintAppendLookupFunc(ctx context.Context, lu *sync.Map, fh io.ReadCloser) error {
	return appendProperty(ctx, lu, fh, "properties.media:fingerprint")
}

// ImageHashAppendLookupFunc maps a feature's media:imagehash_avg property to its wof:id.
func ImageHashAppendLookupFunc(ctx context.Context, lu *sync.Map, fh io.ReadCloser) error {
	return appendProperty(ctx, lu, fh, "properties.media:imagehash_avg")
}

func appendProperty(ctx context.Context, lu *sync.Map, fh io.ReadCloser, path string) error {

	body, err := io.ReadAll(fh)

	if err != nil {
		return fmt.Errorf("Failed to read feature, %w", err)
	}

	id_rsp := gjson.GetBytes(body, "properties.wof:id")

	if !id_rsp.Exists() {
		slog.Debug("Feature is missing wof:id, skipping")
		return nil
	}

	key_rsp := gjson.GetBytes(body, path)

	if !key_rsp.Exists() {
		return nil
	}

	key := key_rsp.String()
	id := id_rsp.Int()

	existing, exists := lu.LoadOrStore(key, id)

	if exists && existing.(int64) != id {
		return fmt.Errorf("Existing %s key for %s (%d)", path, key, existing)
	}

	return nil
}
