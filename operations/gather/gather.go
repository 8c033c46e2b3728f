// Package gather crawls a bucket of specimen photographs and reports the fingerprint, perceptual
// hashes and geotag of each image.
package gather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/sfomuseum/go-specimen-capture/geotag"
	"github.com/sfomuseum/go-specimen-capture/source"
	"gocloud.dev/blob"
)

type GatherImagesResponse struct {
	Path        string                 `json:"path"`
	Fingerprint string                 `json:"fingerprint"`
	MimeType    string                 `json:"mimetype"`
	ImageHashes []*common.ImageHashRsp `json:"imagehashes,omitempty"`
	// Extraction is one of "resolved", "absent" or "failed".
	Extraction string         `json:"extraction"`
	GeoTag     *geotag.GeoTag `json:"geotag,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type GatherImageCallbackFunc func(context.Context, *GatherImagesResponse) error

type GatherImagesOptions struct {
	Callback   GatherImageCallbackFunc
	HashImages bool
}

func GatherImages(ctx context.Context, bucket *blob.Bucket, cb GatherImageCallbackFunc) error {

	opts := &GatherImagesOptions{
		Callback:   cb,
		HashImages: true,
	}

	return GatherImagesWithOptions(ctx, bucket, opts)
}

// GatherImagesWithOptions crawls 'bucket' and dispatches each response to 'opts.Callback' on its own
// goroutine. Callback errors are logged, not returned.
func GatherImagesWithOptions(ctx context.Context, bucket *blob.Bucket, opts *GatherImagesOptions) error {

	gather_ch := make(chan *GatherImagesResponse)

	done_ch := make(chan bool)
	err_ch := make(chan error, 1)

	go func() {

		err := CrawlImagesWithOptions(ctx, bucket, opts, gather_ch)

		if err != nil {
			err_ch <- err
		}

		done_ch <- true
	}()

	gathering := true
	wg := new(sync.WaitGroup)

	for gathering {

		select {
		case <-done_ch:
			gathering = false
		case gather_rsp := <-gather_ch:

			wg.Add(1)

			go func(rsp *GatherImagesResponse) {

				defer wg.Done()

				err := opts.Callback(ctx, rsp)

				if err != nil {
					slog.Error("Failed to process image", "path", rsp.Path, "error", err)
				}

			}(gather_rsp)
		}
	}

	wg.Wait()

	select {
	case err := <-err_ch:
		return err
	default:
		return nil
	}
}

// CrawlImages iterates through all the items stored in a blob.Bucket instance, generates a
// GatherImagesResponse for things that are images and dispatches it to 'rsp_ch'.
func CrawlImages(ctx context.Context, bucket *blob.Bucket, rsp_ch chan *GatherImagesResponse) error {

	opts := &GatherImagesOptions{
		HashImages: true,
	}

	return CrawlImagesWithOptions(ctx, bucket, opts, rsp_ch)
}

func CrawlImagesWithOptions(ctx context.Context, bucket *blob.Bucket, opts *GatherImagesOptions, rsp_ch chan *GatherImagesResponse) error {

	var list func(context.Context, *blob.Bucket, string) error

	list = func(ctx context.Context, b *blob.Bucket, prefix string) error {

		iter := b.List(&blob.ListOptions{
			Delimiter: "/",
			Prefix:    prefix,
		})

		for {

			select {
			case <-ctx.Done():
				return nil
			default:
				// pass
			}

			obj, err := iter.Next(ctx)

			if err == io.EOF {
				break
			}

			if err != nil {
				return fmt.Errorf("Failed to list %s, %w", prefix, err)
			}

			if obj.IsDir {

				err := list(ctx, b, obj.Key)

				if err != nil {
					return err
				}

				continue
			}

			rsp, err := GatherImageResponseWithPath(ctx, bucket, obj.Key, opts.HashImages)

			if err != nil {
				return err
			}

			if rsp == nil {
				continue
			}

			rsp_ch <- rsp
		}

		return nil
	}

	return list(ctx, bucket, "")
}

// GatherImageResponseWithPath returns the response for 'path', or nil if 'path' is not an image.
// Images that cannot be hashed or geotagged are still reported, with the failure recorded in Error.
func GatherImageResponseWithPath(ctx context.Context, bucket *blob.Bucket, path string, hash_images bool) (*GatherImagesResponse, error) {

	ext := filepath.Ext(path)

	t := mime.TypeByExtension(ext)

	if t == "" {
		return nil, nil
	}

	if !strings.HasPrefix(t, "image/") {
		return nil, nil
	}

	h := source.Blob(bucket, path)

	fp, err := common.Fingerprint(ctx, h)

	if err != nil {
		return nil, fmt.Errorf("Failed to fingerprint %s, %w", path, err)
	}

	rsp := &GatherImagesResponse{
		Path:        path,
		MimeType:    t,
		Fingerprint: fp,
	}

	if hash_images {

		hashes, err := common.ImageHashes(ctx, h)

		if err != nil {
			slog.Warn("Failed to derive image hashes", "path", path, "error", err)
		} else {
			rsp.ImageHashes = hashes
		}
	}

	res := geotag.Resolve(ctx, h)

	rsp.Extraction = res.Outcome.String()
	rsp.GeoTag = res.GeoTag

	if res.Err != nil {
		rsp.Error = res.Err.Error()
	}

	return rsp, nil
}
