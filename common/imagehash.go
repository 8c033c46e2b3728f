package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sort"

	"github.com/aaronland/go-image-tools/util"
	"github.com/corona10/goimagehash"
	"github.com/sfomuseum/go-specimen-capture/source"
)

// The perceptual hashing approaches applied by ImageHashes.
var ImageHashApproaches = []string{
	"avg",
	"diff",
}

// ImageHashRsp is a struct representing the results of an image hashing operation.
type ImageHashRsp struct {
	// String label describing the image hashing procedure used.
	Approach string `json:"approach"`
	// The hexidecimal hash of an image.
	Hash string `json:"hash"`
}

// ImageHashes decodes the image behind 'h' and returns its perceptual hashes, sorted by approach,
// using the corona10/goimagehash package.
func ImageHashes(ctx context.Context, h source.Handle) ([]*ImageHashRsp, error) {

	body, err := source.ReadAll(ctx, h)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", h.Name(), err)
	}

	im, _, err := util.DecodeImageFromReader(bytes.NewReader(body))

	if err != nil {
		return nil, fmt.Errorf("Failed to decode image from %s, %w", h.Name(), err)
	}

	return ImageHashesWithImage(ctx, im)
}

// ImageHashesWithImage returns the perceptual hashes for a decoded image. Approaches that fail are
// logged and omitted.
func ImageHashesWithImage(ctx context.Context, im image.Image) ([]*ImageHashRsp, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done_ch := make(chan bool)
	err_ch := make(chan error)
	rsp_ch := make(chan *ImageHashRsp)

	for _, a := range ImageHashApproaches {

		go func(ctx context.Context, im image.Image, a string) {

			defer func() {
				done_ch <- true
			}()

			rsp, err := imageHash(ctx, im, a)

			if err != nil {
				err_ch <- err
				return
			}

			if rsp != nil {
				rsp_ch <- rsp
			}

		}(ctx, im, a)
	}

	remaining := len(ImageHashApproaches)
	hashes := make([]*ImageHashRsp, 0)

	for remaining > 0 {

		select {
		case <-done_ch:
			remaining -= 1
		case err := <-err_ch:
			slog.Error("Image hash channel received error", "error", err)
		case rsp := <-rsp_ch:
			hashes = append(hashes, rsp)
		}
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Approach < hashes[j].Approach
	})

	return hashes, nil
}

func imageHash(ctx context.Context, im image.Image, approach string) (*ImageHashRsp, error) {

	select {
	case <-ctx.Done():
		return nil, nil
	default:
		// pass
	}

	var h *goimagehash.ImageHash
	var err error

	switch approach {
	case "avg":
		h, err = goimagehash.AverageHash(im)
	case "diff":
		h, err = goimagehash.DifferenceHash(im)
	default:
		err = errors.New("Unknown approach")
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to process image hash approach '%s', %w", approach, err)
	}

	rsp := &ImageHashRsp{
		Approach: approach,
		Hash:     h.ToString(),
	}

	return rsp, nil
}
