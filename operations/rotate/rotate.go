// Package rotate rotates the image of a stored observation. The rotated image is written with a new
// secret and the observation's feature is updated to point at it.
package rotate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aaronland/go-image-tools/imaging"
	"github.com/aaronland/go-image-tools/util"
	"github.com/aaronland/go-string/random"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/whosonfirst/go-ioutil"
	"github.com/whosonfirst/go-whosonfirst-export/v3"
	"github.com/whosonfirst/go-whosonfirst-uri"
	"gocloud.dev/blob"
)

// ErrNothingToRotate is returned for requests of zero degrees.
var ErrNothingToRotate = errors.New("Nothing to rotate")

// ErrInvalidRotation is returned for requests outside (0, 360].
var ErrInvalidRotation = errors.New("Invalid rotation")

type RotationOptions struct {
	// A whosonfirst/go-reader URI that observation features are read from. "{repo}" is replaced by
	// the request's repo.
	ReaderURI string
	// A whosonfirst/go-writer URI that updated features are written to. "{repo}" is replaced by
	// the request's repo.
	WriterURI string
	// The bucket that observation images are stored in.
	Bucket   *blob.Bucket
	Exporter export.Exporter
	// Assign a "public-read" ACL to rotated images written to S3 buckets.
	PublicRead bool
	Dryrun     bool
}

type Rotation struct {
	reader_uri  string
	writer_uri  string
	bucket      *blob.Bucket
	exporter    export.Exporter
	public_read bool
	dryrun      bool
}

type RotateRequest struct {
	Id      int64  `json:"id"`
	Degrees int    `json:"degrees"`
	Repo    string `json:"repo"`
	// Delete the original image once the feature has been updated.
	Prune bool `json:"prune"`
}

// type RotateResponse describes a rotated image.
type RotateResponse struct {
	Id      int64
	Secret  string
	Width   int
	Height  int
	OldPath string
	NewPath string
}

func NewRotation(opts *RotationOptions) (*Rotation, error) {

	if opts.ReaderURI == "" {
		return nil, fmt.Errorf("Missing reader URI")
	}

	if opts.WriterURI == "" {
		return nil, fmt.Errorf("Missing writer URI")
	}

	if opts.Bucket == nil {
		return nil, fmt.Errorf("Missing bucket")
	}

	r := &Rotation{
		reader_uri:  opts.ReaderURI,
		writer_uri:  opts.WriterURI,
		bucket:      opts.Bucket,
		exporter:    opts.Exporter,
		public_read: opts.PublicRead,
		dryrun:      opts.Dryrun,
	}

	return r, nil
}

// Rotate processes each request in order, stopping at the first failure.
func (r *Rotation) Rotate(ctx context.Context, requests ...*RotateRequest) ([]*RotateResponse, error) {

	responses := make([]*RotateResponse, 0)

	for _, req := range requests {

		select {
		case <-ctx.Done():
			return responses, ctx.Err()
		default:
			// pass
		}

		rsp, err := r.rotate(ctx, req)

		if err != nil {
			return responses, fmt.Errorf("Failed to rotate %d, %w", req.Id, err)
		}

		responses = append(responses, rsp)
	}

	return responses, nil
}

func (r *Rotation) rotate(ctx context.Context, req *RotateRequest) (*RotateResponse, error) {

	if req.Degrees == 0 {
		return nil, ErrNothingToRotate
	}

	if req.Degrees < 0 || req.Degrees > 360 {
		return nil, ErrInvalidRotation
	}

	rel_path, err := uri.Id2RelPath(req.Id)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive path, %w", err)
	}

	rdr, err := common.NewReader(ctx, strings.Replace(r.reader_uri, "{repo}", req.Repo, 1))

	if err != nil {
		return nil, err
	}

	wr, err := common.NewWriter(ctx, strings.Replace(r.writer_uri, "{repo}", req.Repo, 1))

	if err != nil {
		return nil, err
	}

	fh, err := rdr.Read(ctx, rel_path)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", rel_path, err)
	}

	defer fh.Close()

	body, err := io.ReadAll(fh)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", rel_path, err)
	}

	details := gjson.GetBytes(body, "properties.media:properties.sizes.o")

	if !details.Exists() {
		return nil, fmt.Errorf("Missing properties.media:properties.sizes.o")
	}

	secret_rsp := details.Get("secret")

	if !secret_rsp.Exists() {
		return nil, fmt.Errorf("Missing secret")
	}

	extension_rsp := details.Get("extension")

	if !extension_rsp.Exists() {
		return nil, fmt.Errorf("Missing extension")
	}

	rand_opts := random.DefaultOptions()
	rand_opts.AlphaNumeric = true

	new_secret, err := random.String(rand_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to generate secret, %w", err)
	}

	root, err := uri.Id2Path(req.Id)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive path, %w", err)
	}

	extension := extension_rsp.String()

	old_path := filepath.Join(root, fmt.Sprintf("%d_%s.%s", req.Id, secret_rsp.String(), extension))
	new_path := filepath.Join(root, fmt.Sprintf("%d_%s.%s", req.Id, new_secret, extension))

	logger := slog.Default()
	logger = logger.With("id", req.Id, "old", old_path, "new", new_path)

	im, err := r.rotateImage(ctx, req.Degrees, old_path, new_path)

	if err != nil {
		return nil, err
	}

	scrub := func() {

		if !r.dryrun {
			r.bucket.Delete(ctx, new_path)
		}
	}

	dims := im.Bounds().Size()

	updates := map[string]any{
		"properties.media:properties.sizes.o.secret": new_secret,
		"properties.media:properties.sizes.o.width":  dims.X,
		"properties.media:properties.sizes.o.height": dims.Y,
		"properties.wof:lastmodified":                time.Now().Unix(),
	}

	for path, v := range updates {

		body, err = sjson.SetBytes(body, path, v)

		if err != nil {
			scrub()
			return nil, fmt.Errorf("Failed to set %s, %w", path, err)
		}
	}

	if r.exporter != nil {

		_, body, err = r.exporter.Export(ctx, body)

		if err != nil {
			scrub()
			return nil, fmt.Errorf("Failed to export %s, %w", rel_path, err)
		}
	}

	if r.dryrun {
		logger.Info("[dryrun] Write rotated feature", "path", rel_path)
	} else {

		out, err := ioutil.NewReadSeekCloser(bytes.NewReader(body))

		if err != nil {
			scrub()
			return nil, fmt.Errorf("Failed to create ReadSeekCloser, %w", err)
		}

		_, err = wr.Write(ctx, rel_path, out)

		if err != nil {
			scrub()
			return nil, fmt.Errorf("Failed to write %s, %w", rel_path, err)
		}
	}

	if req.Prune {

		if r.dryrun {
			logger.Info("[dryrun] Delete original image")
		} else {

			err = r.bucket.Delete(ctx, old_path)

			if err != nil {
				logger.Warn("Failed to delete original image", "error", err)
			}
		}
	}

	rsp := &RotateResponse{
		Id:      req.Id,
		Secret:  new_secret,
		Width:   dims.X,
		Height:  dims.Y,
		OldPath: old_path,
		NewPath: new_path,
	}

	return rsp, nil
}

func (r *Rotation) rotateImage(ctx context.Context, degrees int, old_path string, new_path string) (image.Image, error) {

	fh, err := r.bucket.NewReader(ctx, old_path, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to open %s, %w", old_path, err)
	}

	defer fh.Close()

	content_type := fh.ContentType()

	im, format, err := util.DecodeImageFromReader(fh)

	if err != nil {
		return nil, fmt.Errorf("Failed to decode %s, %w", old_path, err)
	}

	im = imaging.Rotate(im, float64(degrees), color.White)

	if r.dryrun {
		slog.Info("[dryrun] Write rotated image", "path", new_path)
		return im, nil
	}

	wr_opts := &blob.WriterOptions{
		ContentType: content_type,
	}

	if r.public_read {

		wr_opts.BeforeWrite = func(asFunc func(interface{}) bool) error {

			s3_req := &s3manager.UploadInput{}
			ok := asFunc(&s3_req)

			if ok {
				s3_req.ACL = aws.String("public-read")
			}

			return nil
		}
	}

	wr, err := r.bucket.NewWriter(ctx, new_path, wr_opts)

	if err != nil {
		return nil, fmt.Errorf("Failed to create writer for %s, %w", new_path, err)
	}

	err = util.EncodeImage(im, format, wr)

	if err != nil {
		wr.Close()
		r.bucket.Delete(ctx, new_path)
		return nil, fmt.Errorf("Failed to encode %s, %w", new_path, err)
	}

	err = wr.Close()

	if err != nil {
		return nil, fmt.Errorf("Failed to write %s, %w", new_path, err)
	}

	return im, nil
}
