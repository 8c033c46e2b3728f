package submit

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aaronland/go-string/random"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/sfomuseum/go-specimen-capture/feature"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/whosonfirst/go-ioutil"
	"github.com/whosonfirst/go-whosonfirst-export/v3"
	"github.com/whosonfirst/go-whosonfirst-id"
	"github.com/whosonfirst/go-whosonfirst-uri"
	"gocloud.dev/blob"
)

// BucketTransactorOptions configures a BucketTransactor.
type BucketTransactorOptions struct {
	// The bucket that images are written to.
	Bucket *blob.Bucket
	// A whosonfirst/go-writer URI that observation features are written to.
	WriterURI string
	// The wof:repo property assigned to features.
	Repo string
	// An optional exporter applied to features before they are written.
	Exporter export.Exporter
	// An optional ID provider. If nil whosonfirst/go-whosonfirst-id's default provider is used.
	IDProvider id.Provider
	// An optional fingerprint lookup table (see the lookup package). Images whose fingerprint is
	// already present are rejected with ErrDuplicateImage.
	Lookup *sync.Map
	// Assign a "public-read" ACL to images written to S3 buckets.
	PublicRead bool
	// Record perceptual image hashes in features.
	HashImages bool
}

// BucketTransactor stores the image in a gocloud.dev/blob bucket and a GeoJSON feature describing
// the observation with a whosonfirst/go-writer writer.
type BucketTransactor struct {
	bucket      *blob.Bucket
	writer_uri  string
	repo        string
	exporter    export.Exporter
	id_provider id.Provider
	lookup      *sync.Map
	public_read bool
	hash_images bool
}

// type BucketResult describes where a submission was stored.
type BucketResult struct {
	ID          int64
	ImagePath   string
	FeaturePath string
}

// NewBucketTransactor returns a BucketTransactor configured by 'opts'.
func NewBucketTransactor(ctx context.Context, opts *BucketTransactorOptions) (*BucketTransactor, error) {

	if opts.Bucket == nil {
		return nil, fmt.Errorf("Missing bucket")
	}

	if opts.WriterURI == "" {
		return nil, fmt.Errorf("Missing writer URI")
	}

	pr := opts.IDProvider

	if pr == nil {

		new_pr, err := id.NewProvider(ctx)

		if err != nil {
			return nil, fmt.Errorf("Failed to create ID provider, %w", err)
		}

		pr = new_pr
	}

	t := &BucketTransactor{
		bucket:      opts.Bucket,
		writer_uri:  opts.WriterURI,
		repo:        opts.Repo,
		exporter:    opts.Exporter,
		id_provider: pr,
		lookup:      opts.Lookup,
		public_read: opts.PublicRead,
		hash_images: opts.HashImages,
	}

	return t, nil
}

func (t *BucketTransactor) Name() string {
	return "bucket"
}

func (t *BucketTransactor) Submit(ctx context.Context, p *Payload) error {
	_, err := t.SubmitWithResult(ctx, p)
	return err
}

// SubmitWithResult stores 'p' and returns the paths it was written to. If the feature cannot be
// written the image is removed again.
func (t *BucketTransactor) SubmitWithResult(ctx context.Context, p *Payload) (*BucketResult, error) {

	if p.Image == nil {
		return nil, Failure("Payload is missing image", nil)
	}

	body, err := source.ReadAll(ctx, p.Image)

	if err != nil {
		return nil, Failure("Failed to read image", err)
	}

	fp, err := common.FingerprintReader(bytes.NewReader(body))

	if err != nil {
		return nil, Failure("Failed to fingerprint image", err)
	}

	wof_id, err := t.id_provider.NewID(ctx)

	if err != nil {
		return nil, Failure("Failed to mint new ID", err)
	}

	logger := slog.Default()
	logger = logger.With("observation", p.ID, "id", wof_id, "fingerprint", fp)

	if t.lookup != nil {

		existing, loaded := t.lookup.LoadOrStore(fp, wof_id)

		if loaded {
			return nil, fmt.Errorf("Image %s already stored as %v, %w", fp, existing, ErrDuplicateImage)
		}
	}

	release := func() {

		if t.lookup != nil {
			t.lookup.CompareAndDelete(fp, wof_id)
		}
	}

	rand_opts := random.DefaultOptions()
	rand_opts.AlphaNumeric = true

	secret, err := random.String(rand_opts)

	if err != nil {
		release()
		return nil, Failure("Failed to generate secret", err)
	}

	root, err := uri.Id2Path(wof_id)

	if err != nil {
		release()
		return nil, Failure("Failed to derive path", err)
	}

	extension := "jpg"
	image_path := filepath.Join(root, fmt.Sprintf("%d_%s.%s", wof_id, secret, extension))

	err = t.writeImage(ctx, image_path, p.Image.MimeType(), body)

	if err != nil {
		release()
		return nil, Failure("Failed to write image", err)
	}

	feature_path, err := t.writeFeature(ctx, wof_id, secret, extension, fp, body, p)

	if err != nil {
		release()

		del_err := t.bucket.Delete(ctx, image_path)

		if del_err != nil {
			logger.Error("Failed to remove image after feature write failed, image is orphaned", "image", image_path, "error", del_err)
		}

		return nil, Failure("Failed to write feature", err)
	}

	logger.Debug("Stored observation", "image", image_path, "feature", feature_path)

	rsp := &BucketResult{
		ID:          wof_id,
		ImagePath:   image_path,
		FeaturePath: feature_path,
	}

	return rsp, nil
}

func (t *BucketTransactor) writeImage(ctx context.Context, path string, content_type string, body []byte) error {

	wr_opts := &blob.WriterOptions{
		ContentType: content_type,
	}

	if t.public_read {

		wr_opts.BeforeWrite = func(asFunc func(interface{}) bool) error {

			s3_req := &s3manager.UploadInput{}
			ok := asFunc(&s3_req)

			if ok {
				s3_req.ACL = aws.String("public-read")
			}

			return nil
		}
	}

	return t.bucket.WriteAll(ctx, path, body, wr_opts)
}

func (t *BucketTransactor) writeFeature(ctx context.Context, wof_id int64, secret string, extension string, fp string, body []byte, p *Payload) (string, error) {

	rec := &feature.Record{
		ID:             wof_id,
		LocalID:        p.ID,
		Description:    p.Description,
		SpeciesName:    p.SpeciesName,
		Timestamp:      p.Timestamp,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		PositionSource: p.PositionSource,
	}

	f_opts := &feature.NewObservationFeatureOptions{
		Repo:        t.repo,
		Fingerprint: fp,
		MimeType:    p.Image.MimeType(),
		Secret:      secret,
		Extension:   extension,
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))

	if err == nil {
		f_opts.Width = cfg.Width
		f_opts.Height = cfg.Height
	}

	if t.hash_images {

		hashes, err := common.ImageHashes(ctx, source.Bytes(p.Image.Name(), body))

		if err != nil {
			slog.Warn("Failed to derive image hashes", "id", wof_id, "error", err)
		} else {
			f_opts.ImageHashes = hashes
		}
	}

	enc_f, err := feature.NewObservationFeatureWithProvider(ctx, t.id_provider, rec, f_opts)

	if err != nil {
		return "", err
	}

	if t.exporter != nil {

		_, enc_f, err = t.exporter.Export(ctx, enc_f)

		if err != nil {
			return "", fmt.Errorf("Failed to export feature, %w", err)
		}
	}

	rel_path, err := uri.Id2RelPath(wof_id)

	if err != nil {
		return "", fmt.Errorf("Failed to derive feature path, %w", err)
	}

	writer_uri := t.writer_uri

	if strings.Contains(writer_uri, "{repo}") {
		writer_uri = strings.Replace(writer_uri, "{repo}", t.repo, 1)
	}

	wr, err := common.NewWriter(ctx, writer_uri)

	if err != nil {
		return "", err
	}

	br := bytes.NewReader(enc_f)
	fh, err := ioutil.NewReadSeekCloser(br)

	if err != nil {
		return "", fmt.Errorf("Failed to create ReadSeekCloser from feature, %w", err)
	}

	_, err = wr.Write(ctx, rel_path, fh)

	if err != nil {
		return "", fmt.Errorf("Failed to write feature to %s, %w", rel_path, err)
	}

	return rel_path, nil
}
