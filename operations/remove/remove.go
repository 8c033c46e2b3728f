// Package remove withdraws stored observations: the observation's feature is marked as deprecated
// and its images are deleted from the media bucket.
package remove

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/tidwall/sjson"
	"github.com/whosonfirst/go-ioutil"
	"github.com/whosonfirst/go-whosonfirst-export/v3"
	"github.com/whosonfirst/go-whosonfirst-uri"
	"gocloud.dev/blob"
)

// type RemovalOptions configures a Removal.
type RemovalOptions struct {
	// A whosonfirst/go-reader URI that observation features are read from. "{repo}" is replaced by
	// the request's repo.
	ReaderURI string
	// A whosonfirst/go-writer URI that deprecated features are written to. "{repo}" is replaced by
	// the request's repo.
	WriterURI string
	// The bucket that observation images were stored in.
	Bucket *blob.Bucket
	// An optional exporter applied to features before they are written.
	Exporter export.Exporter
	// Log what would be written and deleted without doing it.
	Dryrun bool
}

// type Removal withdraws stored observations.
type Removal struct {
	reader_uri string
	writer_uri string
	bucket     *blob.Bucket
	exporter   export.Exporter
	dryrun     bool
	mu         *sync.Mutex
}

// type RemovalRequest identifies a stored observation.
type RemovalRequest struct {
	Id   int64  `json:"id"`
	Repo string `json:"repo"`
}

func NewRemoval(opts *RemovalOptions) (*Removal, error) {

	if opts.ReaderURI == "" {
		return nil, fmt.Errorf("Missing reader URI")
	}

	if opts.WriterURI == "" {
		return nil, fmt.Errorf("Missing writer URI")
	}

	if opts.Bucket == nil {
		return nil, fmt.Errorf("Missing bucket")
	}

	c := &Removal{
		reader_uri: opts.ReaderURI,
		writer_uri: opts.WriterURI,
		bucket:     opts.Bucket,
		exporter:   opts.Exporter,
		dryrun:     opts.Dryrun,
		mu:         new(sync.Mutex),
	}

	return c, nil
}

// Remove withdraws each request concurrently. Failures do not stop the other requests; all of them
// are returned together.
func (c *Removal) Remove(ctx context.Context, requests ...*RemovalRequest) error {

	wg := new(sync.WaitGroup)
	errs_mu := new(sync.Mutex)
	errs := make([]error, 0)

	for _, req := range requests {

		wg.Add(1)

		go func(req *RemovalRequest) {

			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			default:
				// pass
			}

			err := c.remove(ctx, req)

			if err != nil {
				errs_mu.Lock()
				errs = append(errs, fmt.Errorf("Failed to remove %d, %w", req.Id, err))
				errs_mu.Unlock()
				return
			}

			slog.Info("Removed observation", "id", req.Id)
		}(req)
	}

	wg.Wait()

	return errors.Join(errs...)
}

func (c *Removal) remove(ctx context.Context, req *RemovalRequest) error {

	err := c.deprecateObservation(ctx, req)

	if err != nil {
		return err
	}

	return c.deleteImages(ctx, req)
}

func (c *Removal) deprecateObservation(ctx context.Context, req *RemovalRequest) error {

	rel_path, err := uri.Id2RelPath(req.Id)

	if err != nil {
		return fmt.Errorf("Failed to derive path, %w", err)
	}

	rdr, err := common.NewReader(ctx, withRepo(c.reader_uri, req.Repo))

	if err != nil {
		return err
	}

	wr, err := common.NewWriter(ctx, withRepo(c.writer_uri, req.Repo))

	if err != nil {
		return err
	}

	// Reads and writes of the same record must not interleave.
	c.mu.Lock()
	defer c.mu.Unlock()

	fh, err := rdr.Read(ctx, rel_path)

	if err != nil {
		return fmt.Errorf("Failed to read %s, %w", rel_path, err)
	}

	defer fh.Close()

	body, err := io.ReadAll(fh)

	if err != nil {
		return fmt.Errorf("Failed to read %s, %w", rel_path, err)
	}

	body, err = DeprecateFeature(body, time.Now())

	if err != nil {
		return err
	}

	if c.exporter != nil {

		_, body, err = c.exporter.Export(ctx, body)

		if err != nil {
			return fmt.Errorf("Failed to export %s, %w", rel_path, err)
		}
	}

	if c.dryrun {
		slog.Info("[dryrun] Write deprecated feature", "path", rel_path)
		return nil
	}

	out, err := ioutil.NewReadSeekCloser(bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("Failed to create ReadSeekCloser, %w", err)
	}

	_, err = wr.Write(ctx, rel_path, out)

	if err != nil {
		return fmt.Errorf("Failed to write %s, %w", rel_path, err)
	}

	return nil
}

func (c *Removal) deleteImages(ctx context.Context, req *RemovalRequest) error {

	root, err := uri.Id2Path(req.Id)

	if err != nil {
		return fmt.Errorf("Failed to derive path, %w", err)
	}

	// Images for 1000 live under "100/0/", inside the tree for 100.
	prefix := fmt.Sprintf("%d_", req.Id)

	list_opts := &blob.ListOptions{
		Prefix: root + "/",
	}

	iter := c.bucket.List(list_opts)

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("Failed to list %s, %w", root, err)
		}

		if !strings.HasPrefix(filepath.Base(obj.Key), prefix) {
			continue
		}

		if c.dryrun {
			slog.Info("[dryrun] Delete image", "key", obj.Key)
			continue
		}

		err = c.bucket.Delete(ctx, obj.Key)

		if err != nil {
			return fmt.Errorf("Failed to delete %s, %w", obj.Key, err)
		}
	}

	return nil
}

// DeprecateFeature marks the observation feature 'body' as deprecated as of 't' and strips its
// image sizes, since the images themselves are deleted.
func DeprecateFeature(body []byte, t time.Time) ([]byte, error) {

	updates := map[string]any{
		"properties.edtf:deprecated":  t.Format("2006-01-02"),
		"properties.mz:is_current":    0,
		"properties.wof:lastmodified": t.Unix(),
	}

	var err error

	for path, v := range updates {

		body, err = sjson.SetBytes(body, path, v)

		if err != nil {
			return nil, fmt.Errorf("Failed to set %s, %w", path, err)
		}
	}

	body, err = sjson.DeleteBytes(body, "properties.media:properties.sizes")

	if err != nil {
		return nil, fmt.Errorf("Failed to remove image sizes, %w", err)
	}

	return body, nil
}

func withRepo(uri string, repo string) string {
	return strings.Replace(uri, "{repo}", repo, 1)
}
