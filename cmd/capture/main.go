// capture runs a single observation through the capture pipeline: it captures an image, waits for
// its geotag, applies the species and description fields and submits the result using the
// configured transactor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sfomuseum/go-specimen-capture"
	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/logging"
	"github.com/sfomuseum/go-specimen-capture/mapping"
	"github.com/sfomuseum/go-specimen-capture/observation"
	"github.com/sfomuseum/go-specimen-capture/source"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

func main() {

	config_path := flag.String("config", "config.yaml", "The path to a YAML config file. A missing file means defaults.")
	image_path := flag.String("image", "", "The path to a local image file.")
	bucket_uri := flag.String("bucket-uri", "", "A gocloud.dev/blob URI to read the image from, instead of -image.")
	key := flag.String("key", "", "The key of the image in -bucket-uri.")
	species := flag.String("species", "", "The species name for the observation.")
	description := flag.String("description", "", "A description of the observation.")
	use_live := flag.Bool("use-live-position", false, "Submit the device position if the image has no geotag.")
	dryrun := flag.Bool("dryrun", false, "Print the map view for the observation but do not submit it.")
	timeout := flag.Duration("timeout", 60*time.Second, "The maximum time to spend on the observation.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Capture and submit a single geotagged specimen observation.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.Load(*config_path)

	if err != nil {
		log.Fatalf("Failed to load config, %v", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if cfg.Metrics.Address != "" {

		go func() {

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())

			err := http.ListenAndServe(cfg.Metrics.Address, mux)

			if err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	err = run(ctx, cfg, *image_path, *bucket_uri, *key, *species, *description, *use_live, *dryrun)

	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, image_path string, bucket_uri string, key string, species string, description string, use_live bool, dryrun bool) error {

	h, closer, err := acquire(ctx, image_path, bucket_uri, key)

	if err != nil {
		return fmt.Errorf("Failed to acquire image, %w", err)
	}

	defer closer()

	m, err := mapping.NewMap(cfg.MapOptions())

	if err != nil {
		return fmt.Errorf("Failed to create map, %w", err)
	}

	s, close_session, err := capture.NewSession(ctx, cfg)

	if err != nil {
		return err
	}

	defer close_session()

	err = s.Capture(ctx, h)

	if err != nil {
		return fmt.Errorf("Failed to capture image, %w", err)
	}

	s.RefreshLivePosition(ctx)

	snap, err := s.Await(ctx)

	if err != nil {
		return fmt.Errorf("Failed to wait for geotag, %w", err)
	}

	logger := slog.Default()
	logger = logger.With("observation", snap.Observation.ID, "image", h.Name())

	switch {
	case snap.Observation.GeoTag != nil:
		logger.Info("Image is geotagged", "latitude", snap.Observation.GeoTag.Latitude, "longitude", snap.Observation.GeoTag.Longitude, "timestamp", snap.Observation.GeoTag.CapturedAt)
	case snap.Observation.ExtractionErr != nil:
		logger.Warn("Could not read image metadata", "error", snap.Observation.ExtractionErr)
	default:
		logger.Info("Image has no geotag")
	}

	edits := map[observation.Field]string{
		observation.FieldSpeciesName: species,
		observation.FieldDescription: description,
	}

	for f, v := range edits {

		if v == "" {
			continue
		}

		err := s.Edit(f, v)

		if err != nil {
			return fmt.Errorf("Failed to set %s, %w", f, err)
		}
	}

	if dryrun {
		return json.NewEncoder(os.Stdout).Encode(m.View(s.Snapshot().Observation))
	}

	err = s.Submit(ctx, &observation.SubmitOptions{UseLiveFallback: use_live})

	if observation.IsPrecondition(err) {
		return fmt.Errorf("Observation is not ready to submit (use -use-live-position to submit the device position), %w", err)
	}

	if err != nil {
		return err
	}

	logger.Info("Observation submitted", "state", s.State())
	return nil
}

func acquire(ctx context.Context, image_path string, bucket_uri string, key string) (source.Handle, func() error, error) {

	if bucket_uri == "" {

		if image_path == "" {
			return nil, nil, errors.New("Missing -image or -bucket-uri")
		}

		_, err := os.Stat(image_path)

		if err != nil {
			return nil, nil, err
		}

		return source.File(image_path), func() error { return nil }, nil
	}

	bucket, err := blob.OpenBucket(ctx, bucket_uri)

	if err != nil {
		return nil, nil, err
	}

	src := &source.BucketSource{
		Bucket: bucket,
		Key:    key,
	}

	h, err := src.Acquire(ctx)

	if err != nil {
		bucket.Close()
		return nil, nil, err
	}

	return h, bucket.Close, nil
}
