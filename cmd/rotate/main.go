// rotate rotates the images of one or more stored observations, using the bucket configured in
// submit.bucket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/logging"
	"github.com/sfomuseum/go-specimen-capture/operations/rotate"
	"github.com/whosonfirst/go-whosonfirst-export/v3"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

func main() {

	config_path := flag.String("config", "config.yaml", "The path to a YAML config file. A missing file means defaults.")
	reader_uri := flag.String("reader-uri", "", "A whosonfirst/go-reader URI to read observation features from. Defaults to submit.bucket.writer_uri.")
	repo := flag.String("repo", "", "The repo to substitute for \"{repo}\" in reader and writer URIs. Defaults to submit.bucket.repo.")
	degrees := flag.Int("degrees", 90, "The number of degrees to rotate each image, counter-clockwise.")
	prune := flag.Bool("prune", false, "Delete the original images once their features have been updated.")
	dryrun := flag.Bool("dryrun", false, "Log what would be changed without changing it.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Rotate the images of one or more stored observations.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options] id(N) id(N)\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.Load(*config_path)

	if err != nil {
		log.Fatalf("Failed to load config, %v", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	bucket_cfg := cfg.Submit.Bucket

	if *reader_uri == "" {
		*reader_uri = bucket_cfg.WriterURI
	}

	if *repo == "" {
		*repo = bucket_cfg.Repo
	}

	bucket, err := blob.OpenBucket(ctx, bucket_cfg.BucketURI)

	if err != nil {
		log.Fatalf("Failed to open bucket, %v", err)
	}

	defer bucket.Close()

	opts := &rotate.RotationOptions{
		ReaderURI:  *reader_uri,
		WriterURI:  bucket_cfg.WriterURI,
		Bucket:     bucket,
		PublicRead: bucket_cfg.PublicRead,
		Dryrun:     *dryrun,
	}

	if bucket_cfg.ExporterURI != "" {

		ex, err := export.NewExporter(ctx, bucket_cfg.ExporterURI)

		if err != nil {
			log.Fatalf("Failed to create exporter, %v", err)
		}

		opts.Exporter = ex
	}

	r, err := rotate.NewRotation(opts)

	if err != nil {
		log.Fatalf("Failed to create rotation, %v", err)
	}

	requests := make([]*rotate.RotateRequest, 0)

	for _, str_id := range flag.Args() {

		id, err := strconv.ParseInt(str_id, 10, 64)

		if err != nil {
			log.Fatalf("Invalid ID '%s', %v", str_id, err)
		}

		req := &rotate.RotateRequest{
			Id:      id,
			Degrees: *degrees,
			Repo:    *repo,
			Prune:   *prune,
		}

		requests = append(requests, req)
	}

	responses, err := r.Rotate(ctx, requests...)

	enc := json.NewEncoder(os.Stdout)

	for _, rsp := range responses {
		enc.Encode(rsp)
	}

	if err != nil {
		log.Fatal(err)
	}
}
