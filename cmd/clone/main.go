// clone copies every observation in a journal database into a gocloud.dev/blob bucket, as an image
// and a GeoJSON feature per observation, so they can be processed or published elsewhere.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/logging"
	"github.com/sfomuseum/go-specimen-capture/operations/clone"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

func main() {

	config_path := flag.String("config", "config.yaml", "The path to a YAML config file. A missing file means defaults.")
	journal_path := flag.String("journal", "", "The path to a journal database. Defaults to submit.journal.path in the config.")
	target_uri := flag.String("target-uri", "", "A gocloud.dev/blob URI to clone observations to.")
	repo := flag.String("repo", "", "The wof:repo property for cloned features. Defaults to submit.bucket.repo.")
	force := flag.Bool("force", false, "Overwrite observations that have already been cloned.")
	hash_images := flag.Bool("hash-images", true, "Include perceptual image hashes in cloned features.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Clone the observations in a journal to a bucket.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.Load(*config_path)

	if err != nil {
		log.Fatalf("Failed to load config, %v", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	if *target_uri == "" {
		log.Fatal("Missing -target-uri")
	}

	if *journal_path == "" {
		*journal_path = cfg.Submit.Journal.Path
	}

	if *repo == "" {
		*repo = cfg.Submit.Bucket.Repo
	}

	j, err := submit.NewJournalTransactor(ctx, *journal_path)

	if err != nil {
		log.Fatalf("Failed to open journal, %v", err)
	}

	defer j.Close()

	target, err := blob.OpenBucket(ctx, *target_uri)

	if err != nil {
		log.Fatalf("Failed to open target bucket, %v", err)
	}

	defer target.Close()

	opts := &clone.CloneEntryOptions{
		Images:     j,
		Target:     target,
		Repo:       *repo,
		HashImages: *hash_images,
		Force:      *force,
	}

	responses, err := clone.CloneJournal(ctx, opts, j)

	enc := json.NewEncoder(os.Stdout)

	for _, rsp := range responses {
		enc.Encode(rsp)
	}

	if err != nil {
		log.Fatalf("Failed to clone journal, %v", err)
	}
}
