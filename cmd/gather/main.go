// gather crawls one or more gocloud.dev/blob buckets of specimen photographs and prints a JSON
// record, including its geotag, for each image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/sfomuseum/go-specimen-capture/logging"
	"github.com/sfomuseum/go-specimen-capture/operations/gather"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

func main() {

	hash_images := flag.Bool("hash-images", true, "Include perceptual image hashes in each record.")
	log_level := flag.String("log-level", "info", "The log level to use.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Crawl one or more buckets of images and print a JSON record for each.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options] bucket-uri(N) bucket-uri(N)\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	logging.Setup(*log_level, "text")

	ctx := context.Background()

	enc := json.NewEncoder(os.Stdout)
	mu := new(sync.Mutex)

	cb := func(ctx context.Context, rsp *gather.GatherImagesResponse) error {

		mu.Lock()
		defer mu.Unlock()

		return enc.Encode(rsp)
	}

	opts := &gather.GatherImagesOptions{
		Callback:   cb,
		HashImages: *hash_images,
	}

	for _, uri := range flag.Args() {

		slog.Info("Gather images", "bucket", uri)

		bucket, err := blob.OpenBucket(ctx, uri)

		if err != nil {
			log.Fatalf("Failed to open bucket %s, %v", uri, err)
		}

		err = gather.GatherImagesWithOptions(ctx, bucket, opts)

		bucket.Close()

		if err != nil {
			log.Fatalf("Failed to gather images from %s, %v", uri, err)
		}
	}
}
