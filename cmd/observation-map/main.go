// observation-map prints the map view, as JSON, for previously submitted observations read from a
// journal database or from a whosonfirst/go-reader source of observation features.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/sfomuseum/go-specimen-capture/config"
	"github.com/sfomuseum/go-specimen-capture/logging"
	"github.com/sfomuseum/go-specimen-capture/mapping"
	"github.com/sfomuseum/go-specimen-capture/submit"
)

func main() {

	config_path := flag.String("config", "config.yaml", "The path to a YAML config file. A missing file means defaults.")
	journal_path := flag.String("journal", "", "The path to a journal database. Defaults to submit.journal.path in the config.")
	reader_uri := flag.String("reader-uri", "", "A whosonfirst/go-reader URI to read observation features from. Positional arguments are WOF IDs.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Print a map view of submitted observations.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t %s [options] [id(N) id(N)]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.Load(*config_path)

	if err != nil {
		log.Fatalf("Failed to load config, %v", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	m, err := mapping.NewMap(cfg.MapOptions())

	if err != nil {
		log.Fatalf("Failed to create map, %v", err)
	}

	var v *mapping.View

	if *reader_uri != "" {

		ids := make([]int64, 0)

		for _, str_id := range flag.Args() {

			id, err := strconv.ParseInt(str_id, 10, 64)

			if err != nil {
				log.Fatalf("Invalid ID '%s', %v", str_id, err)
			}

			ids = append(ids, id)
		}

		r, err := common.NewReader(ctx, *reader_uri)

		if err != nil {
			log.Fatal(err)
		}

		v, err = m.StoredView(ctx, r, ids...)

		if err != nil {
			log.Fatalf("Failed to build map view, %v", err)
		}

	} else {

		path := *journal_path

		if path == "" {
			path = cfg.Submit.Journal.Path
		}

		tr, err := submit.NewJournalTransactor(ctx, path)

		if err != nil {
			log.Fatalf("Failed to open journal, %v", err)
		}

		defer tr.Close()

		entries, err := tr.Entries(ctx)

		if err != nil {
			log.Fatalf("Failed to read journal, %v", err)
		}

		v = m.JournalView(entries)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	err = enc.Encode(v)

	if err != nil {
		log.Fatalf("Failed to encode map view, %v", err)
	}
}
