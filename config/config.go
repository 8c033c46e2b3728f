// Package config loads the YAML configuration shared by the capture tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/sfomuseum/go-specimen-capture/mapping"
	"github.com/sfomuseum/go-specimen-capture/position"
	"gopkg.in/yaml.v3"
)

// Transactor names accepted by SubmitConfig.Transactor.
const (
	TransactorHTTP    = "http"
	TransactorBucket  = "bucket"
	TransactorJournal = "journal"
)

// Provider names accepted by PositionConfig.Provider.
const (
	ProviderNone   = ""
	ProviderStatic = "static"
	ProviderNMEA   = "nmea"
)

// Config holds all application configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Submit   SubmitConfig   `yaml:"submit"`
	Position PositionConfig `yaml:"position"`
	Map      MapConfig      `yaml:"map"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SubmitConfig struct {
	Transactor string        `yaml:"transactor"`
	HTTP       HTTPConfig    `yaml:"http"`
	Bucket     BucketConfig  `yaml:"bucket"`
	Journal    JournalConfig `yaml:"journal"`
}

type HTTPConfig struct {
	URL string `yaml:"url"`
}

type BucketConfig struct {
	// A gocloud.dev/blob URI for images.
	BucketURI string `yaml:"bucket_uri"`
	// A whosonfirst/go-writer URI for features. May contain "{repo}".
	WriterURI string `yaml:"writer_uri"`
	// A whosonfirst/go-whosonfirst-export URI. Empty means features are written as-is.
	ExporterURI string `yaml:"exporter_uri"`
	Repo        string `yaml:"repo"`
	// gocloud.dev/blob URIs of buckets holding previously stored features, used to reject duplicates.
	LookupURIs []string `yaml:"lookup_uris"`
	PublicRead bool     `yaml:"public_read"`
	HashImages bool     `yaml:"hash_images"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type PositionConfig struct {
	Provider string              `yaml:"provider"`
	Static   StaticConfig        `yaml:"static"`
	NMEA     position.NMEAConfig `yaml:"nmea"`
}

type StaticConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type MapConfig struct {
	mapping.MapOptions `yaml:",inline"`
	// [longitude, latitude]
	DefaultCenter []float64 `yaml:"default_center"`
}

type MetricsConfig struct {
	// The address to serve Prometheus metrics on. Empty disables the endpoint.
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Submit: SubmitConfig{
			Transactor: TransactorJournal,
			Bucket: BucketConfig{
				WriterURI:  "null://",
				HashImages: true,
			},
			Journal: JournalConfig{
				Path: "observations.db",
			},
		},
		Position: PositionConfig{
			NMEA: position.NMEAConfig{
				BaudRate:     9600,
				MaxSentences: 20,
			},
		},
		Map: MapConfig{
			MapOptions: mapping.MapOptions{
				TileURL:     mapping.DefaultTileURL,
				Attribution: mapping.DefaultAttribution,
				Zoom:        mapping.DefaultZoom,
				Icon: mapping.MarkerIcon{
					IconURL:   "https://unpkg.com/leaflet@1.9.4/dist/images/marker-icon.png",
					ShadowURL: "https://unpkg.com/leaflet@1.9.4/dist/images/marker-shadow.png",
				},
			},
			DefaultCenter: []float64{-38.523, -3.745},
		},
	}

	return cfg
}

// Load reads the YAML file at 'path' over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {

	cfg := Default()

	if path != "" {

		data, err := os.ReadFile(path)

		switch {
		case err == nil:

			err = yaml.Unmarshal(data, cfg)

			if err != nil {
				return nil, fmt.Errorf("Failed to parse config file %s, %w", path, err)
			}

		case errors.Is(err, os.ErrNotExist):
			// pass
		default:
			return nil, fmt.Errorf("Failed to read config file %s, %w", path, err)
		}
	}

	cfg.applyEnv()

	err := cfg.Validate()

	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {

	if v := os.Getenv("SPECIMEN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("SPECIMEN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("SPECIMEN_TRANSACTOR"); v != "" {
		c.Submit.Transactor = v
	}

	if v := os.Getenv("SPECIMEN_SUBMIT_URL"); v != "" {
		c.Submit.HTTP.URL = v
	}

	if v := os.Getenv("SPECIMEN_JOURNAL_PATH"); v != "" {
		c.Submit.Journal.Path = v
	}

	if v := os.Getenv("SPECIMEN_GPS_PORT"); v != "" {
		c.Position.NMEA.PortPath = v
	}

	if v := os.Getenv("SPECIMEN_GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Position.NMEA.BaudRate = n
		}
	}
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {

	errs := make([]string, 0)

	switch c.Submit.Transactor {
	case TransactorHTTP:

		if c.Submit.HTTP.URL == "" {
			errs = append(errs, "submit.http.url is required")
		}

	case TransactorBucket:

		if c.Submit.Bucket.BucketURI == "" {
			errs = append(errs, "submit.bucket.bucket_uri is required")
		}

		if c.Submit.Bucket.WriterURI == "" {
			errs = append(errs, "submit.bucket.writer_uri is required")
		}

	case TransactorJournal:

		if c.Submit.Journal.Path == "" {
			errs = append(errs, "submit.journal.path is required")
		}

	default:
		errs = append(errs, fmt.Sprintf("submit.transactor must be one of http, bucket, journal, got %q", c.Submit.Transactor))
	}

	switch c.Position.Provider {
	case ProviderNone, ProviderStatic:
		// pass
	case ProviderNMEA:

		if c.Position.NMEA.PortPath == "" {
			errs = append(errs, "position.nmea.port_path is required")
		}

	default:
		errs = append(errs, fmt.Sprintf("position.provider must be one of static, nmea, got %q", c.Position.Provider))
	}

	if c.Map.Icon.IconURL == "" {
		errs = append(errs, "map.icon.icon_url is required")
	}

	if c.Map.DefaultCenter != nil && len(c.Map.DefaultCenter) != 2 {
		errs = append(errs, "map.default_center must be [longitude, latitude]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("Invalid configuration: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MapOptions returns the mapping.MapOptions for the configured map.
func (c *Config) MapOptions() *mapping.MapOptions {

	opts := c.Map.MapOptions

	if len(c.Map.DefaultCenter) == 2 {
		pt := orb.Point{c.Map.DefaultCenter[0], c.Map.DefaultCenter[1]}
		opts.DefaultCenter = &pt
	}

	return &opts
}
