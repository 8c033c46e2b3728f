package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func writeConfig(t *testing.T, body string) string {

	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")

	err := os.WriteFile(path, []byte(body), 0644)

	if err != nil {
		t.Fatalf("Failed to write config, %v", err)
	}

	return path
}

func TestLoadMissingFile(t *testing.T) {

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	if err != nil {
		t.Fatalf("Failed to load defaults, %v", err)
	}

	if cfg.Submit.Transactor != TransactorJournal || cfg.Submit.Journal.Path != "observations.db" {
		t.Errorf("Unexpected defaults: %+v", cfg.Submit)
	}

	if cfg.Map.Zoom != 13 || cfg.Map.Icon.IconURL == "" {
		t.Errorf("Unexpected map defaults: %+v", cfg.Map)
	}
}

func TestLoad(t *testing.T) {

	path := writeConfig(t, `
logging:
  level: debug
  format: json
submit:
  transactor: bucket
  bucket:
    bucket_uri: mem://
    writer_uri: fs:///tmp/specimens/{repo}
    repo: specimens
    lookup_uris:
      - file:///tmp/specimens
    public_read: true
position:
  provider: nmea
  nmea:
    port_path: /dev/ttyUSB0
    baud_rate: 4800
map:
  zoom: 10
  icon:
    icon_url: /static/marker.png
  default_center: [106.8, -6.2]
`)

	cfg, err := Load(path)

	if err != nil {
		t.Fatalf("Failed to load config, %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}

	b := cfg.Submit.Bucket

	if cfg.Submit.Transactor != TransactorBucket || b.BucketURI != "mem://" || b.Repo != "specimens" || !b.PublicRead {
		t.Errorf("Unexpected bucket config: %+v", b)
	}

	if len(b.LookupURIs) != 1 || !b.HashImages {
		t.Errorf("Expected lookup URIs and default hash_images, got %+v", b)
	}

	if cfg.Position.NMEA.PortPath != "/dev/ttyUSB0" || cfg.Position.NMEA.BaudRate != 4800 || cfg.Position.NMEA.MaxSentences != 20 {
		t.Errorf("Unexpected NMEA config: %+v", cfg.Position.NMEA)
	}

	opts := cfg.MapOptions()

	if opts.Zoom != 10 || opts.Icon.IconURL != "/static/marker.png" || opts.Icon.ShadowURL == "" {
		t.Errorf("Unexpected map options: %+v", opts)
	}

	if opts.TileURL == "" {
		t.Errorf("Expected default tile URL to be kept")
	}

	if opts.DefaultCenter == nil || *opts.DefaultCenter != (orb.Point{106.8, -6.2}) {
		t.Errorf("Unexpected default center: %v", opts.DefaultCenter)
	}
}

func TestLoadEnv(t *testing.T) {

	t.Setenv("SPECIMEN_TRANSACTOR", "http")
	t.Setenv("SPECIMEN_SUBMIT_URL", "https://example.org/observations")
	t.Setenv("SPECIMEN_LOG_LEVEL", "warn")

	cfg, err := Load("")

	if err != nil {
		t.Fatalf("Failed to load config, %v", err)
	}

	if cfg.Submit.Transactor != TransactorHTTP || cfg.Submit.HTTP.URL != "https://example.org/observations" {
		t.Errorf("Expected environment overrides, got %+v", cfg.Submit)
	}

	if cfg.Logging.Level != "warn" {
		t.Errorf("Unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestLoadInvalid(t *testing.T) {

	tests := map[string]string{
		"transactor": "submit:\n  transactor: carrier-pigeon\n",
		"http url":   "submit:\n  transactor: http\n",
		"bucket":     "submit:\n  transactor: bucket\n",
		"provider":   "position:\n  provider: compass\n",
		"nmea port":  "position:\n  provider: nmea\n",
		"icon":       "map:\n  icon:\n    icon_url: \"\"\n",
		"center":     "map:\n  default_center: [1]\n",
		"yaml":       "submit: [\n",
	}

	for name, body := range tests {

		t.Run(name, func(t *testing.T) {

			_, err := Load(writeConfig(t, body))

			if err == nil {
				t.Errorf("Expected config to be rejected")
			}
		})
	}
}

func TestValidateCollectsErrors(t *testing.T) {

	cfg := Default()
	cfg.Submit.Transactor = TransactorHTTP
	cfg.Position.Provider = ProviderNMEA

	err := cfg.Validate()

	if err == nil {
		t.Fatalf("Expected validation to fail")
	}

	for _, s := range []string{"submit.http.url", "position.nmea.port_path"} {

		if !strings.Contains(err.Error(), s) {
			t.Errorf("Expected error to mention %s, got %v", s, err)
		}
	}
}
