package common

import (
	"context"
	"strings"
	"testing"

	"github.com/sfomuseum/go-specimen-capture/internal/fixtures"
	"github.com/sfomuseum/go-specimen-capture/source"
)

func TestFingerprint(t *testing.T) {

	ctx := context.Background()

	h := source.Bytes("hello.jpg", []byte("hello"))

	fp, err := Fingerprint(ctx, h)

	if err != nil {
		t.Fatalf("Failed to fingerprint, %v", err)
	}

	if fp != "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" {
		t.Errorf("Unexpected fingerprint: %s", fp)
	}

	fp2, err := FingerprintReader(strings.NewReader("hello"))

	if err != nil {
		t.Fatalf("Failed to fingerprint reader, %v", err)
	}

	if fp2 != fp {
		t.Errorf("Expected handle and reader fingerprints to match, got %s and %s", fp, fp2)
	}
}

func TestImageHashes(t *testing.T) {

	ctx := context.Background()

	body, err := fixtures.Plain()

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	hashes, err := ImageHashes(ctx, source.Bytes("plain.jpg", body))

	if err != nil {
		t.Fatalf("Failed to hash image, %v", err)
	}

	if len(hashes) != len(ImageHashApproaches) {
		t.Fatalf("Expected %d hashes, got %d", len(ImageHashApproaches), len(hashes))
	}

	for i, a := range []string{"avg", "diff"} {

		if hashes[i].Approach != a {
			t.Errorf("Expected approach %s at %d, got %s", a, i, hashes[i].Approach)
		}

		if hashes[i].Hash == "" {
			t.Errorf("Empty hash for %s", a)
		}
	}
}

func TestImageHashesUndecodable(t *testing.T) {

	_, err := ImageHashes(context.Background(), source.Bytes("broken.jpg", []byte("nope")))

	if err == nil {
		t.Fatalf("Expected undecodable image to fail")
	}
}

func TestClients(t *testing.T) {

	ctx := context.Background()
	root := t.TempDir()

	_, err := NewWriter(ctx, "fs://"+root)

	if err != nil {
		t.Fatalf("Failed to create writer, %v", err)
	}

	_, err = NewReader(ctx, "fs://"+root)

	if err != nil {
		t.Fatalf("Failed to create reader, %v", err)
	}

	_, err = NewReader(ctx, "bogus://")

	if err == nil {
		t.Fatalf("Expected unknown reader scheme to fail")
	}
}
