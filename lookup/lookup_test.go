package lookup

import (
	"context"
	"strings"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

func writeFeatures(t *testing.T, bucket *blob.Bucket, features map[string]string) {

	t.Helper()

	ctx := context.Background()

	for k, body := range features {

		err := bucket.WriteAll(ctx, k, []byte(body), nil)

		if err != nil {
			t.Fatalf("Failed to write %s, %v", k, err)
		}
	}
}

func TestNewLookupMap(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	writeFeatures(t, bucket, map[string]string{
		"101/1011.geojson": `{"properties":{"wof:id":1011,"media:fingerprint":"abc","media:imagehash_avg":"a:01"}}`,
		"102/1022.geojson": `{"properties":{"wof:id":1022,"media:fingerprint":"def"}}`,
		"103/1033.geojson": `{"properties":{"media:fingerprint":"ghi"}}`,
		"101/1011_x.jpg":   `not a feature`,
	})

	lu_bucket, err := NewBlobLookerUpperWithBucket(ctx, bucket)

	if err != nil {
		t.Fatalf("Failed to create looker upper, %v", err)
	}

	funcs := []AppendLookupFunc{
		FingerprintAppendLookupFunc,
		ImageHashAppendLookupFunc,
	}

	lu, err := NewLookupMap(ctx, []LookerUpper{lu_bucket}, funcs)

	if err != nil {
		t.Fatalf("Failed to build lookup map, %v", err)
	}

	expected := map[string]int64{
		"abc":  1011,
		"def":  1022,
		"a:01": 1011,
	}

	for k, id := range expected {

		v, ok := lu.Load(k)

		if !ok {
			t.Errorf("Missing lookup key %s", k)
			continue
		}

		if v.(int64) != id {
			t.Errorf("Unexpected ID for %s: %v", k, v)
		}
	}

	_, ok := lu.Load("ghi")

	if ok {
		t.Errorf("Did not expect feature without wof:id to be indexed")
	}
}

func TestNewLookupMapConflict(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	writeFeatures(t, bucket, map[string]string{
		"1.geojson": `{"properties":{"wof:id":1,"media:fingerprint":"abc"}}`,
		"2.geojson": `{"properties":{"wof:id":2,"media:fingerprint":"abc"}}`,
	})

	lu_bucket, _ := NewBlobLookerUpperWithBucket(ctx, bucket)

	_, err := NewLookupMap(ctx, []LookerUpper{lu_bucket}, []AppendLookupFunc{FingerprintAppendLookupFunc})

	if err == nil {
		t.Fatalf("Expected conflicting fingerprints to fail")
	}

	if !strings.Contains(err.Error(), "abc") {
		t.Errorf("Expected error to name the fingerprint, got %v", err)
	}
}
