package remove

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sfomuseum/go-specimen-capture/internal/fixtures"
	"github.com/sfomuseum/go-specimen-capture/source"
	"github.com/sfomuseum/go-specimen-capture/submit"
	"github.com/tidwall/gjson"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

type fixedProvider struct {
	id int64
}

func (pr *fixedProvider) NewID(ctx context.Context) (int64, error) {
	return pr.id, nil
}

func store(t *testing.T, bucket *blob.Bucket, writer_uri string, id int64) *submit.BucketResult {

	t.Helper()

	ctx := context.Background()

	body, err := fixtures.Plain()

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	tr, err := submit.NewBucketTransactor(ctx, &submit.BucketTransactorOptions{
		Bucket:     bucket,
		WriterURI:  writer_uri,
		IDProvider: &fixedProvider{id: id},
	})

	if err != nil {
		t.Fatalf("Failed to create transactor, %v", err)
	}

	p := &submit.Payload{
		ID:             1,
		Image:          source.Bytes("specimen.jpg", body),
		SpeciesName:    "Shorea robusta",
		Timestamp:      "2024-01-01 10:00",
		Latitude:       27.7,
		Longitude:      85.3,
		PositionSource: submit.PositionSourceExif,
	}

	rsp, err := tr.SubmitWithResult(ctx, p)

	if err != nil {
		t.Fatalf("Failed to store observation %d, %v", id, err)
	}

	return rsp
}

func keys(t *testing.T, bucket *blob.Bucket) map[string]bool {

	t.Helper()

	ctx := context.Background()
	found := make(map[string]bool)

	iter := bucket.List(nil)

	for {

		obj, err := iter.Next(ctx)

		if err == io.EOF {
			break
		}

		if err != nil {
			t.Fatalf("Failed to list bucket, %v", err)
		}

		found[obj.Key] = true
	}

	return found
}

func TestRemove(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	root := t.TempDir()
	uri := "fs://" + root

	removed := store(t, bucket, uri, 100)
	kept := store(t, bucket, uri, 1000)

	r, err := NewRemoval(&RemovalOptions{
		ReaderURI: uri,
		WriterURI: uri,
		Bucket:    bucket,
	})

	if err != nil {
		t.Fatalf("Failed to create removal, %v", err)
	}

	err = r.Remove(ctx, &RemovalRequest{Id: 100})

	if err != nil {
		t.Fatalf("Failed to remove observation, %v", err)
	}

	found := keys(t, bucket)

	if found[removed.ImagePath] {
		t.Errorf("Expected %s to be deleted", removed.ImagePath)
	}

	if !found[kept.ImagePath] {
		t.Errorf("Expected %s to be kept", kept.ImagePath)
	}

	body, err := os.ReadFile(filepath.Join(root, removed.FeaturePath))

	if err != nil {
		t.Fatalf("Failed to read feature, %v", err)
	}

	if gjson.GetBytes(body, "properties.mz:is_current").Int() != 0 {
		t.Errorf("Expected feature to be deprecated")
	}

	if !gjson.GetBytes(body, "properties.edtf:deprecated").Exists() {
		t.Errorf("Missing edtf:deprecated")
	}

	if gjson.GetBytes(body, "properties.wof:name").String() != "Shorea robusta" {
		t.Errorf("Unexpected name: %s", gjson.GetBytes(body, "properties.wof:name").Raw)
	}

	other, err := os.ReadFile(filepath.Join(root, kept.FeaturePath))

	if err != nil {
		t.Fatalf("Failed to read feature, %v", err)
	}

	if gjson.GetBytes(other, "properties.edtf:deprecated").Exists() {
		t.Errorf("Expected %s to be untouched", kept.FeaturePath)
	}
}

func TestRemoveDryrun(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	root := t.TempDir()
	uri := "fs://" + root

	rsp := store(t, bucket, uri, 100)

	r, err := NewRemoval(&RemovalOptions{
		ReaderURI: uri,
		WriterURI: uri,
		Bucket:    bucket,
		Dryrun:    true,
	})

	if err != nil {
		t.Fatalf("Failed to create removal, %v", err)
	}

	err = r.Remove(ctx, &RemovalRequest{Id: 100})

	if err != nil {
		t.Fatalf("Failed to remove observation, %v", err)
	}

	if !keys(t, bucket)[rsp.ImagePath] {
		t.Errorf("Expected dryrun to keep %s", rsp.ImagePath)
	}

	body, err := os.ReadFile(filepath.Join(root, rsp.FeaturePath))

	if err != nil {
		t.Fatalf("Failed to read feature, %v", err)
	}

	if gjson.GetBytes(body, "properties.edtf:deprecated").Exists() {
		t.Errorf("Expected dryrun to leave feature untouched")
	}
}

func TestRemoveMissing(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	uri := "fs://" + t.TempDir()

	r, err := NewRemoval(&RemovalOptions{
		ReaderURI: uri,
		WriterURI: uri,
		Bucket:    bucket,
	})

	if err != nil {
		t.Fatalf("Failed to create removal, %v", err)
	}

	err = r.Remove(ctx, &RemovalRequest{Id: 100}, &RemovalRequest{Id: 200})

	if err == nil {
		t.Fatalf("Expected removal of missing observations to fail")
	}
}

func TestDeprecateFeature(t *testing.T) {

	body := []byte(`{"type":"Feature","properties":{"wof:id":100,"mz:is_current":1,"media:properties":{"sizes":{"o":{"secret":"abc"}}}}}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	body, err := DeprecateFeature(body, now)

	if err != nil {
		t.Fatalf("Failed to deprecate feature, %v", err)
	}

	if gjson.GetBytes(body, "properties.edtf:deprecated").String() != "2024-03-01" {
		t.Errorf("Unexpected edtf:deprecated: %s", gjson.GetBytes(body, "properties.edtf:deprecated").Raw)
	}

	if gjson.GetBytes(body, "properties.mz:is_current").Int() != 0 {
		t.Errorf("Unexpected mz:is_current")
	}

	if gjson.GetBytes(body, "properties.wof:lastmodified").Int() != now.Unix() {
		t.Errorf("Unexpected wof:lastmodified")
	}

	if gjson.GetBytes(body, "properties.media:properties.sizes").Exists() {
		t.Errorf("Expected image sizes to be removed")
	}

	if gjson.GetBytes(body, "properties.wof:id").Int() != 100 {
		t.Errorf("Unexpected wof:id")
	}
}
