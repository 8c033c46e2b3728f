package submit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sfomuseum/go-specimen-capture/source"
)

func testPayload() *Payload {

	return &Payload{
		ID:             7,
		Image:          source.Bytes("specimen.jpg", []byte("jpeg-bytes")),
		Description:    "tall tree near river",
		SpeciesName:    "Dipterocarpus",
		Timestamp:      "2024-01-01 10:00",
		Latitude:       -3.745,
		Longitude:      -38.52305555555556,
		PositionSource: PositionSourceExif,
	}
}

func TestHTTPTransactorSubmit(t *testing.T) {

	var calls int32
	got := make(map[string]string)
	var got_file []byte
	var got_filename string
	var got_content_type string

	handler := func(rsp http.ResponseWriter, req *http.Request) {

		atomic.AddInt32(&calls, 1)

		if req.Method != http.MethodPost {
			http.Error(rsp, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		err := req.ParseMultipartForm(1 << 20)

		if err != nil {
			http.Error(rsp, err.Error(), http.StatusBadRequest)
			return
		}

		for k, v := range req.MultipartForm.Value {
			got[k] = v[0]
		}

		fh, ok := req.MultipartForm.File["file"]

		if !ok || len(fh) != 1 {
			http.Error(rsp, "Missing file", http.StatusBadRequest)
			return
		}

		got_filename = fh[0].Filename
		got_content_type = fh[0].Header.Get("Content-Type")

		f, err := fh[0].Open()

		if err != nil {
			http.Error(rsp, err.Error(), http.StatusInternalServerError)
			return
		}

		defer f.Close()

		got_file, _ = io.ReadAll(f)
		rsp.WriteHeader(http.StatusCreated)
	}

	srv := httptest.NewServer(http.HandlerFunc(handler))
	defer srv.Close()

	tr := NewHTTPTransactor(srv.URL)

	err := tr.Submit(context.Background(), testPayload())

	if err != nil {
		t.Fatalf("Failed to submit payload, %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected one request, got %d", calls)
	}

	expected := map[string]string{
		"description": "tall tree near river",
		"speciesName": "Dipterocarpus",
		"timestamp":   "2024-01-01 10:00",
		"latitude":    "-3.745000",
		"longitude":   "-38.523056",
	}

	for k, v := range expected {

		if got[k] != v {
			t.Errorf("Unexpected value for %s: %q (expected %q)", k, got[k], v)
		}
	}

	if got_filename != UploadFilename {
		t.Errorf("Unexpected filename: %s", got_filename)
	}

	if string(got_file) != "jpeg-bytes" {
		t.Errorf("Unexpected file body: %q", got_file)
	}

	if got_content_type != "image/jpeg" {
		t.Errorf("Unexpected file content type: %q", got_content_type)
	}
}

func TestHTTPTransactorUnknownTimestamp(t *testing.T) {

	var timestamp string

	srv := httptest.NewServer(http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {
		timestamp = req.FormValue("timestamp")
		rsp.WriteHeader(http.StatusOK)
	}))

	defer srv.Close()

	p := testPayload()
	p.Timestamp = "Unknown"
	p.PositionSource = PositionSourceDevice

	err := NewHTTPTransactor(srv.URL).Submit(context.Background(), p)

	if err != nil {
		t.Fatalf("Failed to submit payload, %v", err)
	}

	if timestamp != "Unknown" {
		t.Errorf("Unexpected timestamp: %q", timestamp)
	}
}

func TestHTTPTransactorErrorStatus(t *testing.T) {

	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(rsp, "Internal error", http.StatusInternalServerError)
	}))

	defer srv.Close()

	err := NewHTTPTransactor(srv.URL).Submit(context.Background(), testPayload())

	if !errors.Is(err, ErrSubmitTransport) {
		t.Fatalf("Expected ErrSubmitTransport, got %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected exactly one attempt, got %d", calls)
	}
}

func TestHTTPTransactorUnreachable(t *testing.T) {

	srv := httptest.NewServer(http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewHTTPTransactor(url).Submit(context.Background(), testPayload())

	if !errors.Is(err, ErrSubmitTransport) {
		t.Fatalf("Expected ErrSubmitTransport, got %v", err)
	}
}

func TestHTTPTransactorMissingImage(t *testing.T) {

	p := testPayload()
	p.Image = nil

	err := NewHTTPTransactor("http://localhost:0").Submit(context.Background(), p)

	if !errors.Is(err, ErrSubmitTransport) {
		t.Fatalf("Expected ErrSubmitTransport, got %v", err)
	}
}

type namedTransactor struct {
	err error
}

func (t *namedTransactor) Name() string {
	return "named"
}

func (t *namedTransactor) Submit(ctx context.Context, p *Payload) error {
	return t.err
}

func TestDoWrapsErrors(t *testing.T) {

	cause := errors.New("disk full")

	err := Do(context.Background(), &namedTransactor{err: cause}, testPayload())

	if !errors.Is(err, ErrSubmitTransport) {
		t.Errorf("Expected ErrSubmitTransport, got %v", err)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Expected underlying cause to be preserved, got %v", err)
	}

	err = Do(context.Background(), &namedTransactor{}, testPayload())

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
}
