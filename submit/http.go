package submit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// The filename assigned to the multipart "file" field.
const UploadFilename = "image.jpg"

// HTTPTransactor uploads payloads as a single multipart/form-data POST request.
type HTTPTransactor struct {
	// The upload endpoint.
	URL        string
	HTTPClient *http.Client
}

// NewHTTPTransactor returns a HTTPTransactor for 'url'.
func NewHTTPTransactor(url string) *HTTPTransactor {

	t := &HTTPTransactor{
		URL: strings.TrimSpace(url),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	return t
}

func (t *HTTPTransactor) Name() string {
	return "http"
}

// Submit posts 'p' to the transactor's URL. Any non-2xx response is a failure.
func (t *HTTPTransactor) Submit(ctx context.Context, p *Payload) error {

	body, content_type, err := EncodeMultipart(ctx, p)

	if err != nil {
		return Failure("Failed to build upload payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, body)

	if err != nil {
		return Failure("Failed to create upload request", err)
	}

	req.Header.Set("Content-Type", content_type)

	rsp, err := t.HTTPClient.Do(req)

	if err != nil {
		return Failure("Failed to upload observation", err)
	}

	defer rsp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(rsp.Body, 1<<16))

	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return Failure(fmt.Sprintf("Upload endpoint returned %d", rsp.StatusCode), nil)
	}

	return nil
}

// EncodeMultipart writes 'p' as multipart/form-data with the fields file, description,
// speciesName, timestamp, latitude and longitude. It returns the body and its content type.
func EncodeMultipart(ctx context.Context, p *Payload) (*bytes.Buffer, string, error) {

	if p.Image == nil {
		return nil, "", fmt.Errorf("Payload is missing image")
	}

	r, err := p.Image.Open(ctx)

	if err != nil {
		return nil, "", fmt.Errorf("Failed to open image, %w", err)
	}

	defer r.Close()

	buf := new(bytes.Buffer)
	wr := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, UploadFilename))
	h.Set("Content-Type", p.Image.MimeType())

	part, err := wr.CreatePart(h)

	if err != nil {
		return nil, "", fmt.Errorf("Failed to create file part, %w", err)
	}

	_, err = io.Copy(part, r)

	if err != nil {
		return nil, "", fmt.Errorf("Failed to copy image, %w", err)
	}

	for _, kv := range p.Fields() {

		err := wr.WriteField(kv[0], kv[1])

		if err != nil {
			return nil, "", fmt.Errorf("Failed to write %s field, %w", kv[0], err)
		}
	}

	err = wr.Close()

	if err != nil {
		return nil, "", fmt.Errorf("Failed to close multipart writer, %w", err)
	}

	return buf, wr.FormDataContentType(), nil
}
