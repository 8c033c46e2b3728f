package geotag

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/sfomuseum/go-specimen-capture/internal/fixtures"
)

func TestExifSegment(t *testing.T) {

	body, err := fixtures.JPEG(completeTags())

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	tiff, ok := ExifSegment(body)

	if !ok {
		t.Fatalf("Expected EXIF segment")
	}

	if !bytes.Equal(tiff, fixtures.TIFF(completeTags())) {
		t.Errorf("Unexpected TIFF structure")
	}

	plain, err := fixtures.Plain()

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	_, ok = ExifSegment(plain)

	if ok {
		t.Errorf("Expected no EXIF segment in plain JPEG")
	}

	_, ok = ExifSegment([]byte("\x89PNG\r\n\x1a\n"))

	if ok {
		t.Errorf("Expected no EXIF segment in PNG")
	}

	// segment length runs past the end of the body
	_, ok = ExifSegment([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x40, 0x00, 'E', 'x'})

	if ok {
		t.Errorf("Expected no EXIF segment for truncated body")
	}
}

func TestCheckTIFF(t *testing.T) {

	err := CheckTIFF(fixtures.TIFF(completeTags()))

	if err != nil {
		t.Fatalf("Expected valid TIFF, %v", err)
	}

	tests := map[string]func([]byte) []byte{
		"truncated header": func(b []byte) []byte {
			return b[:6]
		},
		"byte order": func(b []byte) []byte {
			copy(b, "XX")
			return b
		},
		"magic number": func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[2:], 43)
			return b
		},
		"directory out of bounds": func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], uint32(len(b)+100))
			return b
		},
		"truncated directory": func(b []byte) []byte {
			return b[:20]
		},
		"directory cycle": func(b []byte) []byte {
			n := binary.LittleEndian.Uint16(b[8:])
			binary.LittleEndian.PutUint32(b[8+2+12*int(n):], 8)
			return b
		},
		"unknown type": func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[8+2+2:], 99)
			return b
		},
		"value out of bounds": func(b []byte) []byte {
			// IFD0's first entry is DateTime, stored at an offset
			binary.LittleEndian.PutUint32(b[8+2+8:], uint32(len(b)-4))
			return b
		},
		"pointer out of bounds": func(b []byte) []byte {
			// IFD0's second entry is the GPS pointer
			binary.LittleEndian.PutUint32(b[8+2+12+8:], 0xFFFFFF00)
			return b
		},
	}

	for label, corrupt := range tests {

		b := corrupt(fixtures.TIFF(completeTags()))

		err := CheckTIFF(b)

		if !errors.Is(err, ErrMalformedExif) {
			t.Errorf("Expected ErrMalformedExif for %s, got %v", label, err)
		}
	}
}

func TestCheckTIFFOversizedTagCount(t *testing.T) {

	tags := completeTags()
	tags.LatitudeCount = 0x20000001

	err := CheckTIFF(fixtures.TIFF(tags))

	if !errors.Is(err, ErrMalformedExif) {
		t.Errorf("Expected ErrMalformedExif, got %v", err)
	}
}

func TestExtractCorruptExif(t *testing.T) {

	ctx := context.Background()

	body, err := fixtures.JPEG(completeTags())

	if err != nil {
		t.Fatalf("Failed to build fixture, %v", err)
	}

	tiff, ok := ExifSegment(body)

	if !ok {
		t.Fatalf("Expected EXIF segment")
	}

	start := bytes.Index(body, tiff)
	end := start + len(tiff)

	for i := start; i < end; i++ {

		for _, v := range []byte{0x00, 0x7F, 0xFF} {

			if body[i] == v {
				continue
			}

			corrupt := bytes.Clone(body)
			corrupt[i] = v

			_, err := Extract(ctx, bytes.NewReader(corrupt))

			if err != nil {
				t.Fatalf("Expected no error with byte %d set to %#x, got %v", i, v, err)
			}
		}
	}
}
