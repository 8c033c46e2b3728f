// Package fixtures builds small JPEG images with hand-assembled EXIF segments for tests.
package fixtures

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// Rational is an unsigned EXIF RATIONAL value.
type Rational struct {
	Num uint32
	Den uint32
}

// DMS returns three whole-number rationals for a degrees, minutes, seconds triple.
func DMS(d uint32, m uint32, s uint32) []Rational {
	return []Rational{{d, 1}, {m, 1}, {s, 1}}
}

// Tags are the EXIF values written in to a fixture. Empty strings and nil slices are omitted.
type Tags struct {
	LatitudeRef  string
	Latitude     []Rational
	LongitudeRef string
	Longitude    []Rational
	DateTime     string

	// If non-zero, the component count recorded for GPSLatitude regardless of len(Latitude).
	LatitudeCount uint32
}

const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5

	tagDateTime     = 0x0132
	tagGPSPointer   = 0x8825
	tagLatitudeRef  = 0x0001
	tagLatitude     = 0x0002
	tagLongitudeRef = 0x0003
	tagLongitude    = 0x0004
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Plain returns a small baseline JPEG with no EXIF segment.
func Plain() ([]byte, error) {

	im := image.NewRGBA(image.Rect(0, 0, 8, 8))

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			im.Set(x, y, color.RGBA{34, uint8(100 + x*10), uint8(40 + y*5), 255})
		}
	}

	var buf bytes.Buffer

	err := jpeg.Encode(&buf, im, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to encode JPEG, %w", err)
	}

	return buf.Bytes(), nil
}

// JPEG returns a small JPEG with an APP1 EXIF segment containing 'tags'.
func JPEG(tags *Tags) ([]byte, error) {

	body, err := Plain()

	if err != nil {
		return nil, err
	}

	tiff := TIFF(tags)

	seg_len := 2 + 6 + len(tiff)

	if seg_len > 0xFFFF {
		return nil, fmt.Errorf("EXIF segment too large")
	}

	var buf bytes.Buffer

	buf.Write(body[:2]) // SOI
	buf.Write([]byte{0xFF, 0xE1})
	binary.Write(&buf, binary.BigEndian, uint16(seg_len))
	buf.Write([]byte("Exif\x00\x00"))
	buf.Write(tiff)
	buf.Write(body[2:])

	return buf.Bytes(), nil
}

// TIFF returns a little-endian TIFF structure with an IFD0 and, if any GPS values are set, a GPS IFD.
func TIFF(tags *Tags) []byte {

	gps := make([]entry, 0)

	if tags.LatitudeRef != "" {
		gps = append(gps, ascii(tagLatitudeRef, tags.LatitudeRef))
	}

	if tags.Latitude != nil {

		e := rationals(tagLatitude, tags.Latitude)

		if tags.LatitudeCount != 0 {
			e.count = tags.LatitudeCount
		}

		gps = append(gps, e)
	}

	if tags.LongitudeRef != "" {
		gps = append(gps, ascii(tagLongitudeRef, tags.LongitudeRef))
	}

	if tags.Longitude != nil {
		gps = append(gps, rationals(tagLongitude, tags.Longitude))
	}

	ifd0 := make([]entry, 0)

	if tags.DateTime != "" {
		ifd0 = append(ifd0, ascii(tagDateTime, tags.DateTime))
	}

	if len(gps) > 0 {
		ifd0 = append(ifd0, long(tagGPSPointer, 0))
	}

	const ifd0_offset = 8

	enc_ifd0 := encodeIFD(ifd0, ifd0_offset)

	var enc_gps []byte

	if len(gps) > 0 {

		gps_offset := uint32(ifd0_offset + len(enc_ifd0))

		ifd0[len(ifd0)-1] = long(tagGPSPointer, gps_offset)
		enc_ifd0 = encodeIFD(ifd0, ifd0_offset)

		enc_gps = encodeIFD(gps, gps_offset)
	}

	var buf bytes.Buffer

	buf.Write([]byte("II"))
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(ifd0_offset))
	buf.Write(enc_ifd0)
	buf.Write(enc_gps)

	return buf.Bytes()
}

func encodeIFD(entries []entry, offset uint32) []byte {

	dir_len := 2 + 12*len(entries) + 4
	data_offset := offset + uint32(dir_len)

	dir := make([]byte, dir_len)
	data := make([]byte, 0)

	binary.LittleEndian.PutUint16(dir[0:], uint16(len(entries)))

	for i, e := range entries {

		p := 2 + 12*i

		binary.LittleEndian.PutUint16(dir[p:], e.tag)
		binary.LittleEndian.PutUint16(dir[p+2:], e.typ)
		binary.LittleEndian.PutUint32(dir[p+4:], e.count)

		if len(e.data) <= 4 {
			copy(dir[p+8:p+12], e.data)
			continue
		}

		binary.LittleEndian.PutUint32(dir[p+8:], data_offset+uint32(len(data)))
		data = append(data, e.data...)

		// values start on a word boundary
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
	}

	// the next-IFD offset is left as zero

	return append(dir, data...)
}

func ascii(tag uint16, s string) entry {

	b := append([]byte(s), 0x00)

	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func long(tag uint16, v uint32) entry {

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return entry{tag: tag, typ: typeLong, count: 1, data: b}
}

func rationals(tag uint16, values []Rational) entry {

	b := make([]byte, 8*len(values))

	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*8:], v.Num)
		binary.LittleEndian.PutUint32(b[i*8+4:], v.Den)
	}

	return entry{tag: tag, typ: typeRational, count: uint32(len(values)), data: b}
}
