package geotag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedExif is returned by CheckTIFF for EXIF data that cannot be decoded safely.
var ErrMalformedExif = errors.New("Malformed EXIF data")

var exif_header = []byte("Exif\x00\x00")

// The number of directories a TIFF structure may contain, across the IFD chain and sub-IFDs.
const maxDirectories = 32

// Sizes, in bytes, of the TIFF field types.
var type_sizes = map[uint16]uint64{
	1:  1, // BYTE
	2:  1, // ASCII
	3:  2, // SHORT
	4:  4, // LONG
	5:  8, // RATIONAL
	6:  1, // SBYTE
	7:  1, // UNDEFINED
	8:  2, // SSHORT
	9:  4, // SLONG
	10: 8, // SRATIONAL
	11: 4, // FLOAT
	12: 8, // DOUBLE
}

// Tags whose value is the offset of a sub-IFD: Exif, GPS and Interoperability.
var pointer_tags = map[uint16]bool{
	0x8769: true,
	0x8825: true,
	0xA005: true,
}

// ExifSegment returns the TIFF structure from the first APP1 "Exif" segment of the JPEG 'body'. It
// returns false if 'body' is not a JPEG or has no such segment before the image data.
func ExifSegment(body []byte) ([]byte, bool) {

	if len(body) < 4 || body[0] != 0xFF || body[1] != 0xD8 {
		return nil, false
	}

	i := 2

	for i+4 <= len(body) {

		if body[i] != 0xFF {
			return nil, false
		}

		marker := body[i+1]

		switch {
		case marker == 0xFF:
			// fill byte
			i += 1
			continue
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			i += 2
			continue
		case marker == 0xD9 || marker == 0xDA:
			// end of image, start of scan
			return nil, false
		}

		seg_len := int(binary.BigEndian.Uint16(body[i+2:]))

		if seg_len < 2 || i+2+seg_len > len(body) {
			return nil, false
		}

		data := body[i+4 : i+2+seg_len]

		if marker == 0xE1 && bytes.HasPrefix(data, exif_header) {
			return data[len(exif_header):], true
		}

		i += 2 + seg_len
	}

	return nil, false
}

// CheckTIFF walks every directory in the TIFF structure 'tiff' that an EXIF decoder would visit
// (the IFD chain plus the Exif, GPS and Interoperability sub-IFDs) and returns ErrMalformedExif if
// any directory or value lies outside 'tiff', if a field has an unknown type or if a directory is
// reached twice.
func CheckTIFF(tiff []byte) error {

	size := uint64(len(tiff))

	if size < 8 {
		return fmt.Errorf("%w, truncated header", ErrMalformedExif)
	}

	var order binary.ByteOrder

	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w, invalid byte order", ErrMalformedExif)
	}

	if order.Uint16(tiff[2:]) != 42 {
		return fmt.Errorf("%w, invalid magic number", ErrMalformedExif)
	}

	type dir struct {
		offset uint32
		chain  bool
	}

	queue := []dir{
		{offset: order.Uint32(tiff[4:]), chain: true},
	}

	seen := make(map[uint32]bool)

	for len(queue) > 0 {

		d := queue[0]
		queue = queue[1:]

		if seen[d.offset] {
			return fmt.Errorf("%w, directory at %d is referenced twice", ErrMalformedExif, d.offset)
		}

		seen[d.offset] = true

		if len(seen) > maxDirectories {
			return fmt.Errorf("%w, too many directories", ErrMalformedExif)
		}

		start := uint64(d.offset)

		if start+2 > size {
			return fmt.Errorf("%w, directory at %d is out of bounds", ErrMalformedExif, d.offset)
		}

		count := uint64(order.Uint16(tiff[start:]))
		end := start + 2 + count*12

		// the 4 byte offset of the next directory follows the entries
		if end+4 > size {
			return fmt.Errorf("%w, directory at %d is truncated", ErrMalformedExif, d.offset)
		}

		for i := uint64(0); i < count; i++ {

			p := start + 2 + i*12

			tag := order.Uint16(tiff[p:])
			typ := order.Uint16(tiff[p+2:])
			n := uint64(order.Uint32(tiff[p+4:]))

			type_size, ok := type_sizes[typ]

			if !ok {
				return fmt.Errorf("%w, tag %#04x has unknown type %d", ErrMalformedExif, tag, typ)
			}

			val_len := n * type_size

			if val_len > size {
				return fmt.Errorf("%w, tag %#04x claims %d bytes", ErrMalformedExif, tag, val_len)
			}

			val_offset := p + 8

			if val_len > 4 {

				val_offset = uint64(order.Uint32(tiff[p+8:]))

				if val_offset+val_len > size {
					return fmt.Errorf("%w, value of tag %#04x is out of bounds", ErrMalformedExif, tag)
				}
			}

			if !pointer_tags[tag] || n == 0 {
				continue
			}

			// signed offsets are read unsigned so that negative values fall out of bounds
			switch typ {
			case 1, 6:
				queue = append(queue, dir{offset: uint32(tiff[val_offset])})
			case 3, 8:
				queue = append(queue, dir{offset: uint32(order.Uint16(tiff[val_offset:]))})
			case 4, 9:
				queue = append(queue, dir{offset: order.Uint32(tiff[val_offset:])})
			default:
				// not followed by the decoder
			}
		}

		if d.chain {

			next := order.Uint32(tiff[end:])

			if next != 0 {
				queue = append(queue, dir{offset: next, chain: true})
			}
		}
	}

	return nil
}

// exifJPEG wraps 'tiff' in a minimal JPEG holding only an APP1 "Exif" segment, so that the decoder
// never reads past the checked structure.
func exifJPEG(tiff []byte) []byte {

	seg_len := 2 + len(exif_header) + len(tiff)

	buf := make([]byte, 0, 4+seg_len)
	buf = append(buf, 0xFF, 0xD8, 0xFF, 0xE1, byte(seg_len>>8), byte(seg_len))
	buf = append(buf, exif_header...)
	buf = append(buf, tiff...)

	return buf
}
