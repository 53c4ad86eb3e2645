// Package jpg inspects JPEG files and serves as a conversion source.
// There is no compress path: re-encoding JPEG generation-loss-free needs
// a different toolchain, so the operation is deliberately unsupported.
package jpg

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Processor implements core.Processor for JPEG.
type Processor struct{}

// New returns the JPEG processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Formats() []core.Format { return []core.Format{core.FmtJPEG} }

func (p *Processor) Operations() []core.Operation {
	return []core.Operation{core.OpConvert, core.OpInspect}
}

// Process always fails: JPEG is a conversion source and inspection
// target only.
func (p *Processor) Process(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	return nil, core.Errorf(core.KindUnsupportedOperation, core.FmtJPEG,
		"JPEG does not support in-place compression; convert to webp or png instead")
}

// segment names for the markers worth reporting.
var segmentNames = map[byte]string{
	0xE0: "APP0 (JFIF)",
	0xE1: "APP1 (EXIF/XMP)",
	0xE2: "APP2 (ICC)",
	0xED: "APP13 (IPTC)",
	0xEE: "APP14 (Adobe)",
	0xFE: "COM",
}

// Inspect walks the segment chain up to SOS, reports the frame header
// and decodes EXIF when an APP1 segment carries it.
func (p *Processor) Inspect(data []byte) (*core.Metadata, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, core.Errorf(core.KindDecode, core.FmtJPEG, "missing SOI marker")
	}
	m := &core.Metadata{Format: core.FmtJPEG, FileSize: len(data)}

	i := 2
	for i+2 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		// Markers may be preceded by any number of 0xFF fill bytes.
		for i+2 <= len(data) && data[i+1] == 0xFF {
			i++
		}
		if i+4 > len(data) {
			break
		}
		marker := data[i+1]
		if marker == 0xDA { // start of scan, entropy data follows
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(data) {
			return nil, core.Errorf(core.KindDecode, core.FmtJPEG, "truncated segment at offset %d", i)
		}
		payload := data[i+4 : i+2+segLen]

		switch {
		case marker == 0xC0 || marker == 0xC2:
			if len(payload) >= 5 {
				mode := "baseline"
				if marker == 0xC2 {
					mode = "progressive"
				}
				h := binary.BigEndian.Uint16(payload[1:3])
				w := binary.BigEndian.Uint16(payload[3:5])
				m.Add("JPEG", "Dimensions", fmt.Sprintf("%d x %d", w, h))
				m.Add("JPEG", "Mode", mode)
			}
		case marker == 0xE1 && bytes.HasPrefix(payload, []byte("Exif\x00\x00")):
			if x, err := exif.Decode(bytes.NewReader(payload[6:])); err == nil {
				x.Walk(exifWalker{m: m})
			}
		case marker == 0xFE:
			m.Add("JPEG", "Comment", string(payload))
		}
		if name, ok := segmentNames[marker]; ok {
			m.Add("JPEG Segments", name, fmt.Sprintf("%d bytes", len(payload)))
		}
		i += 2 + segLen
	}
	return m, nil
}

type exifWalker struct {
	m *core.Metadata
}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	w.m.Add("EXIF", string(name), val)
	return nil
}
