// Package webp compresses and inspects WebP images. The lossy path
// re-encodes the bitstream at the configured quality; the lossless path
// rewrites the RIFF container only, so pixels are untouched. Both strip
// metadata chunks per the retention policy.
package webp

import (
	"bytes"
	"fmt"

	chai "github.com/chai2010/webp"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	xwebp "golang.org/x/image/webp"

	"github.com/ankit-chaubey/media-preparer/core"
)

// Processor implements core.Processor for WebP.
type Processor struct{}

// New returns the WebP processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Formats() []core.Format { return []core.Format{core.FmtWebP} }

func (p *Processor) Operations() []core.Operation {
	return []core.Operation{core.OpCompress, core.OpConvert, core.OpInspect}
}

// Process rewrites the container per the strip mode and, when lossy,
// additionally re-encodes still images at the configured quality. The
// smaller of the two outputs wins. Animated files only get the container
// rewrite: re-encoding would flatten them to their first frame.
func (p *Processor) Process(data []byte, cfg core.ProcessingConfig) ([]byte, error) {
	elems, err := parseRIFF(data)
	if err != nil {
		return nil, err
	}
	structural := serializeRIFF(applyStrip(elems, cfg.Strip))

	if !cfg.Lossy || animated(elems) {
		return structural, nil
	}
	reencoded, err := reencode(data, elems, cfg)
	if err != nil {
		return nil, err
	}
	if len(reencoded) < len(structural) {
		return reencoded, nil
	}
	return structural, nil
}

func animated(elems []core.ContainerElement) bool {
	for _, e := range elems {
		if e.Tag == "ANIM" || e.Tag == "ANMF" {
			return true
		}
	}
	return false
}

// reencode decodes the bitstream and encodes it again at the configured
// quality, then reassembles the container with whatever metadata the
// strip mode retains from the original.
func reencode(data []byte, orig []core.ContainerElement, cfg core.ProcessingConfig) ([]byte, error) {
	img, err := xwebp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.WrapError(core.KindDecode, core.FmtWebP, err)
	}
	var buf bytes.Buffer
	opt := &chai.Options{Quality: float32(cfg.Quality)}
	if err := chai.Encode(&buf, img, opt); err != nil {
		return nil, core.WrapError(core.KindEncode, core.FmtWebP, err)
	}

	var carried []core.ContainerElement
	if cfg.Strip == core.StripNone {
		for _, e := range orig {
			switch e.Tag {
			case "ICCP", "EXIF", "XMP ":
				carried = append(carried, e)
			}
		}
	}
	if len(carried) == 0 {
		return buf.Bytes(), nil
	}

	encoded, err := parseRIFF(buf.Bytes())
	if err != nil {
		return nil, core.WrapError(core.KindEncode, core.FmtWebP, err)
	}

	// Metadata chunks require the extended format: a VP8X up front
	// announcing every feature present in the file.
	var flags byte
	for _, e := range carried {
		switch e.Tag {
		case "ICCP":
			flags |= flagICC
		case "EXIF":
			flags |= flagEXIF
		case "XMP ":
			flags |= flagXMP
		}
	}
	for _, e := range encoded {
		if e.Tag == "ALPH" {
			flags |= flagAlpha
		}
		if e.Tag == "VP8X" && len(e.Payload) > 0 {
			flags |= e.Payload[0]
		}
	}
	bounds := img.Bounds()
	out := []core.ContainerElement{synthesizeVP8X(flags, bounds.Dx(), bounds.Dy())}
	for _, e := range carried {
		if e.Tag == "ICCP" {
			out = append(out, e)
		}
	}
	for _, e := range encoded {
		if e.Tag != "VP8X" {
			out = append(out, e)
		}
	}
	for _, e := range carried {
		if e.Tag != "ICCP" {
			out = append(out, e)
		}
	}
	return serializeRIFF(out), nil
}

// Inspect lists the container chunks with their criticality, the image
// properties, and any embedded EXIF fields.
func (p *Processor) Inspect(data []byte) (*core.Metadata, error) {
	elems, err := parseRIFF(data)
	if err != nil {
		return nil, err
	}
	m := &core.Metadata{Format: core.FmtWebP, FileSize: len(data)}

	if cfgImg, err := xwebp.DecodeConfig(bytes.NewReader(data)); err == nil {
		m.Add("WebP", "Dimensions", fmt.Sprintf("%d x %d", cfgImg.Width, cfgImg.Height))
	}
	frames := 0
	for _, e := range elems {
		switch e.Tag {
		case "VP8 ":
			m.Add("WebP", "Encoding", "VP8 (lossy)")
		case "VP8L":
			m.Add("WebP", "Encoding", "VP8L (lossless)")
		case "VP8X":
			if len(e.Payload) > 0 {
				m.Add("WebP", "Features", describeFeatures(e.Payload[0]))
			}
		case "ANMF":
			frames++
		case "EXIF":
			if x, err := exif.Decode(bytes.NewReader(e.Payload)); err == nil {
				x.Walk(exifWalker{m: m})
			}
		}
		class := "ancillary"
		if e.Critical {
			class = "critical"
		}
		m.Add("WebP Chunks", e.Tag, fmt.Sprintf("%d bytes (%s)", len(e.Payload), class))
	}
	if frames > 0 {
		m.Add("WebP", "Frames", fmt.Sprintf("%d", frames))
	}
	return m, nil
}

func describeFeatures(flags byte) string {
	var parts []string
	if flags&flagICC != 0 {
		parts = append(parts, "ICC")
	}
	if flags&flagAlpha != 0 {
		parts = append(parts, "Alpha")
	}
	if flags&flagEXIF != 0 {
		parts = append(parts, "EXIF")
	}
	if flags&flagXMP != 0 {
		parts = append(parts, "XMP")
	}
	if flags&flagAnim != 0 {
		parts = append(parts, "Animation")
	}
	if len(parts) == 0 {
		return "none"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
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
